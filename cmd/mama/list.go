package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mama-memory/mama/internal/decision"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent decisions",
	Run:   runList,
}

func init() {
	listCmd.Flags().Int("limit", 20, "Maximum number of decisions to return (1-100)")
	listCmd.Flags().String("outcome", "", "Filter by outcome: SUCCESS, FAILED, PARTIAL, ONGOING")
}

func runList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	outcomeFlag, _ := cmd.Flags().GetString("outcome")

	filter := decision.ListFilter{Outcome: decision.Outcome(outcomeFlag)}
	list, result := eng.List(rootCtx, limit, filter)
	if jsonOut {
		out, _ := json.Marshal(list)
		fmt.Println(string(out))
		return
	}
	if !result.Success {
		fatal(fmt.Errorf("%s", result.Message))
	}
	for _, d := range list {
		fmt.Printf("[%s] %s: %s (%s)\n", d.ID[:8], d.Topic, d.Decision, d.Outcome)
	}
}
