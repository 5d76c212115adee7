package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mama-memory/mama/internal/formatter"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest [query]",
	Short: "Suggest past decisions relevant to a query",
	Args:  cobra.ExactArgs(1),
	Run:   runSuggest,
}

func init() {
	suggestCmd.Flags().Int("top-k", 0, "Maximum results (0 uses the configured default)")
	suggestCmd.Flags().Bool("render", false, "Print the formatted context block instead of raw results")
}

func runSuggest(cmd *cobra.Command, args []string) {
	topK, _ := cmd.Flags().GetInt("top-k")
	render, _ := cmd.Flags().GetBool("render")
	query := args[0]

	if render {
		fmt.Println(eng.InjectContext(rootCtx, query, formatter.PresetFull))
		return
	}

	scored, result := eng.Suggest(rootCtx, query, topK)
	if jsonOut {
		out, _ := json.Marshal(scored)
		fmt.Println(string(out))
		return
	}
	if !result.Success {
		fatal(fmt.Errorf("%s", result.Message))
	}
	if len(scored) == 0 {
		fmt.Println(result.Message)
		return
	}
	for _, s := range scored {
		fmt.Printf("%.2f  %s: %s\n", s.Score, s.Decision.Topic, s.Decision.Decision)
	}
}
