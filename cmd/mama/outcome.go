package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mama-memory/mama/internal/decision"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome [decision-id]",
	Short: "Record the outcome of a past decision",
	Args:  cobra.ExactArgs(1),
	Run:   runOutcome,
}

func init() {
	outcomeCmd.Flags().String("result", "", "SUCCESS, FAILED, or PARTIAL (required)")
	outcomeCmd.Flags().String("failure-reason", "", "Required when --result=FAILED")
	outcomeCmd.Flags().String("limitation", "", "What the decision didn't cover, for PARTIAL")
	outcomeCmd.Flags().Int("duration-days", 0, "How long the decision held before this outcome")
	_ = outcomeCmd.MarkFlagRequired("result")
}

func runOutcome(cmd *cobra.Command, args []string) {
	outcomeStr, _ := cmd.Flags().GetString("result")
	failureReason, _ := cmd.Flags().GetString("failure-reason")
	limitation, _ := cmd.Flags().GetString("limitation")
	durationDays, _ := cmd.Flags().GetInt("duration-days")

	in := decision.UpdateOutcomeInput{
		DecisionID:    args[0],
		Outcome:       decision.Outcome(outcomeStr),
		FailureReason: failureReason,
		Limitation:    limitation,
	}
	if durationDays > 0 {
		in.DurationDays = &durationDays
	}

	result := eng.UpdateOutcome(rootCtx, in)
	if jsonOut {
		out, _ := json.Marshal(result)
		fmt.Println(string(out))
		return
	}
	if !result.Success {
		fatal(fmt.Errorf("%s", result.Message))
	}
	fmt.Println("outcome recorded")
}
