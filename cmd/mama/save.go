package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mama-memory/mama/internal/decision"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Record a new decision",
	Run:   runSave,
}

func init() {
	saveCmd.Flags().String("topic", "", "Topic this decision belongs to (required)")
	saveCmd.Flags().String("decision", "", "What was decided (required)")
	saveCmd.Flags().String("reasoning", "", "Why it was decided")
	saveCmd.Flags().Float64("confidence", -1, "Confidence in [0,1]; omit for 0.5 default")
	saveCmd.Flags().String("supersedes", "", "Decision ID this replaces (auto-detected from topic if omitted)")
	_ = saveCmd.MarkFlagRequired("topic")
	_ = saveCmd.MarkFlagRequired("decision")
}

func runSave(cmd *cobra.Command, args []string) {
	topic, _ := cmd.Flags().GetString("topic")
	text, _ := cmd.Flags().GetString("decision")
	reasoning, _ := cmd.Flags().GetString("reasoning")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	supersedes, _ := cmd.Flags().GetString("supersedes")

	in := decision.SaveInput{
		Topic:      topic,
		Decision:   text,
		Reasoning:  reasoning,
		Supersedes: supersedes,
	}
	if confidence >= 0 {
		in.Confidence = &confidence
	}

	result := eng.Save(rootCtx, in)
	if jsonOut {
		out, _ := json.Marshal(result)
		fmt.Println(string(out))
		return
	}
	if !result.Success {
		fatal(fmt.Errorf("%s", result.Message))
	}
	fmt.Printf("saved %s\n", result.ID)
}
