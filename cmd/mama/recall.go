package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mama-memory/mama/internal/decision"
	"github.com/mama-memory/mama/internal/graph"
)

var recallCmd = &cobra.Command{
	Use:   "recall [topic]",
	Short: "Show the evolution chain for a topic",
	Args:  cobra.ExactArgs(1),
	Run:   runRecall,
}

func init() {
	recallCmd.Flags().Bool("why", false, "Also show semantic edges (refines/contradicts/builds_on/...) among the chain")
}

func runRecall(cmd *cobra.Command, args []string) {
	chain, result := eng.Recall(rootCtx, args[0])
	if jsonOut {
		out, _ := json.Marshal(chain)
		fmt.Println(string(out))
		return
	}
	if !result.Success {
		fatal(fmt.Errorf("%s", result.Message))
	}
	if len(chain) == 0 {
		fmt.Println(result.Message)
		return
	}
	for _, d := range chain {
		fmt.Printf("[%s] %s: %s (confidence %.2f, %s)\n", d.ID[:8], d.Topic, d.Decision, d.Confidence, d.Outcome)
	}

	why, _ := cmd.Flags().GetBool("why")
	if !why {
		return
	}
	ids := make([]string, len(chain))
	for i, d := range chain {
		ids[i] = d.ID
	}
	edges, err := eng.SemanticContext(rootCtx, ids)
	if err != nil {
		fatal(err)
	}
	printSemanticEdges(edges)
}

func printSemanticEdges(edges graph.SemanticEdges) {
	groups := []struct {
		label string
		rows  []decision.Edge
	}{
		{"refines", edges.Refines},
		{"refined_by", edges.RefinedBy},
		{"contradicts", edges.Contradicts},
		{"contradicted_by", edges.ContradictedBy},
		{"builds_on", edges.BuildsOn},
		{"built_on_by", edges.BuiltOnBy},
		{"debates", edges.Debates},
		{"debated_by", edges.DebatedBy},
		{"synthesizes", edges.Synthesizes},
		{"synthesized_by", edges.SynthesizedBy},
	}
	any := false
	for _, g := range groups {
		for _, e := range g.rows {
			any = true
			fmt.Printf("  %s: %s -> %s", g.label, e.FromID[:8], e.ToID[:8])
			if e.Reason != "" {
				fmt.Printf(" (%s)", e.Reason)
			}
			fmt.Println()
		}
	}
	if !any {
		fmt.Println("  no semantic edges recorded")
	}
}
