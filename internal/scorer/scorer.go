// Package scorer implements hybrid relevance scoring (component C6): it
// combines semantic similarity, recency, confidence, outcome, and usage
// signals into one score, picks an adaptive similarity threshold from the
// query shape, folds in each candidate's own evolution chain
// (MergeGraphChain), and selects the top-K candidates with a stable
// tie-break.
package scorer

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mama-memory/mama/internal/config"
	"github.com/mama-memory/mama/internal/decision"
)

// Candidate is a decision paired with its raw semantic similarity to the
// query. FromGraph marks a candidate pulled in by MergeGraphChain rather
// than the ANN index — it carries no similarity signal of its own (0) and
// is exempt from TopK's similarity-threshold filter.
type Candidate struct {
	Decision   decision.Decision
	Similarity float64
	FromGraph  bool
}

// ChainLookup resolves the evolution chain (component C4) for a topic;
// callers wire this to graph.Graph.QueryChain.
type ChainLookup func(ctx context.Context, topic string) ([]decision.Decision, error)

// MergeGraphChain implements spec step 3 of top-K selection: for each
// distinct topic among annCandidates, fold in that topic's own evolution
// chain (via lookup, keyed by the candidate decision's real topic field —
// never the raw query) as graph-sourced candidates, then dedupe by
// decision id, preferring the graph-chain copy on a collision. A lookup
// failure for one topic is skipped; its ANN candidate still survives.
func MergeGraphChain(ctx context.Context, annCandidates []Candidate, lookup ChainLookup) []Candidate {
	byID := make(map[string]Candidate, len(annCandidates))
	order := make([]string, 0, len(annCandidates))
	for _, c := range annCandidates {
		if _, ok := byID[c.Decision.ID]; !ok {
			order = append(order, c.Decision.ID)
		}
		byID[c.Decision.ID] = c
	}

	seenTopics := make(map[string]bool, len(annCandidates))
	for _, c := range annCandidates {
		topic := c.Decision.Topic
		if topic == "" || seenTopics[topic] {
			continue
		}
		seenTopics[topic] = true
		chain, err := lookup(ctx, topic)
		if err != nil {
			continue
		}
		for _, d := range chain {
			if _, ok := byID[d.ID]; !ok {
				order = append(order, d.ID)
			}
			byID[d.ID] = Candidate{Decision: d, FromGraph: true}
		}
	}

	merged := make([]Candidate, len(order))
	for i, id := range order {
		merged[i] = byID[id]
	}
	return merged
}

// Scored is a candidate plus its computed relevance score.
type Scored struct {
	Decision   decision.Decision
	Similarity float64
	Score      float64
}

// AdaptiveThreshold returns the minimum similarity a candidate must clear
// to be considered relevant, based on query length: short queries are
// ambiguous enough that only close matches should count, so fewer words
// means every word must pull more weight.
func AdaptiveThreshold(query string, cfg config.ScorerConfig) float64 {
	tokens := strings.Fields(query)
	if len(tokens) > 0 && len(tokens) <= maxInt(cfg.ShortQueryMaxTokens, 1) {
		return cfg.ShortQueryThreshold
	}
	return cfg.LongQueryThreshold
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Score computes the weighted relevance score for one candidate at time
// now, using cfg's weights and half-life.
func Score(c Candidate, now time.Time, cfg config.ScorerConfig) float64 {
	recency := recencyDecay(c.Decision.CreatedAt, now, cfg.RecencyHalfLifeDays)
	outcomeBonus := outcomeBonus(c.Decision.Outcome)
	usage := usageSignal(c.Decision.UsageCount, c.Decision.UsageSuccess, c.Decision.UsageFailure)

	return cfg.WeightSemantic*c.Similarity +
		cfg.WeightRecency*recency +
		cfg.WeightConfidence*c.Decision.Confidence +
		cfg.WeightOutcome*outcomeBonus +
		cfg.WeightUsage*usage
}

// recencyDecay is exponential decay with the configured half-life in days:
// a decision exactly one half-life old scores 0.5, two half-lives 0.25, etc.
func recencyDecay(createdAt int64, now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = 21
	}
	ageDays := now.Sub(time.UnixMilli(createdAt)).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

func outcomeBonus(o decision.Outcome) float64 {
	switch o {
	case decision.OutcomeSuccess:
		return 1.0
	case decision.OutcomePartial:
		return 0.5
	case decision.OutcomeFailed:
		return 0.0
	default: // ONGOING / unset
		return 0.3
	}
}

// usageSignal rewards decisions that have been surfaced and actually
// helped before, penalizing ones that have a track record of not helping.
func usageSignal(count, success, failure int) float64 {
	if count == 0 {
		return 0.5 // neutral prior, unseen is not the same as unhelpful
	}
	return float64(success-failure) / float64(count) / 2.0 + 0.5
}

// TopK filters candidates below threshold, scores the rest, and returns at
// most k, ordered by score descending with ties broken by more recent
// created_at.
func TopK(candidates []Candidate, threshold float64, k int, now time.Time, cfg config.ScorerConfig) []Scored {
	var kept []Scored
	for _, c := range candidates {
		if !c.FromGraph && c.Similarity < threshold {
			continue
		}
		kept = append(kept, Scored{
			Decision:   c.Decision,
			Similarity: c.Similarity,
			Score:      Score(c, now, cfg),
		})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Decision.CreatedAt > kept[j].Decision.CreatedAt
	})
	if k > 0 && len(kept) > k {
		kept = kept[:k]
	}
	return kept
}

// PrefilterThreshold returns the configured coarse cutoff (0.5 when unset),
// looser than the adaptive threshold. Neither engine.Suggest nor the
// injector applies it: their ANN hits go straight to TopK's adaptive
// threshold.
func PrefilterThreshold(cfg config.ScorerConfig) float64 {
	if cfg.PrefilterThreshold <= 0 {
		return 0.5
	}
	return cfg.PrefilterThreshold
}
