package scorer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mama-memory/mama/internal/config"
	"github.com/mama-memory/mama/internal/decision"
)

func testConfig() config.ScorerConfig {
	return config.ScorerConfig{
		WeightSemantic:      0.45,
		WeightRecency:       0.20,
		WeightConfidence:    0.15,
		WeightOutcome:       0.10,
		WeightUsage:         0.10,
		RecencyHalfLifeDays: 21,
		PrefilterThreshold:  0.5,
		ShortQueryThreshold: 0.7,
		LongQueryThreshold:  0.6,
		ShortQueryMaxTokens: 3,
		TopK:                3,
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name  string
		query string
		want  float64
	}{
		{"single word", "redis", cfg.ShortQueryThreshold},
		{"three words", "use redis cache", cfg.ShortQueryThreshold},
		{"long query", "should we use redis or memcached for session caching", cfg.LongQueryThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdaptiveThreshold(tt.query, cfg)
			if got != tt.want {
				t.Errorf("AdaptiveThreshold(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestRecencyDecay_HalfLife(t *testing.T) {
	now := time.Now()
	createdAt := now.Add(-21 * 24 * time.Hour).UnixMilli()
	got := recencyDecay(createdAt, now, 21)
	if math.Abs(got-0.5) > 0.01 {
		t.Errorf("recencyDecay at one half-life = %v, want ~0.5", got)
	}
}

func TestOutcomeBonus(t *testing.T) {
	tests := []struct {
		outcome decision.Outcome
		want    float64
	}{
		{decision.OutcomeSuccess, 1.0},
		{decision.OutcomePartial, 0.5},
		{decision.OutcomeFailed, 0.0},
		{decision.OutcomeOngoing, 0.3},
	}
	for _, tt := range tests {
		if got := outcomeBonus(tt.outcome); got != tt.want {
			t.Errorf("outcomeBonus(%v) = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestTopK_FiltersBelowThreshold(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	candidates := []Candidate{
		{Decision: decision.Decision{ID: "a", CreatedAt: now.UnixMilli(), Confidence: 0.8}, Similarity: 0.9},
		{Decision: decision.Decision{ID: "b", CreatedAt: now.UnixMilli(), Confidence: 0.8}, Similarity: 0.3},
	}
	got := TopK(candidates, 0.6, 10, now, cfg)
	if len(got) != 1 || got[0].Decision.ID != "a" {
		t.Fatalf("expected only candidate 'a' to survive threshold, got %+v", got)
	}
}

func TestTopK_TieBreaksOnRecency(t *testing.T) {
	cfg := testConfig()
	// Zero the recency weight so both candidates score exactly the same and
	// only the created_at tie-break can order them.
	cfg.WeightRecency = 0
	now := time.Now()
	older := now.Add(-10 * 24 * time.Hour).UnixMilli()
	newer := now.UnixMilli()
	candidates := []Candidate{
		{Decision: decision.Decision{ID: "old", CreatedAt: older, Confidence: 0.5}, Similarity: 0.8},
		{Decision: decision.Decision{ID: "new", CreatedAt: newer, Confidence: 0.5}, Similarity: 0.8},
	}
	got := TopK(candidates, 0.6, 10, now, cfg)
	if len(got) != 2 || got[0].Decision.ID != "new" {
		t.Fatalf("expected newer decision to rank first on a score tie, got %+v", got)
	}
}

func TestTopK_RespectsK(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	var candidates []Candidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, Candidate{
			Decision:   decision.Decision{ID: string(rune('a' + i)), CreatedAt: now.UnixMilli()},
			Similarity: 0.9,
		})
	}
	got := TopK(candidates, 0.5, 2, now, cfg)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
}

func TestTopK_GraphSourcedCandidatesBypassThreshold(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	candidates := []Candidate{
		{Decision: decision.Decision{ID: "ann", CreatedAt: now.UnixMilli(), Confidence: 0.8}, Similarity: 0.9},
		{Decision: decision.Decision{ID: "chain-sibling", CreatedAt: now.UnixMilli(), Confidence: 0.8}, Similarity: 0, FromGraph: true},
	}
	got := TopK(candidates, 0.6, 10, now, cfg)
	if len(got) != 2 {
		t.Fatalf("expected the graph-sourced candidate to bypass the similarity threshold, got %+v", got)
	}
}

func TestMergeGraphChain_AddsChainSiblingsAndPrefersGraphOnCollision(t *testing.T) {
	now := time.Now()
	ann := []Candidate{
		{Decision: decision.Decision{ID: "head", Topic: "caching", CreatedAt: now.UnixMilli()}, Similarity: 0.8},
	}
	lookup := func(ctx context.Context, topic string) ([]decision.Decision, error) {
		if topic != "caching" {
			t.Fatalf("lookup called with unexpected topic %q", topic)
		}
		return []decision.Decision{
			{ID: "head", Topic: "caching", CreatedAt: now.UnixMilli()},
			{ID: "older", Topic: "caching", CreatedAt: now.Add(-time.Hour).UnixMilli()},
		}, nil
	}

	merged := MergeGraphChain(context.Background(), ann, lookup)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged candidates, got %d: %+v", len(merged), merged)
	}
	for _, c := range merged {
		switch c.Decision.ID {
		case "head":
			if !c.FromGraph {
				t.Errorf("expected the graph-chain copy of 'head' to win the collision, got %+v", c)
			}
		case "older":
			if !c.FromGraph {
				t.Errorf("expected 'older' to be graph-sourced, got %+v", c)
			}
		default:
			t.Errorf("unexpected merged candidate %+v", c)
		}
	}
}

func TestMergeGraphChain_SkipsTopicOnLookupError(t *testing.T) {
	now := time.Now()
	ann := []Candidate{
		{Decision: decision.Decision{ID: "a", Topic: "x", CreatedAt: now.UnixMilli()}, Similarity: 0.8},
	}
	lookup := func(ctx context.Context, topic string) ([]decision.Decision, error) {
		return nil, errors.New("boom")
	}

	merged := MergeGraphChain(context.Background(), ann, lookup)
	if len(merged) != 1 || merged[0].Decision.ID != "a" {
		t.Fatalf("expected the ann candidate to survive a lookup error, got %+v", merged)
	}
}

func TestMergeGraphChain_DedupesRepeatedTopicAcrossCandidates(t *testing.T) {
	now := time.Now()
	ann := []Candidate{
		{Decision: decision.Decision{ID: "a", Topic: "caching", CreatedAt: now.UnixMilli()}, Similarity: 0.8},
		{Decision: decision.Decision{ID: "b", Topic: "caching", CreatedAt: now.UnixMilli()}, Similarity: 0.75},
	}
	calls := 0
	lookup := func(ctx context.Context, topic string) ([]decision.Decision, error) {
		calls++
		return []decision.Decision{{ID: "a", Topic: "caching", CreatedAt: now.UnixMilli()}}, nil
	}

	merged := MergeGraphChain(context.Background(), ann, lookup)
	if calls != 1 {
		t.Fatalf("expected the chain lookup to run once per distinct topic, ran %d times", calls)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 deduped candidates, got %d: %+v", len(merged), merged)
	}
}
