// Package outcome implements the outcome tracker (component C5): it scans
// free text for success/failure signals in English and Korean and, within a
// short window after a decision was saved, auto-applies the result if the
// decision doesn't already have one.
package outcome

import (
	"strings"
	"time"

	"github.com/mama-memory/mama/internal/decision"
)

// Signal is a detected outcome and a rough confidence in the detection.
type Signal struct {
	Outcome    decision.Outcome
	Confidence float64
	Matched    string
}

type lexiconEntry struct {
	phrase  string
	outcome decision.Outcome
	weight  float64
}

// lexicon is intentionally small and literal rather than a classifier —
// it exists to catch an explicit "it worked" / "that broke things" follow-up
// in conversation, not to do general sentiment analysis.
var lexicon = []lexiconEntry{
	{"works now", decision.OutcomeSuccess, 0.9},
	{"worked", decision.OutcomeSuccess, 0.85},
	{"fixed it", decision.OutcomeSuccess, 0.9},
	{"that worked", decision.OutcomeSuccess, 0.9},
	{"tests pass", decision.OutcomeSuccess, 0.85},
	{"tests are passing", decision.OutcomeSuccess, 0.85},
	{"성공", decision.OutcomeSuccess, 0.9},
	{"잘 작동", decision.OutcomeSuccess, 0.85},
	{"해결됐", decision.OutcomeSuccess, 0.85},

	{"didn't work", decision.OutcomeFailed, 0.9},
	{"did not work", decision.OutcomeFailed, 0.9},
	{"broke", decision.OutcomeFailed, 0.8},
	{"still failing", decision.OutcomeFailed, 0.85},
	{"regressed", decision.OutcomeFailed, 0.8},
	{"rolled back", decision.OutcomeFailed, 0.75},
	{"실패", decision.OutcomeFailed, 0.9},
	{"작동 안", decision.OutcomeFailed, 0.85},
	{"안 돼", decision.OutcomeFailed, 0.7},

	{"sort of worked", decision.OutcomePartial, 0.7},
	{"partially worked", decision.OutcomePartial, 0.8},
	{"worked but", decision.OutcomePartial, 0.7},
	{"부분적으로", decision.OutcomePartial, 0.75},
}

// Analyze scans text for the strongest lexicon match. A matched phrase that
// is part of a longer matched phrase ("worked" inside "sort of worked")
// gives way to the longer one. It returns ok=false when nothing matches,
// rather than defaulting to ONGOING — callers should not treat "no signal
// found" as an outcome.
func Analyze(text string) (Signal, bool) {
	lower := strings.ToLower(text)
	var matched []lexiconEntry
	for _, e := range lexicon {
		if strings.Contains(lower, strings.ToLower(e.phrase)) {
			matched = append(matched, e)
		}
	}
	var best Signal
	found := false
	for i, e := range matched {
		subsumed := false
		for j, o := range matched {
			if i != j && len(o.phrase) > len(e.phrase) && strings.Contains(o.phrase, e.phrase) {
				subsumed = true
				break
			}
		}
		if !subsumed && (!found || e.weight > best.Confidence) {
			best = Signal{Outcome: e.outcome, Confidence: e.weight, Matched: e.phrase}
			found = true
		}
	}
	return best, found
}

// ShouldAutoApply reports whether a detected signal for decisionCreatedAt
// (epoch milliseconds) should be written automatically: the decision must
// not already have an outcome, and the signal must have arrived within
// windowMinutes of the save.
func ShouldAutoApply(decisionCreatedAt int64, currentOutcome decision.Outcome, windowMinutes int, now time.Time) bool {
	if currentOutcome != "" && currentOutcome != decision.OutcomeOngoing {
		return false
	}
	if windowMinutes <= 0 {
		return false
	}
	elapsed := now.Sub(time.UnixMilli(decisionCreatedAt))
	return elapsed >= 0 && elapsed <= time.Duration(windowMinutes)*time.Minute
}
