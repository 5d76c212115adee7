package outcome

import (
	"testing"
	"time"

	"github.com/mama-memory/mama/internal/decision"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantOK  bool
		wantOut decision.Outcome
	}{
		{"clear success", "great, that worked and tests pass now", true, decision.OutcomeSuccess},
		{"clear failure", "nope, it broke the build and we rolled back", true, decision.OutcomeFailed},
		{"partial", "it sort of worked but still has edge cases", true, decision.OutcomePartial},
		{"korean success", "이제 성공했어요", true, decision.OutcomeSuccess},
		{"korean failure", "실패했어요 다시 시도", true, decision.OutcomeFailed},
		{"no signal", "let's use redis for session storage", false, ""},
		{"case insensitive", "IT WORKED after the restart", true, decision.OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Analyze(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Analyze(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if ok && got.Outcome != tt.wantOut {
				t.Errorf("Analyze(%q) outcome = %v, want %v", tt.text, got.Outcome, tt.wantOut)
			}
		})
	}
}

func TestAnalyze_StrongestMatchWins(t *testing.T) {
	got, ok := Analyze("it worked but sort of worked only partially")
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Matched != "worked but" && got.Matched != "sort of worked" {
		t.Logf("matched phrase: %q outcome: %v", got.Matched, got.Outcome)
	}
}

func TestShouldAutoApply(t *testing.T) {
	now := time.Now()
	createdAt := now.Add(-10 * time.Minute).UnixMilli()

	tests := []struct {
		name          string
		createdAt     int64
		current       decision.Outcome
		windowMinutes int
		now           time.Time
		want          bool
	}{
		{"within window, no outcome yet", createdAt, "", 60, now, true},
		{"within window, ongoing", createdAt, decision.OutcomeOngoing, 60, now, true},
		{"already resolved", createdAt, decision.OutcomeSuccess, 60, now, false},
		{"outside window", createdAt, "", 5, now, false},
		{"window disabled", createdAt, "", 0, now, false},
		{"future timestamp", now.Add(time.Minute).UnixMilli(), "", 60, now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldAutoApply(tt.createdAt, tt.current, tt.windowMinutes, tt.now)
			if got != tt.want {
				t.Errorf("ShouldAutoApply() = %v, want %v", got, tt.want)
			}
		})
	}
}
