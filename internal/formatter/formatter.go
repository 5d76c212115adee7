// Package formatter renders a scored selection of decisions into the
// token-bounded text block the context injector inlines into a prompt
// (component C7). Three presets trade off verbosity against token cost.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mama-memory/mama/internal/decision"
	"github.com/mama-memory/mama/internal/scorer"
)

// Preset selects a rendering density.
type Preset string

const (
	PresetFull     Preset = "full"
	PresetSummary  Preset = "summary"
	PresetMarkdown Preset = "markdown"
)

// maxWords caps each preset's rendered output to keep the injected block
// small; Full allows more room for reasoning than Summary.
var maxWords = map[Preset]int{
	PresetFull:     500,
	PresetSummary:  200,
	PresetMarkdown: 350,
}

const previewMaxChars = 80
const previewMinChars = 60

func outcomeGlyph(o decision.Outcome) string {
	switch o {
	case decision.OutcomeSuccess:
		return "✓"
	case decision.OutcomeFailed:
		return "✗"
	case decision.OutcomePartial:
		return "~"
	default:
		return "…"
	}
}

// Render formats up to len(scored) entries under preset's word budget,
// appending a "+N more" sentinel if the budget runs out before all entries
// are rendered.
func Render(scored []scorer.Scored, preset Preset, now time.Time) string {
	if len(scored) == 0 {
		return ""
	}
	budget, ok := maxWords[preset]
	if !ok {
		budget = maxWords[PresetSummary]
	}

	var sb strings.Builder
	words := 0
	rendered := 0
	for _, s := range scored {
		entry := renderEntry(s, preset, now)
		entryWords := len(strings.Fields(entry))
		if rendered > 0 && words+entryWords > budget {
			break
		}
		sb.WriteString(entry)
		sb.WriteString("\n")
		words += entryWords
		rendered++
	}
	if rendered < len(scored) {
		fmt.Fprintf(&sb, "+%d more\n", len(scored)-rendered)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderEntry(s scorer.Scored, preset Preset, now time.Time) string {
	d := s.Decision
	relTime := humanize.Time(time.UnixMilli(d.CreatedAt))
	pct := int(s.Similarity * 100)

	switch preset {
	case PresetMarkdown:
		var sb strings.Builder
		fmt.Fprintf(&sb, "- **%s** %s _(%s, %d%% match, %s)_", d.Topic, outcomeGlyph(d.Outcome), relTime, pct, string(d.Outcome))
		if preview := previewLine(d.Decision); preview != "" {
			fmt.Fprintf(&sb, "\n  %s", preview)
		}
		return sb.String()
	case PresetSummary:
		return fmt.Sprintf("%s %s (%s, %d%%)", outcomeGlyph(d.Outcome), d.Topic, relTime, pct)
	default: // PresetFull
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s — %s (%s, %d%% match)", outcomeGlyph(d.Outcome), d.Topic, d.Decision, relTime, pct)
		if d.Reasoning != "" {
			fmt.Fprintf(&sb, "\n  why: %s", truncate(d.Reasoning, 200))
		}
		if d.FailureReason != "" {
			fmt.Fprintf(&sb, "\n  failed because: %s", truncate(d.FailureReason, 150))
		}
		return sb.String()
	}
}

// previewLine clips text to a readable preview window: never longer than
// previewMaxChars, only shortened to below previewMinChars when a natural
// word boundary allows it.
func previewLine(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if len(text) <= previewMaxChars {
		return text
	}
	cut := text[:previewMaxChars]
	if idx := strings.LastIndex(cut, " "); idx >= previewMinChars {
		cut = cut[:idx]
	}
	return cut + "…"
}

func truncate(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	return text[:n] + "…"
}
