package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// stubProvider returns deterministic canned JSON keyed on content
// fingerprints of the prompt. It lets the whole pipeline run offline, which
// is how the end-to-end tests exercise extraction without a model.
type stubProvider struct{}

// NewStub creates the deterministic offline provider.
func NewStub() Provider {
	return &stubProvider{}
}

func (s *stubProvider) Invoke(ctx context.Context, prompt, model string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case strings.Contains(prompt, "extracting high-signal knowledge nuggets"):
		return s.extract(prompt), nil
	case strings.Contains(prompt, "scoring knowledge nuggets"):
		return s.score(prompt), nil
	case strings.Contains(prompt, "deciding whether new nuggets duplicate"):
		return s.dedup(prompt), nil
	case strings.Contains(prompt, "generating the next-best questions"):
		return s.questions(), nil
	default:
		return "", fmt.Errorf("stub provider: unrecognized prompt")
	}
}

// extract derives one candidate from the message embedded in the prompt so
// consecutive turns produce distinct nodes.
func (s *stubProvider) extract(prompt string) string {
	msg := embeddedMessage(prompt)
	title := firstClause(msg, 80)
	if len([]rune(title)) < 5 {
		title = "Untitled observation from conversation"
	}
	summary := "Captured from the conversation: " + firstClause(msg, 300)
	if len([]rune(summary)) < 20 {
		summary = "Captured from the conversation, no further detail was provided."
	}
	out := map[string]interface{}{
		"nuggets": []map[string]interface{}{
			{
				"title":       title,
				"summary":     summary,
				"nugget_type": "idea",
				"key_phrases": []string{},
				"confidence":  "high",
			},
		},
		"extraction_notes": "stubbed extraction",
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func (s *stubProvider) score(prompt string) string {
	// One score block per "- Title:" line in the prompt's nugget listing.
	n := strings.Count(prompt, "- Title: ")
	if n == 0 {
		n = 1
	}
	scored := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		scored = append(scored, map[string]interface{}{
			"index": i,
			"dimension_scores": map[string]int{
				"specificity":        65,
				"novelty":            55,
				"authority":          60,
				"actionability":      70,
				"story_energy":       50,
				"audience_resonance": 60,
			},
			"missing_fields": []string{"example"},
			"rationale":      "stubbed scoring",
		})
	}
	b, _ := json.Marshal(map[string]interface{}{"scored": scored})
	return string(b)
}

func (s *stubProvider) dedup(prompt string) string {
	n := strings.Count(prompt, "- Title: ")
	if n == 0 {
		n = 1
	}
	decisions := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		decisions = append(decisions, map[string]interface{}{
			"index":     i,
			"action":    "create",
			"rationale": "stubbed dedup",
		})
	}
	b, _ := json.Marshal(map[string]interface{}{"decisions": decisions})
	return string(b)
}

func (s *stubProvider) questions() string {
	out := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"question": "Can you walk me through a concrete example of that?",
				"scores": map[string]int{
					"impact":          75,
					"leverage":        70,
					"momentum":        80,
					"connectivity":    60,
					"gap_criticality": 70,
				},
				"target_gap": "example",
			},
			{
				"question": "What evidence convinced you this actually works?",
				"scores": map[string]int{
					"impact":          70,
					"leverage":        65,
					"momentum":        60,
					"connectivity":    55,
					"gap_criticality": 75,
				},
				"target_gap": "evidence",
			},
			{
				"question": "Who is the ideal audience for this idea?",
				"scores": map[string]int{
					"impact":          60,
					"leverage":        55,
					"momentum":        50,
					"connectivity":    65,
					"gap_criticality": 60,
				},
				"target_gap": "audience",
			},
		},
		"why_primary": "A concrete example would anchor the idea before going deeper.",
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// embeddedMessage pulls the user message out of an extraction prompt.
func embeddedMessage(prompt string) string {
	const marker = "Message:\n"
	if i := strings.Index(prompt, marker); i >= 0 {
		return strings.TrimSpace(prompt[i+len(marker):])
	}
	return strings.TrimSpace(prompt)
}

// firstClause returns the text up to the first sentence break, capped at max
// runes.
func firstClause(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?\n"); i > 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > max {
		r = r[:max]
	}
	return strings.TrimSpace(string(r))
}
