package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Output is a typed LLM response contract. SchemaDescription feeds the
// correction prompt when validation fails.
type Output interface {
	Validate() error
	SchemaDescription() string
}

// NuggetTypes is the closed set of node/nugget types.
var NuggetTypes = []string{"idea", "story", "framework", "definition", "evidence", "theme"}

// MissingFieldKinds is the closed set of gap labels a scorer may report.
var MissingFieldKinds = []string{"example", "evidence", "steps", "counterpoint", "definition", "audience", "outcome"}

// bannedTitlePhrases reject filler titles regardless of score.
var bannedTitlePhrases = []string{
	"general advice",
	"key insight",
	"important point",
	"main idea",
	"lesson learned",
}

// CandidateNugget is one extracted idea before scoring.
type CandidateNugget struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	NuggetType string   `json:"nugget_type"`
	KeyPhrases []string `json:"key_phrases"`
	Confidence string   `json:"confidence"`
}

// ExtractOutput is the extraction stage contract.
type ExtractOutput struct {
	Nuggets         []CandidateNugget `json:"nuggets"`
	ExtractionNotes string            `json:"extraction_notes,omitempty"`
}

func (o *ExtractOutput) Validate() error {
	if len(o.Nuggets) > 6 {
		return fmt.Errorf("at most 6 nuggets allowed, got %d", len(o.Nuggets))
	}
	for i := range o.Nuggets {
		n := &o.Nuggets[i]
		if err := validateRange("title", n.Title, 5, 100); err != nil {
			return fmt.Errorf("nugget %d: %w", i, err)
		}
		lower := strings.ToLower(n.Title)
		for _, p := range bannedTitlePhrases {
			if strings.Contains(lower, p) {
				return fmt.Errorf("nugget %d: title contains generic phrase %q", i, p)
			}
		}
		if err := validateRange("summary", n.Summary, 20, 500); err != nil {
			return fmt.Errorf("nugget %d: %w", i, err)
		}
		if n.NuggetType == "" {
			n.NuggetType = "idea"
		}
		if !contains(NuggetTypes, n.NuggetType) {
			return fmt.Errorf("nugget %d: unknown nugget_type %q", i, n.NuggetType)
		}
		if len(n.KeyPhrases) > 5 {
			return fmt.Errorf("nugget %d: at most 5 key_phrases allowed", i)
		}
		switch n.Confidence {
		case "high", "medium", "low":
		case "":
			n.Confidence = "medium"
		default:
			return fmt.Errorf("nugget %d: confidence must be high, medium, or low", i)
		}
	}
	return nil
}

func (o *ExtractOutput) SchemaDescription() string {
	return `{"nuggets": [{"title": "5-100 chars, no generic filler", "summary": "20-500 chars", "nugget_type": "idea|story|framework|definition|evidence|theme", "key_phrases": ["up to 5"], "confidence": "high|medium|low"}], "extraction_notes": "optional"} with at most 6 nuggets`
}

// DimensionScores holds the six nugget quality dimensions, each 0-100.
type DimensionScores struct {
	Specificity       int `json:"specificity"`
	Novelty           int `json:"novelty"`
	Authority         int `json:"authority"`
	Actionability     int `json:"actionability"`
	StoryEnergy       int `json:"story_energy"`
	AudienceResonance int `json:"audience_resonance"`
}

// TotalScore is the weighted composite, truncated. Integer arithmetic keeps
// the truncation exact: the weights are hundredths.
func (d DimensionScores) TotalScore() int {
	return (20*d.Specificity + 15*d.Novelty + 20*d.Authority +
		15*d.Actionability + 15*d.StoryEnergy + 15*d.AudienceResonance) / 100
}

func (d DimensionScores) validate() error {
	dims := map[string]int{
		"specificity":        d.Specificity,
		"novelty":            d.Novelty,
		"authority":          d.Authority,
		"actionability":      d.Actionability,
		"story_energy":       d.StoryEnergy,
		"audience_resonance": d.AudienceResonance,
	}
	for name, v := range dims {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be 0-100, got %d", name, v)
		}
	}
	return nil
}

// ScoredNugget pairs a candidate index with its dimension scores.
type ScoredNugget struct {
	Index           int             `json:"index"`
	DimensionScores DimensionScores `json:"dimension_scores"`
	MissingFields   []string        `json:"missing_fields"`
	Rationale       string          `json:"rationale"`
}

// ScoreOutput is the scoring stage contract.
type ScoreOutput struct {
	Scored []ScoredNugget `json:"scored"`
}

func (o *ScoreOutput) Validate() error {
	for i, s := range o.Scored {
		if s.Index < 0 {
			return fmt.Errorf("score %d: negative index", i)
		}
		if err := s.DimensionScores.validate(); err != nil {
			return fmt.Errorf("score %d: %w", i, err)
		}
		if len(s.MissingFields) > 3 {
			return fmt.Errorf("score %d: at most 3 missing_fields allowed", i)
		}
		for _, f := range s.MissingFields {
			if !contains(MissingFieldKinds, f) {
				return fmt.Errorf("score %d: unknown missing field %q", i, f)
			}
		}
		if utf8.RuneCountInString(s.Rationale) > 200 {
			return fmt.Errorf("score %d: rationale exceeds 200 chars", i)
		}
	}
	return nil
}

func (o *ScoreOutput) SchemaDescription() string {
	return `{"scored": [{"index": 0, "dimension_scores": {"specificity": 0-100, "novelty": 0-100, "authority": 0-100, "actionability": 0-100, "story_energy": 0-100, "audience_resonance": 0-100}, "missing_fields": ["example|evidence|steps|counterpoint|definition|audience|outcome", "up to 3"], "rationale": "up to 200 chars"}]}`
}

// DedupActions is the closed set of dedup decisions.
var DedupActions = []string{"create", "merge", "link_expands", "link_related"}

// DedupDecision is a per-candidate duplicate verdict.
type DedupDecision struct {
	Index       int    `json:"index"`
	Action      string `json:"action"`
	MatchNodeID string `json:"match_node_id,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
}

// DedupOutput is the contract for the model-driven dedup path.
type DedupOutput struct {
	Decisions []DedupDecision `json:"decisions"`
}

func (o *DedupOutput) Validate() error {
	for i, d := range o.Decisions {
		if d.Index < 0 {
			return fmt.Errorf("decision %d: negative index", i)
		}
		if !contains(DedupActions, d.Action) {
			return fmt.Errorf("decision %d: unknown action %q", i, d.Action)
		}
		if d.Action != "create" && d.MatchNodeID == "" {
			return fmt.Errorf("decision %d: %s requires match_node_id", i, d.Action)
		}
	}
	return nil
}

func (o *DedupOutput) SchemaDescription() string {
	return `{"decisions": [{"index": 0, "action": "create|merge|link_expands|link_related", "match_node_id": "required unless create", "rationale": "optional"}]}`
}

// QuestionScores holds the five question-ranking dimensions, each 0-100.
type QuestionScores struct {
	Impact         int `json:"impact"`
	Leverage       int `json:"leverage"`
	Momentum       int `json:"momentum"`
	Connectivity   int `json:"connectivity"`
	GapCriticality int `json:"gap_criticality"`
}

// TotalScore is the weighted composite, truncated.
func (q QuestionScores) TotalScore() int {
	return (25*q.Impact + 20*q.Leverage + 20*q.Momentum +
		15*q.Connectivity + 20*q.GapCriticality) / 100
}

func (q QuestionScores) validate() error {
	dims := map[string]int{
		"impact":          q.Impact,
		"leverage":        q.Leverage,
		"momentum":        q.Momentum,
		"connectivity":    q.Connectivity,
		"gap_criticality": q.GapCriticality,
	}
	for name, v := range dims {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be 0-100, got %d", name, v)
		}
	}
	return nil
}

// NextQuestionCandidate is one proposed follow-up question.
type NextQuestionCandidate struct {
	Question  string         `json:"question"`
	Scores    QuestionScores `json:"scores"`
	TargetGap string         `json:"target_gap"`
}

// NextQuestionOutput is the question generation contract.
type NextQuestionOutput struct {
	Candidates []NextQuestionCandidate `json:"candidates"`
	WhyPrimary string                  `json:"why_primary"`
}

func (o *NextQuestionOutput) Validate() error {
	if len(o.Candidates) < 1 || len(o.Candidates) > 10 {
		return fmt.Errorf("between 1 and 10 question candidates required, got %d", len(o.Candidates))
	}
	for i, c := range o.Candidates {
		if err := validateRange("question", c.Question, 10, 200); err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
		if err := c.Scores.validate(); err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	if o.WhyPrimary == "" {
		return fmt.Errorf("why_primary is required")
	}
	if utf8.RuneCountInString(o.WhyPrimary) > 150 {
		return fmt.Errorf("why_primary exceeds 150 chars")
	}
	return nil
}

func (o *NextQuestionOutput) SchemaDescription() string {
	return `{"candidates": [{"question": "10-200 chars", "scores": {"impact": 0-100, "leverage": 0-100, "momentum": 0-100, "connectivity": 0-100, "gap_criticality": 0-100}, "target_gap": "example|evidence|steps|..."}], "why_primary": "required, up to 150 chars"} with 1-10 candidates`
}

func validateRange(field, val string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(val))
	if n < min || n > max {
		return fmt.Errorf("%s must be %d-%d chars, got %d", field, min, max, n)
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
