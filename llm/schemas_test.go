package llm

import (
	"strings"
	"testing"
)

func validCandidate() CandidateNugget {
	return CandidateNugget{
		Title:      "Retention beats reach for niche creators",
		Summary:    "Small audiences that rewatch convert far better than large passive ones.",
		NuggetType: "idea",
		Confidence: "high",
	}
}

func TestExtractOutputValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ExtractOutput)
		wantErr bool
	}{
		{"valid", func(o *ExtractOutput) {}, false},
		{"empty is valid", func(o *ExtractOutput) { o.Nuggets = nil }, false},
		{"too many nuggets", func(o *ExtractOutput) {
			o.Nuggets = make([]CandidateNugget, 7)
			for i := range o.Nuggets {
				o.Nuggets[i] = validCandidate()
			}
		}, true},
		{"short title", func(o *ExtractOutput) { o.Nuggets[0].Title = "Hi" }, true},
		{"long title", func(o *ExtractOutput) { o.Nuggets[0].Title = strings.Repeat("x", 101) }, true},
		{"generic title", func(o *ExtractOutput) { o.Nuggets[0].Title = "A Key Insight about growth" }, true},
		{"short summary", func(o *ExtractOutput) { o.Nuggets[0].Summary = "too short" }, true},
		{"unknown type", func(o *ExtractOutput) { o.Nuggets[0].NuggetType = "musing" }, true},
		{"too many phrases", func(o *ExtractOutput) {
			o.Nuggets[0].KeyPhrases = []string{"a", "b", "c", "d", "e", "f"}
		}, true},
		{"bad confidence", func(o *ExtractOutput) { o.Nuggets[0].Confidence = "certain" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &ExtractOutput{Nuggets: []CandidateNugget{validCandidate()}}
			tt.mutate(o)
			err := o.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractOutputValidateDefaults(t *testing.T) {
	o := &ExtractOutput{Nuggets: []CandidateNugget{validCandidate()}}
	o.Nuggets[0].Confidence = ""
	o.Nuggets[0].NuggetType = ""
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if o.Nuggets[0].Confidence != "medium" {
		t.Errorf("confidence default = %q, want medium", o.Nuggets[0].Confidence)
	}
	if o.Nuggets[0].NuggetType != "idea" {
		t.Errorf("nugget_type default = %q, want idea", o.Nuggets[0].NuggetType)
	}
}

func TestDimensionScoresTotalTruncates(t *testing.T) {
	d := DimensionScores{
		Specificity:       80,
		Novelty:           70,
		Authority:         90,
		Actionability:     60,
		StoryEnergy:       50,
		AudienceResonance: 75,
	}
	// exact weighted sum is 72.25
	if got := d.TotalScore(); got != 72 {
		t.Errorf("TotalScore() = %d, want 72", got)
	}

	uniform := DimensionScores{100, 100, 100, 100, 100, 100}
	if got := uniform.TotalScore(); got != 100 {
		t.Errorf("TotalScore() = %d, want 100", got)
	}
}

func TestQuestionScoresTotalTruncates(t *testing.T) {
	q := QuestionScores{
		Impact:         80,
		Leverage:       70,
		Momentum:       85,
		Connectivity:   60,
		GapCriticality: 75,
	}
	// exact weighted sum is 75.0
	if got := q.TotalScore(); got != 75 {
		t.Errorf("TotalScore() = %d, want 75", got)
	}
}

func TestScoreOutputValidate(t *testing.T) {
	valid := ScoredNugget{
		Index:           0,
		DimensionScores: DimensionScores{50, 50, 50, 50, 50, 50},
		MissingFields:   []string{"example"},
		Rationale:       "concrete but common",
	}

	tests := []struct {
		name    string
		mutate  func(*ScoredNugget)
		wantErr bool
	}{
		{"valid", func(s *ScoredNugget) {}, false},
		{"score out of range", func(s *ScoredNugget) { s.DimensionScores.Novelty = 101 }, true},
		{"negative score", func(s *ScoredNugget) { s.DimensionScores.Authority = -1 }, true},
		{"too many missing fields", func(s *ScoredNugget) {
			s.MissingFields = []string{"example", "evidence", "steps", "outcome"}
		}, true},
		{"unknown missing field", func(s *ScoredNugget) { s.MissingFields = []string{"vibes"} }, true},
		{"long rationale", func(s *ScoredNugget) { s.Rationale = strings.Repeat("x", 201) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			o := &ScoreOutput{Scored: []ScoredNugget{s}}
			err := o.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDedupOutputValidate(t *testing.T) {
	o := &DedupOutput{Decisions: []DedupDecision{
		{Index: 0, Action: "create"},
		{Index: 1, Action: "merge", MatchNodeID: "abc"},
	}}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	o = &DedupOutput{Decisions: []DedupDecision{{Index: 0, Action: "merge"}}}
	if err := o.Validate(); err == nil {
		t.Error("expected error for merge without match_node_id")
	}

	o = &DedupOutput{Decisions: []DedupDecision{{Index: 0, Action: "duplicate"}}}
	if err := o.Validate(); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestNextQuestionOutputValidate(t *testing.T) {
	valid := NextQuestionOutput{
		Candidates: []NextQuestionCandidate{{
			Question:  "What made you first doubt the standard approach?",
			Scores:    QuestionScores{70, 60, 50, 40, 80},
			TargetGap: "evidence",
		}},
		WhyPrimary: "Gets at the origin story behind the claim.",
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	noCandidates := valid
	noCandidates.Candidates = nil
	if err := noCandidates.Validate(); err == nil {
		t.Error("expected error for zero candidates")
	}

	noWhy := valid
	noWhy.WhyPrimary = ""
	if err := noWhy.Validate(); err == nil {
		t.Error("expected error for missing why_primary")
	}

	shortQ := valid
	shortQ.Candidates = []NextQuestionCandidate{{Question: "Why?", Scores: QuestionScores{}, TargetGap: "example"}}
	if err := shortQ.Validate(); err == nil {
		t.Error("expected error for short question")
	}
}
