package llm

import "fmt"

// Template is a versioned prompt. Vars lists the substitution order for the
// fmt verbs in Text; Format looks each name up in the caller's map.
type Template struct {
	Name string
	Text string
	Vars []string
}

// Format substitutes named variables into the template. Every variable the
// template declares must be present.
func (t Template) Format(vars map[string]string) (string, error) {
	args := make([]interface{}, 0, len(t.Vars))
	for _, name := range t.Vars {
		v, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("template %s: missing variable %q", t.Name, name)
		}
		args = append(args, v)
	}
	return fmt.Sprintf(t.Text, args...), nil
}

const extractNuggetsText = `You are extracting high-signal knowledge nuggets from a conversation with an expert.

Project: %s
Topic: %s
Audience: %s

Recently captured nuggets (do not re-extract these):
%s

Extract up to 6 distinct, concrete ideas, stories, frameworks, definitions, evidence, or themes from the message below. Skip filler, pleasantries, and anything too vague to stand alone. Each nugget needs a specific title (5-100 chars), a summary (20-500 chars), a type, up to 5 key phrases, and a confidence level.

Respond with JSON only:
{"nuggets": [{"title": "...", "summary": "...", "nugget_type": "idea|story|framework|definition|evidence|theme", "key_phrases": ["..."], "confidence": "high|medium|low"}], "extraction_notes": "..."}

Message:
%s`

const scoreNuggetsText = `You are scoring knowledge nuggets for an expert building content about %s for %s.

Score each nugget below on six dimensions from 0 to 100: specificity (concrete vs vague), novelty (surprising vs common knowledge), authority (grounded in the speaker's experience), actionability (can the audience act on it), story_energy (narrative pull), audience_resonance (fit for the stated audience). Also list up to 3 missing fields that would strengthen it (example, evidence, steps, counterpoint, definition, audience, outcome) and a short rationale.

Nugget titles the expert previously downvoted (score similar material lower):
%s

Nuggets:
%s

Respond with JSON only:
{"scored": [{"index": 0, "dimension_scores": {"specificity": 0, "novelty": 0, "authority": 0, "actionability": 0, "story_energy": 0, "audience_resonance": 0}, "missing_fields": ["..."], "rationale": "..."}]}`

const dedupDecisionText = `You are deciding whether new nuggets duplicate or extend existing knowledge graph nodes.

Existing nodes:
%s

New nuggets:
%s

For each new nugget decide: "merge" if it restates an existing node, "link_expands" if it deepens one, "link_related" if it is adjacent to one, "create" if it is genuinely new. Non-create decisions must name the matched node id.

Respond with JSON only:
{"decisions": [{"index": 0, "action": "create|merge|link_expands|link_related", "match_node_id": "...", "rationale": "..."}]}`

const nextQuestionsText = `You are generating the next-best questions to ask an expert about %s for an audience of %s.

Captured nuggets and their gaps:
%s

Questions the expert disliked (avoid similar ones):
%s

Propose 1-10 candidate follow-up questions (10-200 chars each). Score each 0-100 on impact, leverage, momentum, connectivity, and gap_criticality, and name the gap it targets. Explain in why_primary (up to 150 chars) why the best candidate should come first.

Respond with JSON only:
{"candidates": [{"question": "...", "scores": {"impact": 0, "leverage": 0, "momentum": 0, "connectivity": 0, "gap_criticality": 0}, "target_gap": "..."}], "why_primary": "..."}`

const correctionText = `Your previous response failed validation: %s

The required schema is:
%s

Your previous response was:
%s

Respond again with valid JSON only, matching the schema exactly.`

// templates is the prompt registry. dedup_decision_v1 is registered for the
// model-driven dedup path but the default pipeline uses lexical similarity.
var templates = map[string]Template{
	"extract_nuggets_v1": {
		Name: "extract_nuggets_v1",
		Text: extractNuggetsText,
		Vars: []string{"project_name", "topic", "audience", "recent_nuggets", "message"},
	},
	"score_nuggets_v1": {
		Name: "score_nuggets_v1",
		Text: scoreNuggetsText,
		Vars: []string{"topic", "audience", "downvoted_titles", "nuggets"},
	},
	"dedup_decision_v1": {
		Name: "dedup_decision_v1",
		Text: dedupDecisionText,
		Vars: []string{"existing_nodes", "nuggets"},
	},
	"next_questions_v1": {
		Name: "next_questions_v1",
		Text: nextQuestionsText,
		Vars: []string{"topic", "audience", "nuggets", "downvoted_titles"},
	},
	"correction": {
		Name: "correction",
		Text: correctionText,
		Vars: []string{"error_message", "schema_description", "previous_response"},
	},
}

// LookupTemplate returns a registered prompt template by name.
func LookupTemplate(name string) (Template, error) {
	t, ok := templates[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown prompt template: %s", name)
	}
	return t, nil
}
