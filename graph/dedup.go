// Package graph holds the similarity logic that keeps the knowledge graph
// deduplicated and cross-linked: a lexical dedup engine and a negation-based
// contradiction detector.
package graph

import (
	"fmt"
	"strings"
)

// Thresholds configures the similarity cutoffs for dedup decisions.
// Evaluated high to low: Merge, then Expand, then Relate.
type Thresholds struct {
	Merge  float64
	Expand float64
	Relate float64
}

// ExistingNode is the slice of graph state the dedup engine compares against.
type ExistingNode struct {
	ID    string
	Title string
}

// Decision is the dedup verdict for one candidate title.
type Decision struct {
	Action      string // create, merge, link_expands, link_related
	MatchNodeID string // set for non-create actions
	Similarity  float64
	Rationale   string
}

// Deduper decides whether candidate nuggets duplicate existing nodes using
// Jaccard similarity over title word sets.
//
// TODO: add an embedding path on vec_nodes once node embeddings are
// populated; the lexical comparison misses paraphrases.
type Deduper struct {
	thresholds Thresholds
}

// NewDeduper creates a dedup engine with the given thresholds.
func NewDeduper(t Thresholds) *Deduper {
	return &Deduper{thresholds: t}
}

// Decide returns the best-match decision for a candidate title against the
// existing nodes. With no existing nodes every candidate is a create.
func (d *Deduper) Decide(title string, existing []ExistingNode) Decision {
	best := Decision{Action: "create"}
	candidate := titleWords(title)

	for _, node := range existing {
		sim := jaccard(candidate, titleWords(node.Title))
		if sim > best.Similarity {
			best.Similarity = sim
			best.MatchNodeID = node.ID
			best.Rationale = fmt.Sprintf("Similar to: %s", node.Title)
		}
	}

	switch {
	case best.Similarity >= d.thresholds.Merge:
		best.Action = "merge"
	case best.Similarity >= d.thresholds.Expand:
		best.Action = "link_expands"
	case best.Similarity >= d.thresholds.Relate:
		best.Action = "link_related"
	default:
		best = Decision{Action: "create", Similarity: best.Similarity}
	}
	return best
}

// titleWords lowercases and tokenizes a title into a word set.
func titleWords(title string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(title)) {
		words[w] = struct{}{}
	}
	return words
}

// jaccard computes intersection over union. Two empty sets are not similar.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
