package graph

// negationWords signal that a statement pushes against something. A title
// carrying one of these plus enough lexical overlap with an existing node is
// treated as a potential contradiction.
var negationWords = map[string]struct{}{
	"not": {}, "never": {}, "don't": {}, "dont": {},
	"shouldn't": {}, "shouldnt": {}, "avoid": {}, "stop": {},
	"wrong": {}, "myth": {}, "overrated": {}, "instead": {},
	"contrary": {}, "opposite": {}, "actually": {}, "however": {}, "but": {},
}

// Contradiction proposes a contradicts edge from a new node to an existing
// one. The detector only computes; persisting the edge is the caller's job.
type Contradiction struct {
	NodeID     string // existing node contradicted
	Similarity float64
}

// ContradictionDetector flags new nodes that likely push against existing
// ones, using negation vocabulary plus title overlap.
type ContradictionDetector struct {
	floor float64
}

// NewContradictionDetector creates a detector with the given similarity
// floor.
func NewContradictionDetector(floor float64) *ContradictionDetector {
	return &ContradictionDetector{floor: floor}
}

// Detect returns every existing node the new title appears to contradict.
// Titles without any negation signal never contradict.
func (d *ContradictionDetector) Detect(title string, existing []ExistingNode) []Contradiction {
	words := titleWords(title)

	hasNegation := false
	for w := range words {
		if _, ok := negationWords[w]; ok {
			hasNegation = true
			delete(words, w)
		}
	}
	if !hasNegation || len(words) == 0 {
		return nil
	}

	var found []Contradiction
	for _, node := range existing {
		sim := jaccard(words, titleWords(node.Title))
		if sim >= d.floor {
			found = append(found, Contradiction{NodeID: node.ID, Similarity: sim})
		}
	}
	return found
}
