// Package chunker splits parsed document text into pipeline-sized pieces.
// Paragraphs are merged up toward an ideal size and oversized paragraphs are
// split at sentence boundaries, so each chunk reads as coherent prose.
package chunker

import "strings"

const (
	// MinChunkChars is the floor below which a trailing chunk is merged
	// into its predecessor.
	MinChunkChars = 200

	// IdealChunkChars is the target size paragraphs are merged toward.
	IdealChunkChars = 800

	// MaxChunkChars forces a sentence-boundary split above this size.
	MaxChunkChars = 1500
)

// Chunk is one contiguous piece of the input text.
type Chunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// Split breaks text into chunks. Empty or whitespace-only input produces no
// chunks.
func Split(text string) []Chunk {
	var pieces []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > MaxChunkChars {
			pieces = append(pieces, splitSentences(para)...)
		} else {
			pieces = append(pieces, para)
		}
	}
	if len(pieces) == 0 {
		return nil
	}

	// Merge small pieces toward the ideal size.
	var merged []string
	current := pieces[0]
	for _, p := range pieces[1:] {
		if len(current)+2+len(p) <= IdealChunkChars {
			current += "\n\n" + p
			continue
		}
		merged = append(merged, current)
		current = p
	}
	merged = append(merged, current)

	// A short trailing chunk joins its predecessor rather than standing
	// alone below the floor.
	if n := len(merged); n > 1 && len(merged[n-1]) < MinChunkChars {
		merged[n-2] += "\n\n" + merged[n-1]
		merged = merged[:n-1]
	}

	chunks := make([]Chunk, 0, len(merged))
	pos := 0
	for i, m := range merged {
		chunks = append(chunks, Chunk{
			Index:     i,
			Text:      m,
			CharStart: pos,
			CharEnd:   pos + len(m),
		})
		pos += len(m)
	}
	return chunks
}

// splitSentences breaks an oversized paragraph at sentence boundaries,
// packing sentences up to the max size.
func splitSentences(para string) []string {
	sentences := sentenceSplit(para)

	var out []string
	current := ""
	for _, s := range sentences {
		if current == "" {
			current = s
			continue
		}
		if len(current)+1+len(s) <= MaxChunkChars {
			current += " " + s
			continue
		}
		out = append(out, current)
		current = s
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

// sentenceSplit cuts text after ". ", "! ", or "? ".
func sentenceSplit(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
			start = i + 2
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
