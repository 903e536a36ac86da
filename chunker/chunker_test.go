package chunker

import (
	"strings"
	"testing"
)

func TestSplitEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\n"} {
		if got := Split(in); got != nil {
			t.Errorf("Split(%q) = %v, want nil", in, got)
		}
	}
}

func TestSplitSingleParagraph(t *testing.T) {
	got := Split("A short paragraph about retention.")
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1", len(got))
	}
	if got[0].Index != 0 || got[0].CharStart != 0 {
		t.Errorf("chunk = %+v", got[0])
	}
}

func TestSplitMergesSmallParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 40) // ~200 chars
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	got := Split(text)
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1 merged chunk (total under ideal size)", len(got))
	}
	if !strings.Contains(got[0].Text, "\n\n") {
		t.Error("merged chunk should keep paragraph separators")
	}
}

func TestSplitRespectsIdealSize(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("word ", 120)) // ~600 chars
	text := para + "\n\n" + para + "\n\n" + para

	got := Split(text)
	if len(got) < 2 {
		t.Fatalf("got %d chunks, want paragraphs split across chunks", len(got))
	}
	for _, c := range got {
		if len(c.Text) > MaxChunkChars {
			t.Errorf("chunk %d has %d chars, exceeds max", c.Index, len(c.Text))
		}
	}
}

func TestSplitBreaksOversizedParagraphAtSentences(t *testing.T) {
	sentence := "This sentence is about growing a small audience with consistency. "
	para := strings.TrimSpace(strings.Repeat(sentence, 40)) // ~2600 chars, no blank lines

	got := Split(para)
	if len(got) < 2 {
		t.Fatalf("got %d chunks, want oversized paragraph split", len(got))
	}
	for _, c := range got {
		if len(c.Text) > MaxChunkChars {
			t.Errorf("chunk %d has %d chars, exceeds max", c.Index, len(c.Text))
		}
		if !strings.HasSuffix(strings.TrimSpace(c.Text), ".") {
			t.Errorf("chunk %d does not end on a sentence boundary: %q", c.Index, c.Text[len(c.Text)-20:])
		}
	}
}

func TestSplitMergesShortTrailingChunk(t *testing.T) {
	big := strings.TrimSpace(strings.Repeat("word ", 165)) // just over ideal size
	tiny := "Tiny trailing thought."
	got := Split(big + "\n\n" + tiny)

	if len(got) != 1 {
		t.Fatalf("got %d chunks, want trailing chunk merged", len(got))
	}
	if !strings.Contains(got[0].Text, tiny) {
		t.Error("trailing text missing from merged chunk")
	}
}

func TestSplitOffsetsAreContiguous(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("word ", 120))
	got := Split(para + "\n\n" + para + "\n\n" + para)

	for i, c := range got {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.CharEnd-c.CharStart != len(c.Text) {
			t.Errorf("chunk %d offsets span %d, text is %d chars", i, c.CharEnd-c.CharStart, len(c.Text))
		}
		if i > 0 && c.CharStart != got[i-1].CharEnd {
			t.Errorf("chunk %d starts at %d, previous ended at %d", i, c.CharStart, got[i-1].CharEnd)
		}
	}
}
