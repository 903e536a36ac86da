package sponge

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spongelab/sponge/store"
)

func fillerParagraph(lead string) string {
	var b strings.Builder
	b.WriteString(lead + ". ")
	for b.Len() < 600 {
		b.WriteString("There is quite a lot of supporting detail in this paragraph to pad it out. ")
	}
	return strings.TrimSpace(b.String())
}

func TestUploadDocument(t *testing.T) {
	e := newTestEngine(t, nil, nil) // stub provider
	sess := onboard(t, e)
	ctx := context.Background()

	text := fillerParagraph("Retention compounds faster than reach for tiny channels") +
		"\n\n" +
		fillerParagraph("Pricing ladders unlock repeat buyers from existing fans")

	got, err := e.UploadDocument(ctx, sess.ID, "notes.txt", "text/plain", []byte(text))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}

	if got.ChunkCount != 2 {
		t.Errorf("chunk count = %d, want 2", got.ChunkCount)
	}
	if got.TotalNuggets != 2 {
		t.Fatalf("total nuggets = %d, want 2", got.TotalNuggets)
	}
	if got.Message != "Processed notes.txt: captured 2 ideas." {
		t.Errorf("message = %q", got.Message)
	}
	if len(got.TopNuggets) != 2 || len(got.DeepDiveOptions) != 2 {
		t.Errorf("top = %d, options = %d, want 2 each", len(got.TopNuggets), len(got.DeepDiveOptions))
	}
	if !strings.Contains(got.DeepDiveOptions[0], "Dig into '") {
		t.Errorf("deep dive option = %q", got.DeepDiveOptions[0])
	}

	// each chunk leaves a synthetic user turn behind
	next, err := e.store.NextTurnNumber(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next != 3 {
		t.Errorf("next turn number = %d, want 3 after two synthetic turns", next)
	}

	// provenance points at the document
	detail, err := e.Node(ctx, got.TopNuggets[0].NodeID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Provenance) != 1 || detail.Provenance[0].SourceType != "upload" {
		t.Fatalf("provenance = %+v, want one upload record", detail.Provenance)
	}
	if detail.Provenance[0].SourceID != got.DocumentID {
		t.Errorf("provenance source = %q, want document id %q", detail.Provenance[0].SourceID, got.DocumentID)
	}
}

func TestUploadValidation(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "sponge.db")
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.MaxUploadBytes = 64

	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	sess := onboard(t, e)
	ctx := context.Background()

	big := []byte(strings.Repeat("x", 65))
	if _, err := e.UploadDocument(ctx, sess.ID, "notes.txt", "text/plain", big); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("oversize error = %v, want ErrFileTooLarge", err)
	}
	if _, err := e.UploadDocument(ctx, sess.ID, "image.png", "image/png", []byte("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unsupported error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := e.UploadDocument(ctx, "missing", "notes.txt", "text/plain", []byte("x")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session error = %v, want ErrSessionNotFound", err)
	}
}

func TestListNuggetsThroughEngine(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	sess := onboard(t, e)
	ctx := context.Background()

	if _, err := e.ChatTurn(ctx, sess.ID, "Retention compounds faster than reach for tiny channels"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ChatTurn(ctx, sess.ID, "Pricing ladders unlock repeat buyers from existing fans"); err != nil {
		t.Fatal(err)
	}

	all, err := e.ListNuggets(ctx, sess.ID, store.ListNuggetsOptions{})
	if err != nil {
		t.Fatalf("ListNuggets() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d nuggets, want 2", len(all))
	}

	if _, err := e.ListNuggets(ctx, sess.ID, store.ListNuggetsOptions{Status: "bogus"}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bogus status error = %v, want ErrInvalidStatus", err)
	}
	if _, err := e.ListNuggets(ctx, "missing", store.ListNuggetsOptions{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session error = %v, want ErrSessionNotFound", err)
	}
}

func TestOnboardValidation(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	if _, err := e.Onboard(context.Background(), "", "topic", "audience"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Onboard with empty project = %v, want ErrInvalidConfig", err)
	}
}

func TestScoreStats(t *testing.T) {
	mean, min, max, stddev := scoreStats([]int{60, 80})
	if mean != 70 || min != 60 || max != 80 || stddev != 10 {
		t.Errorf("scoreStats = %v, %v, %v, %v", mean, min, max, stddev)
	}

	mean, min, max, stddev = scoreStats(nil)
	if mean != 0 || min != 0 || max != 0 || stddev != 0 {
		t.Error("scoreStats of empty input should be all zeros")
	}
}
