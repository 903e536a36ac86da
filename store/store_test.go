package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSession(t *testing.T, s *Store) Session {
	t.Helper()
	sess := Session{
		ID:          uuid.NewString(),
		ProjectName: "Creator Handbook",
		Topic:       "audience growth",
		Audience:    "indie developers",
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return sess
}

// addNode inserts a node with an optional scored nugget and returns the ids.
func addNode(t *testing.T, s *Store, sessionID, title string, score int, feedback *string) (nodeID, nuggetID string) {
	t.Helper()
	ctx := context.Background()
	nodeID = uuid.NewString()
	nuggetID = uuid.NewString()
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertNode(ctx, Node{
			ID: nodeID, SessionID: sessionID, NodeType: "idea", Title: title, Summary: "summary of " + title,
		}); err != nil {
			return err
		}
		return tx.InsertNugget(ctx, Nugget{
			ID: nuggetID, SessionID: sessionID, NodeID: nodeID,
			NuggetType: "idea", Title: title, ShortSummary: "summary of " + title, Score: score,
		})
	})
	if err != nil {
		t.Fatalf("adding node: %v", err)
	}
	if feedback != nil {
		if err := s.UpdateNuggetFeedback(ctx, nuggetID, feedback, score); err != nil {
			t.Fatalf("setting feedback: %v", err)
		}
	}
	return nodeID, nuggetID
}

func strPtr(s string) *string { return &s }

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)

	got, err := s.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ProjectName != sess.ProjectName || got.Topic != sess.Topic || got.Audience != sess.Audience {
		t.Errorf("got %+v, want fields of %+v", got, sess)
	}

	if _, err := s.GetSession(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing session error = %v, want ErrNotFound", err)
	}
}

func TestTurnNumbersIncrement(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)
	ctx := context.Background()

	n, err := s.NextTurnNumber(ctx, sess.ID)
	if err != nil || n != 1 {
		t.Fatalf("NextTurnNumber() = %d, %v, want 1", n, err)
	}

	for i := 1; i <= 2; i++ {
		err := s.InsertChatTurn(ctx, ChatTurn{
			ID: uuid.NewString(), SessionID: sess.ID, TurnNumber: i, Role: "user", Content: "hello",
		})
		if err != nil {
			t.Fatalf("inserting turn %d: %v", i, err)
		}
	}

	n, err = s.NextTurnNumber(ctx, sess.ID)
	if err != nil || n != 3 {
		t.Fatalf("NextTurnNumber() = %d, %v, want 3", n, err)
	}

	// duplicate turn numbers are rejected by the unique constraint
	err = s.InsertChatTurn(ctx, ChatTurn{
		ID: uuid.NewString(), SessionID: sess.ID, TurnNumber: 2, Role: "user", Content: "again",
	})
	if err == nil {
		t.Error("expected unique constraint violation for duplicate turn number")
	}
}

func TestHighValueNuggetsExcludesDownvoted(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)

	addNode(t, s, sess.ID, "Retention beats reach", 80, nil)
	addNode(t, s, sess.ID, "Pricing ladders work", 90, strPtr("down"))
	addNode(t, s, sess.ID, "Low energy idea", 40, nil)

	got, err := s.HighValueNuggets(context.Background(), sess.ID, 60, 5)
	if err != nil {
		t.Fatalf("HighValueNuggets() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Retention beats reach" {
		t.Errorf("got %+v, want only the high-score non-downvoted nugget", got)
	}
}

func TestDownvotedTitles(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)

	addNode(t, s, sess.ID, "Keep this", 80, nil)
	addNode(t, s, sess.ID, "Drop this", 70, strPtr("down"))

	got, err := s.DownvotedTitles(context.Background(), sess.ID, 10)
	if err != nil {
		t.Fatalf("DownvotedTitles() error = %v", err)
	}
	if len(got) != 1 || got[0] != "Drop this" {
		t.Errorf("DownvotedTitles() = %v, want [Drop this]", got)
	}
}

func TestGraphSubsetOrderingAndEdges(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)
	ctx := context.Background()

	lowID, _ := addNode(t, s, sess.ID, "Low score node", 40, nil)
	highID, _ := addNode(t, s, sess.ID, "High score node", 90, nil)
	downID, _ := addNode(t, s, sess.ID, "Downvoted node", 95, strPtr("down"))

	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertEdge(ctx, Edge{
			ID: uuid.NewString(), SessionID: sess.ID,
			SourceNodeID: highID, TargetNodeID: lowID, EdgeType: "related_to",
		}); err != nil {
			return err
		}
		// edge to the excluded node must be filtered out
		return tx.InsertEdge(ctx, Edge{
			ID: uuid.NewString(), SessionID: sess.ID,
			SourceNodeID: highID, TargetNodeID: downID, EdgeType: "related_to",
		})
	})
	if err != nil {
		t.Fatalf("inserting edges: %v", err)
	}

	nodes, edges, err := s.GraphSubset(ctx, sess.ID, 20)
	if err != nil {
		t.Fatalf("GraphSubset() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2 (downvoted excluded)", len(nodes))
	}
	if nodes[0].ID != highID || nodes[1].ID != lowID {
		t.Errorf("nodes ordered %s, %s; want high score first", nodes[0].Title, nodes[1].Title)
	}
	if len(edges) != 1 || edges[0].TargetNodeID != lowID {
		t.Errorf("edges = %+v, want only the edge between included nodes", edges)
	}
}

func TestGraphSubsetLimit(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)

	for i := 0; i < 25; i++ {
		addNode(t, s, sess.ID, uuid.NewString()+" node", 50+i, nil)
	}

	nodes, _, err := s.GraphSubset(context.Background(), sess.ID, 20)
	if err != nil {
		t.Fatalf("GraphSubset() error = %v", err)
	}
	if len(nodes) != 20 {
		t.Errorf("got %d nodes, want 20", len(nodes))
	}
}

func TestCountDedupEdges(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)
	ctx := context.Background()

	a, _ := addNode(t, s, sess.ID, "Node a", 50, nil)
	b, _ := addNode(t, s, sess.ID, "Node b", 50, nil)

	err := s.WithTx(ctx, func(tx *Tx) error {
		for _, et := range []string{"expands_on", "contradicts", "related_to"} {
			if err := tx.InsertEdge(ctx, Edge{
				ID: uuid.NewString(), SessionID: sess.ID,
				SourceNodeID: a, TargetNodeID: b, EdgeType: et,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inserting edges: %v", err)
	}

	n, err := s.CountDedupEdges(ctx, sess.ID)
	if err != nil {
		t.Fatalf("CountDedupEdges() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountDedupEdges() = %d, want 2 (related_to excluded)", n)
	}
}

func TestListNuggetsFilters(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)
	ctx := context.Background()

	_, parkedID := addNode(t, s, sess.ID, "Parked story", 60, nil)
	addNode(t, s, sess.ID, "Fresh idea", 70, nil)
	if err := s.UpdateNuggetStatus(ctx, parkedID, "parked"); err != nil {
		t.Fatalf("UpdateNuggetStatus() error = %v", err)
	}

	got, err := s.ListNuggets(ctx, sess.ID, ListNuggetsOptions{Status: "parked"})
	if err != nil {
		t.Fatalf("ListNuggets() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Parked story" {
		t.Errorf("ListNuggets(parked) = %+v", got)
	}

	all, err := s.ListNuggets(ctx, sess.ID, ListNuggetsOptions{})
	if err != nil {
		t.Fatalf("ListNuggets() error = %v", err)
	}
	if len(all) != 2 || all[0].Title != "Fresh idea" {
		t.Errorf("ListNuggets() = %+v, want score-descending order", all)
	}
}

func TestFeedbackAndStatusUpdates(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)
	ctx := context.Background()

	_, nuggetID := addNode(t, s, sess.ID, "Feedback target", 60, nil)

	if err := s.UpdateNuggetFeedback(ctx, nuggetID, strPtr("up"), 65); err != nil {
		t.Fatalf("UpdateNuggetFeedback() error = %v", err)
	}
	got, err := s.GetNugget(ctx, nuggetID)
	if err != nil {
		t.Fatalf("GetNugget() error = %v", err)
	}
	if got.Score != 65 || got.UserFeedback == nil || *got.UserFeedback != "up" {
		t.Errorf("nugget after feedback = %+v", got)
	}

	if err := s.UpdateNuggetFeedback(ctx, uuid.NewString(), strPtr("up"), 65); !errors.Is(err, ErrNotFound) {
		t.Errorf("feedback on missing nugget = %v, want ErrNotFound", err)
	}
	if err := s.UpdateNuggetStatus(ctx, uuid.NewString(), "parked"); !errors.Is(err, ErrNotFound) {
		t.Errorf("status on missing nugget = %v, want ErrNotFound", err)
	}
}

func TestNodeDetail(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)
	ctx := context.Background()

	nodeID, _ := addNode(t, s, sess.ID, "Detailed node", 70, nil)
	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertProvenance(ctx, Provenance{
			ID: uuid.NewString(), NodeID: nodeID, SourceType: "chat", SourceID: "turn-1", Confidence: "high",
		})
	})
	if err != nil {
		t.Fatalf("inserting provenance: %v", err)
	}

	node, nugget, provs, err := s.NodeDetail(ctx, nodeID)
	if err != nil {
		t.Fatalf("NodeDetail() error = %v", err)
	}
	if node.Title != "Detailed node" {
		t.Errorf("node = %+v", node)
	}
	if nugget == nil || nugget.Score != 70 {
		t.Errorf("nugget = %+v, want score 70", nugget)
	}
	if len(provs) != 1 || provs[0].Confidence != "high" {
		t.Errorf("provenance = %+v", provs)
	}

	if _, _, _, err := s.NodeDetail(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing node error = %v, want ErrNotFound", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertNode(ctx, Node{
			ID: uuid.NewString(), SessionID: sess.ID, NodeType: "idea", Title: "Doomed node",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	n, err := s.CountNodes(ctx, sess.ID)
	if err != nil {
		t.Fatalf("CountNodes() error = %v", err)
	}
	if n != 0 {
		t.Errorf("node count after rollback = %d, want 0", n)
	}
}

func TestNodeEmbeddings(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t, s)
	ctx := context.Background()

	nodeID, _ := addNode(t, s, sess.ID, "Embedded node", 50, nil)

	emb := make([]float32, embeddingDim)
	emb[0] = 1
	if err := s.UpsertNodeEmbedding(ctx, nodeID, emb); err != nil {
		t.Fatalf("UpsertNodeEmbedding() error = %v", err)
	}

	got, err := s.NearestNodes(ctx, emb, 1)
	if err != nil {
		t.Fatalf("NearestNodes() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != nodeID {
		t.Errorf("NearestNodes() = %+v, want the embedded node", got)
	}
}
