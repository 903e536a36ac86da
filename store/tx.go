package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx exposes the mutations one pipeline run performs atomically.
type Tx struct {
	tx *sql.Tx
}

// InsertNode creates a graph node.
func (t *Tx) InsertNode(ctx context.Context, n Node) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO nodes (id, session_id, node_type, title, summary) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.SessionID, n.NodeType, n.Title, n.Summary)
	if err != nil {
		return fmt.Errorf("inserting node: %w", err)
	}
	return nil
}

// TouchNode bumps a node's updated_at, used when a merge lands new
// provenance on an existing node.
func (t *Tx) TouchNode(ctx context.Context, nodeID string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE nodes SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("touching node: %w", err)
	}
	return requireRow(res)
}

// InsertNugget creates a nugget row for a node.
func (t *Tx) InsertNugget(ctx context.Context, n Nugget) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO nuggets (id, session_id, node_id, nugget_type, title, short_summary,
			score, dimension_scores, missing_fields, next_questions, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.SessionID, n.NodeID, n.NuggetType, n.Title, n.ShortSummary,
		n.Score, nullable(n.DimensionScores), nullable(n.MissingFields), nullable(n.NextQuestions),
		statusOrNew(n.Status))
	if err != nil {
		return fmt.Errorf("inserting nugget: %w", err)
	}
	return nil
}

// InsertProvenance records where a node came from.
func (t *Tx) InsertProvenance(ctx context.Context, p Provenance) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO provenance (id, node_id, source_type, source_id, confidence) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.NodeID, p.SourceType, nullable(p.SourceID), nullable(p.Confidence))
	if err != nil {
		return fmt.Errorf("inserting provenance: %w", err)
	}
	return nil
}

// InsertEdge creates a typed edge between two nodes.
func (t *Tx) InsertEdge(ctx context.Context, e Edge) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO edges (id, session_id, source_node_id, target_node_id, edge_type) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.SourceNodeID, e.TargetNodeID, e.EdgeType)
	if err != nil {
		return fmt.Errorf("inserting edge: %w", err)
	}
	return nil
}

// UpdateNuggetQuestions replaces the stored question candidates for a
// node's nugget.
func (t *Tx) UpdateNuggetQuestions(ctx context.Context, nodeID, questionsJSON string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE nuggets SET next_questions = ?, updated_at = CURRENT_TIMESTAMP WHERE node_id = ?`,
		questionsJSON, nodeID)
	if err != nil {
		return fmt.Errorf("updating nugget questions: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func statusOrNew(s string) string {
	if s == "" {
		return "new"
	}
	return s
}
