// Package store wraps the SQLite database for all sponge persistence:
// sessions, chat turns, graph nodes and edges, nuggets, provenance, and
// uploaded documents.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// embeddingDim is the vec_nodes vector width. Embeddings are optional
// today; the table exists so a semantic dedup path can fill it in later.
const embeddingDim = 768

// Session represents a row in the sessions table.
type Session struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	Topic       string `json:"topic"`
	Audience    string `json:"audience"`
	CreatedAt   string `json:"created_at"`
}

// ChatTurn represents a row in the chat_turns table.
type ChatTurn struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	TurnNumber int    `json:"turn_number"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

// Node represents a row in the nodes table.
type Node struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	NodeType  string `json:"node_type"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Edge represents a row in the edges table.
type Edge struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	SourceNodeID string `json:"source_node_id"`
	TargetNodeID string `json:"target_node_id"`
	EdgeType     string `json:"edge_type"`
	CreatedAt    string `json:"created_at"`
}

// Nugget represents a row in the nuggets table. The JSON columns hold
// serialized dimension scores, missing fields, and question candidates.
type Nugget struct {
	ID              string  `json:"id"`
	SessionID       string  `json:"session_id"`
	NodeID          string  `json:"node_id"`
	NuggetType      string  `json:"nugget_type"`
	Title           string  `json:"title"`
	ShortSummary    string  `json:"short_summary"`
	Score           int     `json:"score"`
	DimensionScores string  `json:"dimension_scores,omitempty"`
	MissingFields   string  `json:"missing_fields,omitempty"`
	NextQuestions   string  `json:"next_questions,omitempty"`
	Status          string  `json:"status"`
	UserFeedback    *string `json:"user_feedback,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// Provenance represents a row in the provenance table.
type Provenance struct {
	ID         string `json:"id"`
	NodeID     string `json:"node_id"`
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	Confidence string `json:"confidence"`
	CreatedAt  string `json:"created_at"`
}

// Document represents a row in the documents table.
type Document struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	StoragePath string `json:"storage_path"`
	SizeBytes   int64  `json:"size_bytes"`
	CreatedAt   string `json:"created_at"`
}

// NodeRef is the minimal node slice the dedup and contradiction engines
// compare against.
type NodeRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// GraphNode is a node with its nugget score, when one exists.
type GraphNode struct {
	Node
	Score *int `json:"score,omitempty"`
}

// Store wraps the SQLite database for all sponge persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_name, topic, audience) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.ProjectName, sess.Topic, sess.Audience)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_name, topic, audience, created_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.ProjectName, &sess.Topic, &sess.Audience, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &sess, nil
}

// NextTurnNumber returns the next turn number for a session.
func (s *Store) NextTurnNumber(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn_number), 0) + 1 FROM chat_turns WHERE session_id = ?`, sessionID).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying turn number: %w", err)
	}
	return n, nil
}

// InsertChatTurn records one conversation turn.
func (s *Store) InsertChatTurn(ctx context.Context, turn ChatTurn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (id, session_id, turn_number, role, content) VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.TurnNumber, turn.Role, turn.Content)
	if err != nil {
		return fmt.Errorf("inserting chat turn: %w", err)
	}
	return nil
}

// HighValueNuggets returns up to limit non-downvoted nuggets at or above
// minScore, best first. Used to build extraction context.
func (s *Store) HighValueNuggets(ctx context.Context, sessionID string, minScore, limit int) ([]Nugget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nuggetColumns+`
		FROM nuggets
		WHERE session_id = ? AND score >= ?
		  AND (user_feedback IS NULL OR user_feedback != 'down')
		ORDER BY score DESC, created_at DESC
		LIMIT ?`, sessionID, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("querying high-value nuggets: %w", err)
	}
	defer rows.Close()
	return scanNuggets(rows)
}

// DownvotedTitles returns up to limit titles the user voted down.
func (s *Store) DownvotedTitles(ctx context.Context, sessionID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title FROM nuggets
		WHERE session_id = ? AND user_feedback = 'down'
		ORDER BY updated_at DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying downvoted titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// ExistingNodes returns up to limit node refs for similarity comparison,
// most recent first.
func (s *Store) ExistingNodes(ctx context.Context, sessionID string, limit int) ([]NodeRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title FROM nodes
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying existing nodes: %w", err)
	}
	defer rows.Close()

	var refs []NodeRef
	for rows.Next() {
		var r NodeRef
		if err := rows.Scan(&r.ID, &r.Title); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// CountNodes returns the number of nodes in a session.
func (s *Store) CountNodes(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting nodes: %w", err)
	}
	return n, nil
}

// CountDedupEdges returns the number of expands_on and contradicts edges in
// a session, the numerator of the session dedup rate.
func (s *Store) CountDedupEdges(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM edges WHERE session_id = ? AND edge_type IN ('expands_on', 'contradicts')`,
		sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting dedup edges: %w", err)
	}
	return n, nil
}

// GraphSubset returns up to limit nodes for display, highest nugget score
// first (unscored nodes last, newest first), excluding downvoted ones, plus
// every edge whose endpoints are both in the returned set.
func (s *Store) GraphSubset(ctx context.Context, sessionID string, limit int) ([]GraphNode, []Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.session_id, n.node_type, n.title, n.summary, n.created_at, n.updated_at, g.score
		FROM nodes n
		LEFT JOIN nuggets g ON g.node_id = n.id
		WHERE n.session_id = ?
		  AND (g.user_feedback IS NULL OR g.user_feedback != 'down')
		ORDER BY (g.score IS NULL), g.score DESC, n.created_at DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []GraphNode
	ids := make(map[string]bool)
	for rows.Next() {
		var n GraphNode
		var score sql.NullInt64
		if err := rows.Scan(&n.ID, &n.SessionID, &n.NodeType, &n.Title, &n.Summary,
			&n.CreatedAt, &n.UpdatedAt, &score); err != nil {
			return nil, nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			n.Score = &v
		}
		nodes = append(nodes, n)
		ids[n.ID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	erows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, source_node_id, target_node_id, edge_type, created_at
		FROM edges WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying edges: %w", err)
	}
	defer erows.Close()

	var edges []Edge
	for erows.Next() {
		var e Edge
		if err := erows.Scan(&e.ID, &e.SessionID, &e.SourceNodeID, &e.TargetNodeID, &e.EdgeType, &e.CreatedAt); err != nil {
			return nil, nil, err
		}
		if ids[e.SourceNodeID] && ids[e.TargetNodeID] {
			edges = append(edges, e)
		}
	}
	return nodes, edges, erows.Err()
}

// ListNuggetsOptions filters and orders ListNuggets. Zero values mean no
// filter; SortBy is "score" (default) or "created_at".
type ListNuggetsOptions struct {
	NuggetType string
	Status     string
	SortBy     string
}

// ListNuggets returns a session's nuggets with optional filters.
func (s *Store) ListNuggets(ctx context.Context, sessionID string, opts ListNuggetsOptions) ([]Nugget, error) {
	q := `SELECT ` + nuggetColumns + ` FROM nuggets WHERE session_id = ?`
	args := []interface{}{sessionID}
	if opts.NuggetType != "" {
		q += ` AND nugget_type = ?`
		args = append(args, opts.NuggetType)
	}
	if opts.Status != "" {
		q += ` AND status = ?`
		args = append(args, opts.Status)
	}
	if opts.SortBy == "created_at" {
		q += ` ORDER BY created_at DESC`
	} else {
		q += ` ORDER BY score DESC, created_at DESC`
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nuggets: %w", err)
	}
	defer rows.Close()
	return scanNuggets(rows)
}

// GetNugget fetches a nugget by id.
func (s *Store) GetNugget(ctx context.Context, id string) (*Nugget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nuggetColumns+` FROM nuggets WHERE id = ?`, id)
	n, err := scanNugget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying nugget: %w", err)
	}
	return n, nil
}

// UpdateNuggetFeedback sets the feedback flag and the (possibly boosted)
// score in one statement.
func (s *Store) UpdateNuggetFeedback(ctx context.Context, id string, feedback *string, score int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE nuggets SET user_feedback = ?, score = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		feedback, score, id)
	if err != nil {
		return fmt.Errorf("updating feedback: %w", err)
	}
	return requireRow(res)
}

// UpdateNuggetStatus moves a nugget between new, explored, and parked.
func (s *Store) UpdateNuggetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE nuggets SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return requireRow(res)
}

// NodeDetail returns a node with its nugget (nil when the node has none)
// and provenance records.
func (s *Store) NodeDetail(ctx context.Context, nodeID string) (*Node, *Nugget, []Provenance, error) {
	var n Node
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, node_type, title, summary, created_at, updated_at FROM nodes WHERE id = ?`,
		nodeID).
		Scan(&n.ID, &n.SessionID, &n.NodeType, &n.Title, &n.Summary, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("querying node: %w", err)
	}

	var nugget *Nugget
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nuggetColumns+` FROM nuggets WHERE node_id = ?`, nodeID)
	ng, err := scanNugget(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, nil, nil, fmt.Errorf("querying node nugget: %w", err)
	default:
		nugget = ng
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_id, source_type, COALESCE(source_id, ''), COALESCE(confidence, ''), created_at
		FROM provenance WHERE node_id = ? ORDER BY created_at`, nodeID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("querying provenance: %w", err)
	}
	defer rows.Close()

	var provs []Provenance
	for rows.Next() {
		var p Provenance
		if err := rows.Scan(&p.ID, &p.NodeID, &p.SourceType, &p.SourceID, &p.Confidence, &p.CreatedAt); err != nil {
			return nil, nil, nil, err
		}
		provs = append(provs, p)
	}
	return &n, nugget, provs, rows.Err()
}

// InsertDocument records an uploaded document.
func (s *Store) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, session_id, filename, content_type, storage_path, size_bytes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.SessionID, doc.Filename, doc.ContentType, doc.StoragePath, doc.SizeBytes)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// UpsertNodeEmbedding stores an embedding for a node in vec_nodes.
func (s *Store) UpsertNodeEmbedding(ctx context.Context, nodeID string, embedding []float32) error {
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("serializing embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vec_nodes (node_rowid, embedding)
		SELECT rowid, ? FROM nodes WHERE id = ?`, blob, nodeID)
	if err != nil {
		return fmt.Errorf("upserting node embedding: %w", err)
	}
	return nil
}

// NearestNodes returns the k nodes closest to the query embedding.
func (s *Store) NearestNodes(ctx context.Context, embedding []float32, k int) ([]NodeRef, error) {
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serializing embedding: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.title
		FROM vec_nodes v
		JOIN nodes n ON n.rowid = v.node_rowid
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("querying nearest nodes: %w", err)
	}
	defer rows.Close()

	var refs []NodeRef
	for rows.Next() {
		var r NodeRef
		if err := rows.Scan(&r.ID, &r.Title); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

const nuggetColumns = `id, session_id, node_id, nugget_type, title,
	COALESCE(short_summary, ''), score,
	COALESCE(dimension_scores, ''), COALESCE(missing_fields, ''), COALESCE(next_questions, ''),
	status, user_feedback, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNugget(row rowScanner) (*Nugget, error) {
	var n Nugget
	err := row.Scan(&n.ID, &n.SessionID, &n.NodeID, &n.NuggetType, &n.Title,
		&n.ShortSummary, &n.Score,
		&n.DimensionScores, &n.MissingFields, &n.NextQuestions,
		&n.Status, &n.UserFeedback, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNuggets(rows *sql.Rows) ([]Nugget, error) {
	var nuggets []Nugget
	for rows.Next() {
		n, err := scanNugget(rows)
		if err != nil {
			return nil, err
		}
		nuggets = append(nuggets, *n)
	}
	return nuggets, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
