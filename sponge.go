// Package sponge captures knowledge from expert conversations. Each chat
// message or uploaded document runs through an LLM extraction pipeline that
// scores candidate nuggets, deduplicates them against the session's
// knowledge graph, links related ideas, and proposes the next question to
// ask.
package sponge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/spongelab/sponge/chunker"
	"github.com/spongelab/sponge/filestore"
	"github.com/spongelab/sponge/llm"
	"github.com/spongelab/sponge/parser"
	"github.com/spongelab/sponge/store"
)

// UpvoteScoreBoost is added to a nugget's score on its first upvote and
// removed again if the vote flips to down.
const UpvoteScoreBoost = 5

// uploadChunkPreview caps how much of a chunk lands in the synthetic chat
// turn recorded for an upload.
const uploadChunkPreview = 500

// Engine is the public entry point, owning storage, parsing, and the
// extraction pipeline.
type Engine struct {
	cfg      Config
	store    *store.Store
	files    *filestore.Store
	parsers  *parser.Registry
	pipeline *ExtractionPipeline
}

// Option customises engine construction.
type Option func(*options)

type options struct {
	provider llm.Provider
	sink     MetricsSink
}

// WithProvider overrides the configured LLM provider, mainly for tests.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithMetricsSink replaces the default log-backed metrics sink.
func WithMetricsSink(s MetricsSink) Option {
	return func(o *options) { o.sink = s }
}

// New creates an engine from configuration.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.provider == nil {
		p, err := llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		o.provider = p
	}
	if o.sink == nil {
		o.sink = LogSink{}
	}

	st, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, err
	}
	fs, err := filestore.New(cfg.UploadDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := llm.NewClient(o.provider, cfg.LLM.Model, cfg.MaxValidationRetries)
	return &Engine{
		cfg:      cfg,
		store:    st,
		files:    fs,
		parsers:  parser.Default(),
		pipeline: NewPipeline(st, client, cfg, o.sink),
	}, nil
}

// Close releases the underlying database.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Onboard starts a capture session. All three fields feed the extraction
// context, so none may be empty.
func (e *Engine) Onboard(ctx context.Context, projectName, topic, audience string) (*store.Session, error) {
	projectName = strings.TrimSpace(projectName)
	topic = strings.TrimSpace(topic)
	audience = strings.TrimSpace(audience)
	if projectName == "" || topic == "" || audience == "" {
		return nil, fmt.Errorf("%w: project name, topic, and audience are required", ErrInvalidConfig)
	}

	sess := store.Session{
		ID:          uuid.NewString(),
		ProjectName: projectName,
		Topic:       topic,
		Audience:    audience,
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ChatTurnResult is the response to one user message.
type ChatTurnResult struct {
	SessionID  string          `json:"session_id"`
	TurnNumber int             `json:"turn_number"`
	Reply      string          `json:"reply"`
	Result     *PipelineResult `json:"result"`
}

// ChatTurn records a user message, runs the extraction pipeline on it, and
// records the assistant's reply.
func (e *Engine) ChatTurn(ctx context.Context, sessionID, message string) (*ChatTurnResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := e.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turnNumber, err := e.store.NextTurnNumber(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	userTurn := store.ChatTurn{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		TurnNumber: turnNumber,
		Role:       "user",
		Content:    message,
	}
	if err := e.store.InsertChatTurn(ctx, userTurn); err != nil {
		return nil, err
	}

	result, err := e.pipeline.Run(ctx, PipelineInput{
		Session:    *sess,
		Message:    message,
		TurnNumber: turnNumber,
		SourceType: "chat",
		SourceID:   userTurn.ID,
	})
	if err != nil {
		return nil, err
	}

	reply := composeReply(result)
	if err := e.store.InsertChatTurn(ctx, store.ChatTurn{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		TurnNumber: turnNumber + 1,
		Role:       "assistant",
		Content:    reply,
	}); err != nil {
		return nil, err
	}

	return &ChatTurnResult{
		SessionID:  sessionID,
		TurnNumber: turnNumber,
		Reply:      reply,
		Result:     result,
	}, nil
}

// composeReply builds the assistant turn from a pipeline result.
func composeReply(r *PipelineResult) string {
	if r.Failed {
		return r.FailureMessage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Captured %d %s from that.", len(r.Nuggets), pluralize("idea", len(r.Nuggets)))
	if r.Contradictions > 0 {
		fmt.Fprintf(&b, " Heads up: %d of them may contradict something you said earlier.", r.Contradictions)
	}
	if r.NextQuestion != nil {
		b.WriteString(" " + r.NextQuestion.Question)
	}
	return b.String()
}

// UploadResult is the response to a document upload.
type UploadResult struct {
	DocumentID      string           `json:"document_id"`
	Filename        string           `json:"filename"`
	ChunkCount      int              `json:"chunk_count"`
	Message         string           `json:"message"`
	TopNuggets      []CapturedNugget `json:"top_nuggets"`
	DeepDiveOptions []string         `json:"deep_dive_options"`
	TotalNuggets    int              `json:"total_nuggets"`
}

// UploadDocument stores and parses an uploaded file, then runs the
// pipeline once per text chunk.
func (e *Engine) UploadDocument(ctx context.Context, sessionID, filename, contentType string, data []byte) (*UploadResult, error) {
	if int64(len(data)) > e.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, len(data), e.cfg.MaxUploadBytes)
	}
	if !e.parsers.Supported(filename) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	sess, err := e.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	storagePath, err := e.files.Save(filename, data)
	if err != nil {
		return nil, err
	}
	doc := store.Document{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Filename:    filename,
		ContentType: contentType,
		StoragePath: storagePath,
		SizeBytes:   int64(len(data)),
	}
	if err := e.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	text, err := e.parsers.Parse(filename, data)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupported) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
		}
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	chunks := chunker.Split(text)
	var all []CapturedNugget
	for _, c := range chunks {
		turnNumber, err := e.store.NextTurnNumber(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		synthetic := fmt.Sprintf("[Upload: %s] %s", filename, truncateRunes(c.Text, uploadChunkPreview))
		if err := e.store.InsertChatTurn(ctx, store.ChatTurn{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			TurnNumber: turnNumber,
			Role:       "user",
			Content:    synthetic,
		}); err != nil {
			return nil, err
		}

		result, err := e.pipeline.Run(ctx, PipelineInput{
			Session:    *sess,
			Message:    c.Text,
			TurnNumber: turnNumber,
			SourceType: "upload",
			SourceID:   doc.ID,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, result.Nuggets...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	top := all
	if len(top) > 3 {
		top = top[:3]
	}

	return &UploadResult{
		DocumentID:      doc.ID,
		Filename:        filename,
		ChunkCount:      len(chunks),
		Message:         uploadMessage(filename, all),
		TopNuggets:      top,
		DeepDiveOptions: deepDiveOptions(top),
		TotalNuggets:    len(all),
	}, nil
}

// uploadMessage summarises per-type counts, e.g.
// "Processed notes.txt: captured 3 ideas and 1 story."
func uploadMessage(filename string, nuggets []CapturedNugget) string {
	if len(nuggets) == 0 {
		return fmt.Sprintf("Processed %s but couldn't capture any distinct ideas from it.", filename)
	}

	counts := make(map[string]int)
	var order []string
	for _, n := range nuggets {
		if counts[n.NuggetType] == 0 {
			order = append(order, n.NuggetType)
		}
		counts[n.NuggetType]++
	}

	parts := make([]string, 0, len(order))
	for _, t := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[t], pluralize(t, counts[t])))
	}
	return fmt.Sprintf("Processed %s: captured %s.", filename, joinNatural(parts))
}

// deepDiveOptions proposes follow-ups built from the top nuggets' gaps.
func deepDiveOptions(top []CapturedNugget) []string {
	var opts []string
	for _, n := range top {
		gap := "example"
		if len(n.MissingFields) > 0 {
			gap = n.MissingFields[0]
		}
		opts = append(opts, fmt.Sprintf("Dig into '%s': add a concrete %s", n.Title, gap))
		if len(opts) == 3 {
			break
		}
	}
	return opts
}

// GraphView is the bounded graph projection for display.
type GraphView struct {
	Nodes []store.GraphNode `json:"nodes"`
	Edges []store.Edge      `json:"edges"`
}

// Graph returns the session's top nodes and the edges between them.
func (e *Engine) Graph(ctx context.Context, sessionID string) (*GraphView, error) {
	if _, err := e.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	nodes, edges, err := e.store.GraphSubset(ctx, sessionID, e.cfg.GraphNodeLimit)
	if err != nil {
		return nil, err
	}
	return &GraphView{Nodes: nodes, Edges: edges}, nil
}

// NodeDetail is one node with its nugget and provenance.
type NodeDetail struct {
	Node       store.Node         `json:"node"`
	Nugget     *store.Nugget      `json:"nugget,omitempty"`
	Provenance []store.Provenance `json:"provenance"`
}

// Node returns full detail for one graph node.
func (e *Engine) Node(ctx context.Context, nodeID string) (*NodeDetail, error) {
	node, nugget, provs, err := e.store.NodeDetail(ctx, nodeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &NodeDetail{Node: *node, Nugget: nugget, Provenance: provs}, nil
}

// ListNuggets returns a session's nuggets, filtered by type and status.
func (e *Engine) ListNuggets(ctx context.Context, sessionID string, opts store.ListNuggetsOptions) ([]store.Nugget, error) {
	if _, err := e.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if opts.Status != "" && !validStatus(opts.Status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, opts.Status)
	}
	return e.store.ListNuggets(ctx, sessionID, opts)
}

// SubmitFeedback records an up or down vote. The first upvote boosts the
// score; flipping to down takes the boost back.
func (e *Engine) SubmitFeedback(ctx context.Context, nuggetID, feedback string) (*store.Nugget, error) {
	if feedback != "up" && feedback != "down" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFeedback, feedback)
	}

	nugget, err := e.getNugget(ctx, nuggetID)
	if err != nil {
		return nil, err
	}

	score := nugget.Score
	prev := ""
	if nugget.UserFeedback != nil {
		prev = *nugget.UserFeedback
	}
	switch {
	case feedback == "up" && prev != "up":
		score += UpvoteScoreBoost
		if score > 100 {
			score = 100
		}
	case feedback == "down" && prev == "up":
		score -= UpvoteScoreBoost
		if score < 0 {
			score = 0
		}
	}

	if err := e.store.UpdateNuggetFeedback(ctx, nuggetID, &feedback, score); err != nil {
		return nil, err
	}
	return e.getNugget(ctx, nuggetID)
}

// Feedback returns the current vote on a nugget, empty when unset.
func (e *Engine) Feedback(ctx context.Context, nuggetID string) (string, error) {
	nugget, err := e.getNugget(ctx, nuggetID)
	if err != nil {
		return "", err
	}
	if nugget.UserFeedback == nil {
		return "", nil
	}
	return *nugget.UserFeedback, nil
}

// UpdateStatus moves a nugget between new, explored, and parked.
func (e *Engine) UpdateStatus(ctx context.Context, nuggetID, status string) (*store.Nugget, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	if err := e.store.UpdateNuggetStatus(ctx, nuggetID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNuggetNotFound
		}
		return nil, err
	}
	return e.getNugget(ctx, nuggetID)
}

func (e *Engine) getSession(ctx context.Context, id string) (*store.Session, error) {
	sess, err := e.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

func (e *Engine) getNugget(ctx context.Context, id string) (*store.Nugget, error) {
	nugget, err := e.store.GetNugget(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNuggetNotFound
	}
	return nugget, err
}

func validStatus(s string) bool {
	return s == "new" || s == "explored" || s == "parked"
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	switch word {
	case "story":
		return "stories"
	default:
		return word + "s"
	}
}

func joinNatural(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}
