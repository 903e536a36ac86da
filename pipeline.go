package sponge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spongelab/sponge/graph"
	"github.com/spongelab/sponge/llm"
	"github.com/spongelab/sponge/store"
)

// Terminal pipeline messages returned to the user when a run produces
// nothing worth keeping.
const (
	msgNoNuggets  = "I couldn't identify any distinct ideas from what you shared."
	msgLowQuality = "The ideas I captured seem too vague or general to be useful."
)

// Context assembly limits for each extraction run.
const (
	contextNuggetLimit    = 5
	contextNuggetMinScore = 60
	contextDownvotedLimit = 10
)

// ExtractionPipeline turns one user message into scored, deduplicated graph
// nodes plus a follow-up question.
type ExtractionPipeline struct {
	store          *store.Store
	client         *llm.Client
	deduper        *graph.Deduper
	contradictions *graph.ContradictionDetector
	sink           MetricsSink
	cfg            Config
}

// NewPipeline wires a pipeline from its parts.
func NewPipeline(st *store.Store, client *llm.Client, cfg Config, sink MetricsSink) *ExtractionPipeline {
	cfg = cfg.withDefaults()
	return &ExtractionPipeline{
		store:   st,
		client:  client,
		deduper: graph.NewDeduper(graph.Thresholds{
			Merge:  cfg.MergeSimilarity,
			Expand: cfg.ExpandSimilarity,
			Relate: cfg.RelateSimilarity,
		}),
		contradictions: graph.NewContradictionDetector(cfg.ContradictionFloor),
		sink:           sink,
		cfg:            cfg,
	}
}

// PipelineInput is one message to process.
type PipelineInput struct {
	Session    store.Session
	Message    string
	TurnNumber int
	SourceType string // "chat" or "upload"
	SourceID   string
}

// CapturedNugget describes one pipeline outcome: a node created or an
// existing node a candidate merged into.
type CapturedNugget struct {
	NuggetID      string   `json:"nugget_id,omitempty"`
	NodeID        string   `json:"node_id"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	NuggetType    string   `json:"nugget_type"`
	Score         int      `json:"score"`
	Demoted       bool     `json:"demoted"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Action        string   `json:"action"`
	MatchedNodeID string   `json:"matched_node_id,omitempty"`
}

// NextQuestion is a ranked follow-up question.
type NextQuestion struct {
	Question  string `json:"question"`
	TargetGap string `json:"target_gap"`
	Score     int    `json:"score"`
}

// PipelineResult is everything one run produced.
type PipelineResult struct {
	Failed         bool             `json:"failed"`
	FailureMessage string           `json:"failure_message,omitempty"`
	Nuggets        []CapturedNugget `json:"nuggets"`
	NextQuestion   *NextQuestion    `json:"next_question,omitempty"`
	WhyPrimary     string           `json:"why_primary,omitempty"`
	Alternates     []NextQuestion   `json:"alternates,omitempty"`
	Contradictions int              `json:"contradictions"`
	Metrics        TurnMetrics      `json:"metrics"`
}

// scoredCandidate carries a candidate through scoring and dedup.
type scoredCandidate struct {
	llm.CandidateNugget
	Dimensions    llm.DimensionScores
	MissingFields []string
	Rationale     string
	Score         int
	Demoted       bool
	Decision      graph.Decision
}

// Run executes the full pipeline for one message. Terminal failures come
// back as a failed result, not an error; errors mean the system itself
// broke (storage, transport).
func (p *ExtractionPipeline) Run(ctx context.Context, in PipelineInput) (*PipelineResult, error) {
	start := time.Now()
	metrics := TurnMetrics{
		SessionID:        in.Session.ID,
		TurnNumber:       in.TurnNumber,
		MessageChars:     len([]rune(in.Message)),
		StageLatenciesMS: make(map[string]int64),
	}
	defer func() {
		metrics.TotalLatencyMS = time.Since(start).Milliseconds()
		p.sink.RecordTurn(ctx, metrics)
	}()

	existing, err := p.store.ExistingNodes(ctx, in.Session.ID, MaxExistingNodes)
	if err != nil {
		return nil, err
	}
	recent, err := p.store.HighValueNuggets(ctx, in.Session.ID, contextNuggetMinScore, contextNuggetLimit)
	if err != nil {
		return nil, err
	}

	// EXTRACT
	stage := time.Now()
	candidates, err := p.extract(ctx, in, recent)
	metrics.StageLatenciesMS["extract"] = time.Since(stage).Milliseconds()
	if err != nil {
		slog.WarnContext(ctx, "extraction failed (terminal)", "session_id", in.Session.ID, "error", err)
		candidates = nil
	}
	metrics.ExtractedCount = len(candidates)
	if len(candidates) == 0 {
		metrics.ExtractionFailed = true
		metrics.FailureReason = "no_nuggets"
		return &PipelineResult{Failed: true, FailureMessage: msgNoNuggets, Metrics: metrics}, nil
	}

	// Low-confidence filter: lows are dropped only when something better
	// came out of the same message.
	kept := candidates[:0:0]
	anyHigher := false
	for _, c := range candidates {
		if c.Confidence != "low" {
			anyHigher = true
			break
		}
	}
	for _, c := range candidates {
		if anyHigher && c.Confidence == "low" {
			metrics.LowConfidenceDropped++
			continue
		}
		kept = append(kept, c)
	}
	candidates = kept

	// SCORE
	stage = time.Now()
	scored := p.score(ctx, in.Session, candidates)
	metrics.StageLatenciesMS["score"] = time.Since(stage).Milliseconds()
	metrics.ScoredCount = len(scored)

	// The quality gate looks at raw weighted totals only: the turn is
	// terminal when no candidate reaches the floor. Anti-generic demotion
	// halves the persisted score afterwards but never drops a candidate.
	viable := false
	scores := make([]int, len(scored))
	for i, s := range scored {
		scores[i] = s.Score
		if s.Score >= p.cfg.MinScore {
			viable = true
		}
	}
	if !viable {
		metrics.ExtractionFailed = true
		metrics.FailureReason = "low_quality"
		return &PipelineResult{Failed: true, FailureMessage: msgLowQuality, Metrics: metrics}, nil
	}
	metrics.ScoreMean, metrics.ScoreMin, metrics.ScoreMax, metrics.ScoreStdDev = scoreStats(scores)

	passing := scored
	for i := range passing {
		if passing[i].Dimensions.Novelty < p.cfg.AntiGenericFloor {
			passing[i].Score = passing[i].Score / 2
			passing[i].Demoted = true
			metrics.DemotedCount++
		}
	}

	// DEDUP
	stage = time.Now()
	nonCreate := 0
	for i := range passing {
		passing[i].Decision = p.deduper.Decide(passing[i].Title, toGraphNodes(existing))
		if passing[i].Decision.Action != "create" {
			nonCreate++
		}
	}
	metrics.StageLatenciesMS["dedup"] = time.Since(stage).Milliseconds()
	metrics.DedupTriggerRate = float64(nonCreate) / float64(len(passing))

	// PERSIST
	stage = time.Now()
	result, err := p.persist(ctx, in, passing, existing, &metrics)
	metrics.StageLatenciesMS["persist"] = time.Since(stage).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("persisting pipeline run: %w", err)
	}

	// QUESTIONS
	stage = time.Now()
	p.questions(ctx, in.Session, result)
	metrics.StageLatenciesMS["questions"] = time.Since(stage).Milliseconds()
	if result.NextQuestion != nil {
		metrics.SelectedQuestion = result.NextQuestion.Question
		metrics.SelectedGap = result.NextQuestion.TargetGap
	}

	p.emitSessionDedupRate(ctx, in.Session.ID)

	result.Metrics = metrics
	return result, nil
}

func (p *ExtractionPipeline) extract(ctx context.Context, in PipelineInput, recent []store.Nugget) ([]llm.CandidateNugget, error) {
	lines := make([]string, 0, len(recent))
	for _, n := range recent {
		lines = append(lines, fmt.Sprintf("- %s (score %d)", n.Title, n.Score))
	}
	recentBlock := "(none)"
	if len(lines) > 0 {
		recentBlock = strings.Join(lines, "\n")
	}

	out, err := llm.Call[llm.ExtractOutput](ctx, p.client, "extract_nuggets_v1", map[string]string{
		"project_name":   in.Session.ProjectName,
		"topic":          in.Session.Topic,
		"audience":       in.Session.Audience,
		"recent_nuggets": recentBlock,
		"message":        in.Message,
	})
	if err != nil {
		return nil, err
	}
	return out.Nuggets, nil
}

// score runs the scoring prompt. Failures degrade to neutral defaults
// rather than losing the extraction.
func (p *ExtractionPipeline) score(ctx context.Context, sess store.Session, candidates []llm.CandidateNugget) []scoredCandidate {
	scored := make([]scoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = scoredCandidate{
			CandidateNugget: c,
			Dimensions:      defaultDimensions(),
			MissingFields:   []string{"example"},
		}
	}

	out, err := llm.Call[llm.ScoreOutput](ctx, p.client, "score_nuggets_v1", map[string]string{
		"topic":            sess.Topic,
		"audience":         sess.Audience,
		"downvoted_titles": p.downvotedBlock(ctx, sess.ID),
		"nuggets":          nuggetListing(candidates),
	})
	if err != nil {
		slog.WarnContext(ctx, "scoring failed, using default scores (non-fatal)",
			"session_id", sess.ID, "error", err)
	} else {
		for _, s := range out.Scored {
			if s.Index >= 0 && s.Index < len(scored) {
				scored[s.Index].Dimensions = s.DimensionScores
				scored[s.Index].MissingFields = s.MissingFields
				scored[s.Index].Rationale = s.Rationale
			}
		}
	}

	for i := range scored {
		scored[i].Score = scored[i].Dimensions.TotalScore()
	}
	return scored
}

// persist writes one run's nodes, nuggets, provenance, and edges in a
// single transaction, including contradiction edges.
func (p *ExtractionPipeline) persist(ctx context.Context, in PipelineInput, passing []scoredCandidate, existing []store.NodeRef, metrics *TurnMetrics) (*PipelineResult, error) {
	result := &PipelineResult{}

	var createdNodes []store.NodeRef

	err := p.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, s := range passing {
			captured := CapturedNugget{
				Title:         s.Title,
				Summary:       s.Summary,
				NuggetType:    s.NuggetType,
				Score:         s.Score,
				Demoted:       s.Demoted,
				MissingFields: s.MissingFields,
				Action:        s.Decision.Action,
			}

			if s.Decision.Action == "merge" {
				captured.NodeID = s.Decision.MatchNodeID
				captured.MatchedNodeID = s.Decision.MatchNodeID
				if err := tx.TouchNode(ctx, s.Decision.MatchNodeID); err != nil {
					return err
				}
				if err := tx.InsertProvenance(ctx, store.Provenance{
					ID:         uuid.NewString(),
					NodeID:     s.Decision.MatchNodeID,
					SourceType: in.SourceType,
					SourceID:   in.SourceID,
					Confidence: provenanceConfidence(s.Confidence),
				}); err != nil {
					return err
				}
				metrics.MergedCount++
				result.Nuggets = append(result.Nuggets, captured)
				continue
			}

			nodeID := uuid.NewString()
			node := store.Node{
				ID:        nodeID,
				SessionID: in.Session.ID,
				NodeType:  s.NuggetType,
				Title:     s.Title,
				Summary:   s.Summary,
			}
			if err := tx.InsertNode(ctx, node); err != nil {
				return err
			}

			dims, _ := json.Marshal(s.Dimensions)
			missing, _ := json.Marshal(s.MissingFields)
			nugget := store.Nugget{
				ID:              uuid.NewString(),
				SessionID:       in.Session.ID,
				NodeID:          nodeID,
				NuggetType:      s.NuggetType,
				Title:           s.Title,
				ShortSummary:    truncateRunes(s.Summary, 200),
				Score:           s.Score,
				DimensionScores: string(dims),
				MissingFields:   string(missing),
			}
			if err := tx.InsertNugget(ctx, nugget); err != nil {
				return err
			}
			if err := tx.InsertProvenance(ctx, store.Provenance{
				ID:         uuid.NewString(),
				NodeID:     nodeID,
				SourceType: in.SourceType,
				SourceID:   in.SourceID,
				Confidence: provenanceConfidence(s.Confidence),
			}); err != nil {
				return err
			}

			switch s.Decision.Action {
			case "link_expands":
				if err := p.insertEdge(ctx, tx, in.Session.ID, nodeID, s.Decision.MatchNodeID, "expands_on"); err != nil {
					return err
				}
				captured.MatchedNodeID = s.Decision.MatchNodeID
				metrics.LinkedCount++
			case "link_related":
				if err := p.insertEdge(ctx, tx, in.Session.ID, nodeID, s.Decision.MatchNodeID, "related_to"); err != nil {
					return err
				}
				captured.MatchedNodeID = s.Decision.MatchNodeID
				metrics.LinkedCount++
			default:
				metrics.CreatedCount++
			}

			captured.NodeID = nodeID
			captured.NuggetID = nugget.ID
			result.Nuggets = append(result.Nuggets, captured)
			createdNodes = append(createdNodes, store.NodeRef{ID: nodeID, Title: s.Title})
		}

		// Cross-link every pair of nodes created in this run. Merge
		// targets are pre-existing and stay out of this mesh.
		for i := 0; i < len(createdNodes); i++ {
			for j := i + 1; j < len(createdNodes); j++ {
				if err := p.insertEdge(ctx, tx, in.Session.ID, createdNodes[i].ID, createdNodes[j].ID, "related_to"); err != nil {
					return err
				}
			}
		}

		// Contradiction detection against the pre-run graph.
		for _, node := range createdNodes {
			for _, c := range p.contradictions.Detect(node.Title, toGraphNodes(existing)) {
				if err := p.insertEdge(ctx, tx, in.Session.ID, node.ID, c.NodeID, "contradicts"); err != nil {
					return err
				}
				metrics.ContradictionCount++
				result.Contradictions++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// questions generates the follow-up question, degrading to a canned
// example prompt on failure.
func (p *ExtractionPipeline) questions(ctx context.Context, sess store.Session, result *PipelineResult) {
	if len(result.Nuggets) == 0 {
		return
	}

	var lines []string
	for _, n := range result.Nuggets {
		lines = append(lines, fmt.Sprintf("- Title: %s\n  Summary: %s\n  Type: %s\n  Score: %d\n  Gaps: %s",
			n.Title, n.Summary, n.NuggetType, n.Score, strings.Join(n.MissingFields, ", ")))
	}

	out, err := llm.Call[llm.NextQuestionOutput](ctx, p.client, "next_questions_v1", map[string]string{
		"topic":            sess.Topic,
		"audience":         sess.Audience,
		"nuggets":          strings.Join(lines, "\n"),
		"downvoted_titles": p.downvotedBlock(ctx, sess.ID),
	})
	if err != nil {
		slog.WarnContext(ctx, "question generation failed, using fallback (non-fatal)",
			"session_id", sess.ID, "error", err)
		out = fallbackQuestions(result.Nuggets[0].Title)
	}

	ranked := make([]NextQuestion, 0, len(out.Candidates))
	for _, c := range out.Candidates {
		ranked = append(ranked, NextQuestion{
			Question:  c.Question,
			TargetGap: c.TargetGap,
			Score:     c.Scores.TotalScore(),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	result.NextQuestion = &ranked[0]
	result.WhyPrimary = out.WhyPrimary
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	result.Alternates = ranked[1:]

	// Persist the candidates on the first nugget created this run so the
	// UI can resurface them later.
	if nodeID := firstCreatedNodeID(result.Nuggets); nodeID != "" {
		questionsJSON, _ := json.Marshal(ranked)
		err := p.store.WithTx(ctx, func(tx *store.Tx) error {
			return tx.UpdateNuggetQuestions(ctx, nodeID, string(questionsJSON))
		})
		if err != nil {
			slog.WarnContext(ctx, "storing question candidates failed (non-fatal)",
				"session_id", sess.ID, "error", err)
		}
	}
}

// downvotedBlock renders the session's downvoted titles for prompt
// context, so scoring and question generation both steer away from them.
func (p *ExtractionPipeline) downvotedBlock(ctx context.Context, sessionID string) string {
	downvoted, err := p.store.DownvotedTitles(ctx, sessionID, contextDownvotedLimit)
	if err != nil {
		slog.WarnContext(ctx, "loading downvoted titles failed (non-fatal)", "session_id", sessionID, "error", err)
	}
	if len(downvoted) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(downvoted, "\n- ")
}

func (p *ExtractionPipeline) emitSessionDedupRate(ctx context.Context, sessionID string) {
	nodes, err := p.store.CountNodes(ctx, sessionID)
	if err != nil {
		slog.WarnContext(ctx, "counting nodes failed (non-fatal)", "session_id", sessionID, "error", err)
		return
	}
	rate := 0.0
	if nodes > 0 {
		dedupEdges, err := p.store.CountDedupEdges(ctx, sessionID)
		if err != nil {
			slog.WarnContext(ctx, "counting dedup edges failed (non-fatal)", "session_id", sessionID, "error", err)
			return
		}
		rate = float64(dedupEdges) / float64(nodes)
	}
	p.sink.RecordSessionDedupRate(ctx, sessionID, rate)
}

func (p *ExtractionPipeline) insertEdge(ctx context.Context, tx *store.Tx, sessionID, source, target, edgeType string) error {
	return tx.InsertEdge(ctx, store.Edge{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		SourceNodeID: source,
		TargetNodeID: target,
		EdgeType:     edgeType,
	})
}

// fallbackQuestions is the degraded question output: ask for a concrete
// example of the first captured idea.
func fallbackQuestions(firstTitle string) *llm.NextQuestionOutput {
	return &llm.NextQuestionOutput{
		Candidates: []llm.NextQuestionCandidate{{
			Question: fmt.Sprintf("Can you give me a specific example of '%s'?", firstTitle),
			Scores: llm.QuestionScores{
				Impact:         70,
				Leverage:       65,
				Momentum:       75,
				Connectivity:   55,
				GapCriticality: 70,
			},
			TargetGap: "example",
		}},
		WhyPrimary: "Let's explore this further with a concrete example.",
	}
}

func defaultDimensions() llm.DimensionScores {
	return llm.DimensionScores{
		Specificity:       DefaultDimensionScore,
		Novelty:           DefaultDimensionScore,
		Authority:         DefaultDimensionScore,
		Actionability:     DefaultDimensionScore,
		StoryEnergy:       DefaultDimensionScore,
		AudienceResonance: DefaultDimensionScore,
	}
}

// provenanceConfidence maps extraction confidence onto the provenance
// column's enum.
func provenanceConfidence(c string) string {
	switch c {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "med"
	}
}

func nuggetListing(candidates []llm.CandidateNugget) string {
	var lines []string
	for _, c := range candidates {
		lines = append(lines, fmt.Sprintf("- Title: %s\n  Summary: %s", c.Title, c.Summary))
	}
	return strings.Join(lines, "\n")
}

func toGraphNodes(refs []store.NodeRef) []graph.ExistingNode {
	out := make([]graph.ExistingNode, len(refs))
	for i, r := range refs {
		out[i] = graph.ExistingNode{ID: r.ID, Title: r.Title}
	}
	return out
}

func firstCreatedNodeID(nuggets []CapturedNugget) string {
	for _, n := range nuggets {
		if n.Action != "merge" {
			return n.NodeID
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
