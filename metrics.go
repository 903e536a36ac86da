package sponge

import (
	"context"
	"log/slog"
	"math"
)

// TurnMetrics is the telemetry emitted after every pipeline run, including
// failed ones.
type TurnMetrics struct {
	SessionID  string `json:"session_id"`
	TurnNumber int    `json:"turn_number"`

	MessageChars          int  `json:"message_chars"`
	ExtractedCount        int  `json:"extracted_count"`
	LowConfidenceDropped  int  `json:"low_confidence_dropped"`
	ScoredCount           int  `json:"scored_count"`
	DemotedCount          int  `json:"demoted_count"`
	CreatedCount          int  `json:"created_count"`
	MergedCount           int  `json:"merged_count"`
	LinkedCount           int  `json:"linked_count"`
	ContradictionCount    int  `json:"contradiction_count"`
	ExtractionFailed      bool `json:"extraction_failed"`

	// FailureReason is empty on success, "no_nuggets" or "low_quality"
	// on terminal failure.
	FailureReason string `json:"failure_reason,omitempty"`

	ScoreMean   float64 `json:"score_mean"`
	ScoreMin    int     `json:"score_min"`
	ScoreMax    int     `json:"score_max"`
	ScoreStdDev float64 `json:"score_std_dev"`

	// DedupTriggerRate is the share of candidates that matched an
	// existing node (any non-create decision).
	DedupTriggerRate float64 `json:"dedup_trigger_rate"`

	SelectedQuestion string `json:"selected_question,omitempty"`
	SelectedGap      string `json:"selected_gap,omitempty"`

	StageLatenciesMS map[string]int64 `json:"stage_latencies_ms"`
	TotalLatencyMS   int64            `json:"total_latency_ms"`
}

// MetricsSink receives pipeline telemetry.
type MetricsSink interface {
	RecordTurn(ctx context.Context, m TurnMetrics)
	RecordSessionDedupRate(ctx context.Context, sessionID string, rate float64)
}

// LogSink is the default MetricsSink, writing structured log records.
type LogSink struct{}

func (LogSink) RecordTurn(ctx context.Context, m TurnMetrics) {
	slog.InfoContext(ctx, "pipeline turn metrics",
		"session_id", m.SessionID,
		"turn_number", m.TurnNumber,
		"message_chars", m.MessageChars,
		"extracted", m.ExtractedCount,
		"low_confidence_dropped", m.LowConfidenceDropped,
		"scored", m.ScoredCount,
		"demoted", m.DemotedCount,
		"created", m.CreatedCount,
		"merged", m.MergedCount,
		"linked", m.LinkedCount,
		"contradictions", m.ContradictionCount,
		"extraction_failed", m.ExtractionFailed,
		"failure_reason", m.FailureReason,
		"score_mean", m.ScoreMean,
		"score_min", m.ScoreMin,
		"score_max", m.ScoreMax,
		"score_std_dev", m.ScoreStdDev,
		"dedup_trigger_rate", m.DedupTriggerRate,
		"selected_gap", m.SelectedGap,
		"stage_latencies_ms", m.StageLatenciesMS,
		"total_latency_ms", m.TotalLatencyMS,
	)
}

func (LogSink) RecordSessionDedupRate(ctx context.Context, sessionID string, rate float64) {
	slog.InfoContext(ctx, "session dedup rate",
		"session_id", sessionID,
		"dedup_rate", rate,
	)
}

// scoreStats computes mean, min, max, and population standard deviation.
func scoreStats(scores []int) (mean float64, min, max int, stddev float64) {
	if len(scores) == 0 {
		return 0, 0, 0, 0
	}
	min, max = scores[0], scores[0]
	sum := 0
	for _, s := range scores {
		sum += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	mean = float64(sum) / float64(len(scores))

	varSum := 0.0
	for _, s := range scores {
		d := float64(s) - mean
		varSum += d * d
	}
	stddev = math.Sqrt(varSum / float64(len(scores)))
	return mean, min, max, stddev
}
