package sponge

import (
	"os"
	"path/filepath"

	"github.com/spongelab/sponge/llm"
)

// Pipeline threshold constants. These are the design defaults; each has a
// matching Config field so tests can override without touching the constant.
const (
	// MinScoreThreshold is the total-score floor below which a run is a
	// terminal quality failure.
	MinScoreThreshold = 30

	// AntiGenericNoveltyThreshold demotes nuggets whose novelty dimension
	// falls below it: the persisted score is halved (integer division).
	AntiGenericNoveltyThreshold = 20

	// MergeSimilarityThreshold and friends drive the lexical dedup engine.
	MergeSimilarityThreshold  = 0.85
	ExpandSimilarityThreshold = 0.50
	RelateSimilarityThreshold = 0.30

	// ContradictionSimilarityFloor is deliberately the same as the relate
	// threshold: contradiction detection is more permissive than dedup.
	ContradictionSimilarityFloor = 0.30

	// DefaultDimensionScore is the neutral fallback applied to every
	// dimension when LLM scoring fails.
	DefaultDimensionScore = 50

	// MaxGraphNodes bounds the graph projection returned to callers.
	MaxGraphNodes = 20

	// MaxExistingNodes bounds the dedup context read from the store.
	MaxExistingNodes = 50
)

// Config holds all configuration for the Sponge engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.sponge/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is not
	// explicitly set: "home" (default) uses ~/.sponge/, "local" uses the
	// current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// UploadDir is where uploaded documents are stored.
	UploadDir string `json:"upload_dir" yaml:"upload_dir"`

	// MaxUploadBytes caps upload size. Default 10MB.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`

	// LLM configures the model provider (openai, anthropic, or stub).
	LLM llm.Config `json:"llm" yaml:"llm"`

	// MaxValidationRetries is the number of correction-prompt retries the
	// LLM client issues on schema-validation failure.
	MaxValidationRetries int `json:"max_validation_retries" yaml:"max_validation_retries"`

	// Pipeline thresholds. Zero values fall back to the package constants.
	MinScore          int     `json:"min_score" yaml:"min_score"`
	AntiGenericFloor  int     `json:"anti_generic_floor" yaml:"anti_generic_floor"`
	MergeSimilarity   float64 `json:"merge_similarity" yaml:"merge_similarity"`
	ExpandSimilarity  float64 `json:"expand_similarity" yaml:"expand_similarity"`
	RelateSimilarity  float64 `json:"relate_similarity" yaml:"relate_similarity"`
	ContradictionFloor float64 `json:"contradiction_floor" yaml:"contradiction_floor"`

	// GraphNodeLimit bounds GraphView output. Default MaxGraphNodes.
	GraphNodeLimit int `json:"graph_node_limit" yaml:"graph_node_limit"`
}

// DefaultConfig returns a Config with the design defaults and the stub LLM
// provider, so a zero-setup engine works fully offline.
func DefaultConfig() Config {
	return Config{
		DBName:         "sponge",
		StorageDir:     "home",
		UploadDir:      "./uploads",
		MaxUploadBytes: 10 << 20,
		LLM: llm.Config{
			Provider: "stub",
		},
		MaxValidationRetries: 1,
		MinScore:             MinScoreThreshold,
		AntiGenericFloor:     AntiGenericNoveltyThreshold,
		MergeSimilarity:      MergeSimilarityThreshold,
		ExpandSimilarity:     ExpandSimilarityThreshold,
		RelateSimilarity:     RelateSimilarityThreshold,
		ContradictionFloor:   ContradictionSimilarityFloor,
		GraphNodeLimit:       MaxGraphNodes,
	}
}

// withDefaults fills zero-valued threshold fields with the design constants.
func (c Config) withDefaults() Config {
	if c.MinScore == 0 {
		c.MinScore = MinScoreThreshold
	}
	if c.AntiGenericFloor == 0 {
		c.AntiGenericFloor = AntiGenericNoveltyThreshold
	}
	if c.MergeSimilarity == 0 {
		c.MergeSimilarity = MergeSimilarityThreshold
	}
	if c.ExpandSimilarity == 0 {
		c.ExpandSimilarity = ExpandSimilarityThreshold
	}
	if c.RelateSimilarity == 0 {
		c.RelateSimilarity = RelateSimilarityThreshold
	}
	if c.ContradictionFloor == 0 {
		c.ContradictionFloor = ContradictionSimilarityFloor
	}
	if c.GraphNodeLimit == 0 {
		c.GraphNodeLimit = MaxGraphNodes
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if c.MaxValidationRetries == 0 {
		c.MaxValidationRetries = 1
	}
	if c.UploadDir == "" {
		c.UploadDir = "./uploads"
	}
	return c
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "sponge"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".sponge", name+".db")
	}
}
