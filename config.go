package txt2kgx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/txt2kgx/graph"
	"github.com/brunobiangulo/txt2kgx/llm"
)

// Config holds all configuration for the extraction pipeline.
type Config struct {
	// LLM is the generation service. The credential and endpoint fields can
	// be supplied through OAI_COMPATIBLE_API_KEY, OAI_COMPATIBLE_BASE_URL and
	// MODEL_NAME.
	LLM llm.Config `json:"llm" yaml:"llm"`

	Temperature float64 `json:"temperature" yaml:"temperature" env:"TXT2KGX_TEMPERATURE"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" env:"TXT2KGX_MAX_TOKENS"` // 0 leaves the server default

	// Extraction assets
	PromptPath        string `json:"prompt_path" yaml:"prompt_path" env:"TXT2KGX_PROMPT"`
	SchemaPath        string `json:"schema_path" yaml:"schema_path" env:"TXT2KGX_SCHEMA"`
	EntityTablePath   string `json:"entity_table_path" yaml:"entity_table_path" env:"TXT2KGX_ENTITY_TABLE"`
	RelationTablePath string `json:"relation_table_path" yaml:"relation_table_path" env:"TXT2KGX_RELATION_TABLE"`

	// DotAll makes `.` in schema patterns match newlines.
	DotAll bool `json:"dotall" yaml:"dotall" env:"TXT2KGX_DOTALL"`

	// Output sinks
	NodesFile string `json:"nodes_file" yaml:"nodes_file" env:"TXT2KGX_NODES_FILE"`
	EdgesFile string `json:"edges_file" yaml:"edges_file" env:"TXT2KGX_EDGES_FILE"`

	// LedgerPath is the SQLite run ledger. Empty disables it.
	LedgerPath string `json:"ledger_path" yaml:"ledger_path" env:"TXT2KGX_LEDGER"`

	// Graph assembly
	Namespace       string `json:"namespace" yaml:"namespace" env:"TXT2KGX_NAMESPACE"`
	KnowledgeSource string `json:"knowledge_source" yaml:"knowledge_source" env:"TXT2KGX_KNOWLEDGE_SOURCE"`
	ConflictPolicy  string `json:"conflict_policy" yaml:"conflict_policy" env:"TXT2KGX_CONFLICT_POLICY"` // last-wins, first-wins, reject-conflict
	DedupeRelations bool   `json:"dedupe_relations" yaml:"dedupe_relations" env:"TXT2KGX_DEDUPE_RELATIONS"`
}

// DefaultConfig returns a Config pointing at a local llama.cpp server and the
// assets shipped in ./assets.
func DefaultConfig() Config {
	return Config{
		LLM: llm.Config{
			Provider: "llamacpp",
			BaseURL:  "http://localhost:8080",
			Timeout:  llm.DefaultTimeout,
		},
		Temperature:       0.5,
		PromptPath:        filepath.Join("assets", "main_extractor_prompt.txt"),
		SchemaPath:        filepath.Join("assets", "main_extractor_schema.json"),
		EntityTablePath:   filepath.Join("assets", "to_biolink_entity.csv"),
		RelationTablePath: filepath.Join("assets", "to_biolink_relationship.csv"),
		NodesFile:         "nodes.tsv",
		EdgesFile:         "edges.tsv",
		Namespace:         graph.DefaultNamespace,
		KnowledgeSource:   graph.DefaultKnowledgeSource,
		ConflictPolicy:    graph.LastWins.String(),
	}
}

// LoadConfig reads a YAML or JSON file over DefaultConfig and then applies
// environment overrides. An empty path yields defaults plus environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		// JSON is a subset of YAML, so one decoder serves both.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: decoding %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any variables set in the environment.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the configuration for values the pipeline cannot run
// with. File existence is checked later by New.
func (c *Config) Validate() error {
	var problems []string
	if c.LLM.Provider == "" {
		problems = append(problems, "llm provider is empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("temperature %v out of range [0, 2]", c.Temperature))
	}
	if c.MaxTokens < 0 {
		problems = append(problems, "max_tokens is negative")
	}
	if c.LLM.MaxRetries < 0 {
		problems = append(problems, "llm max_retries is negative")
	}
	for name, v := range map[string]string{
		"prompt_path":         c.PromptPath,
		"schema_path":         c.SchemaPath,
		"entity_table_path":   c.EntityTablePath,
		"relation_table_path": c.RelationTablePath,
		"nodes_file":          c.NodesFile,
		"edges_file":          c.EdgesFile,
	} {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, name+" is empty")
		}
	}
	if c.NodesFile != "" && filepath.Clean(c.NodesFile) == filepath.Clean(c.EdgesFile) {
		problems = append(problems, "nodes_file and edges_file are the same file")
	}
	if c.ConflictPolicy != "" {
		if _, ok := graph.ParseConflictPolicy(c.ConflictPolicy); !ok {
			problems = append(problems, fmt.Sprintf("unknown conflict_policy %q", c.ConflictPolicy))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

func (c *Config) conflictPolicy() graph.ConflictPolicy {
	p, _ := graph.ParseConflictPolicy(c.ConflictPolicy)
	return p
}
