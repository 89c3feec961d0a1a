// Package txt2kgx turns unstructured text documents into a knowledge graph
// of ontology-typed nodes and edges, appended to KGX TSV files.
//
// A Pipeline sends each document to a grammar-constrained generation
// service, recovers the JSON payload from the reasoning-prefixed response,
// normalises the extraction records, maps them onto the ontology and appends
// the resulting rows. Documents are processed sequentially; the output files
// must not be shared with another writer while a Pipeline runs.
package txt2kgx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/txt2kgx/grammar"
	"github.com/brunobiangulo/txt2kgx/graph"
	"github.com/brunobiangulo/txt2kgx/kgx"
	"github.com/brunobiangulo/txt2kgx/llm"
	"github.com/brunobiangulo/txt2kgx/ontology"
	"github.com/brunobiangulo/txt2kgx/parser"
	"github.com/brunobiangulo/txt2kgx/response"
	"github.com/brunobiangulo/txt2kgx/store"
)

// Outcome statuses reported per document.
const (
	StatusDone    = store.StatusDone
	StatusFailed  = store.StatusFailed
	StatusSkipped = store.StatusSkipped
)

// Report describes what happened to one document.
type Report struct {
	Document    string            `json:"document"`
	Path        string            `json:"path,omitempty"`
	Status      string            `json:"status"`
	PayloadPath string            `json:"payload_path,omitempty"` // primary or fallback
	Diagnostics graph.Diagnostics `json:"diagnostics"`
	Nodes       int               `json:"nodes"`
	Edges       int               `json:"edges"`
	// Token counts as reported by the generation service.
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`

	// Graph is what was appended to the sinks.
	Graph *graph.Graph `json:"-"`
	Err   error        `json:"-"`
}

// Batch is the result of ProcessAll.
type Batch struct {
	RunID     int64    `json:"run_id,omitempty"` // zero without a ledger
	Reports   []Report `json:"reports"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	// UnmappedCategories and UnmappedPredicates accumulate over the
	// pipeline's lifetime.
	UnmappedCategories []string `json:"unmapped_categories,omitempty"`
	UnmappedPredicates []string `json:"unmapped_predicates,omitempty"`
}

func (b *Batch) add(r Report) {
	b.Reports = append(b.Reports, r)
	switch r.Status {
	case StatusDone:
		b.Succeeded++
	case StatusSkipped:
		b.Skipped++
	default:
		b.Failed++
	}
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	provider llm.Provider
	registry *parser.Registry
	ledger   *store.Store
}

// WithProvider replaces the generation service built from Config.LLM.
func WithProvider(p llm.Provider) Option {
	return func(o *pipelineOptions) { o.provider = p }
}

// WithRegistry replaces the default document parsers.
func WithRegistry(r *parser.Registry) Option {
	return func(o *pipelineOptions) { o.registry = r }
}

// WithLedger uses an already open ledger instead of Config.LedgerPath. The
// caller keeps ownership and must close it.
func WithLedger(s *store.Store) Option {
	return func(o *pipelineOptions) { o.ledger = s }
}

// ProcessOption configures file processing.
type ProcessOption func(*processOptions)

type processOptions struct {
	force bool
}

// WithForce processes documents even when the ledger records them as done
// with the same content hash.
func WithForce() ProcessOption {
	return func(o *processOptions) { o.force = true }
}

// Pipeline is the configured extraction pipeline. The grammar, prompt and
// mapping tables are loaded once and reused for every document.
type Pipeline struct {
	cfg        Config
	provider   llm.Provider
	parsers    *parser.Registry
	ledger     *store.Store
	ownsLedger bool

	prompt     string
	grammar    string
	categories *ontology.Mapper
	predicates *ontology.Mapper
	assembler  *graph.Assembler
	normalize  graph.NormalizeOptions
	sink       *kgx.Sink
}

// New validates cfg, loads the extraction assets and compiles the output
// grammar. Missing assets fail with ErrConfigurationMissing.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &pipelineOptions{}
	for _, opt := range opts {
		opt(o)
	}

	prompt, err := os.ReadFile(cfg.PromptPath)
	if err != nil {
		return nil, fmt.Errorf("%w: prompt: %w", ErrConfigurationMissing, err)
	}

	g, err := grammar.NewCompiler(grammar.WithDotAll(cfg.DotAll)).CompileFile(cfg.SchemaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: schema: %w", ErrConfigurationMissing, err)
	}
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", cfg.SchemaPath, err)
	}

	categories, err := loadTable(cfg.EntityTablePath, ontology.Categories)
	if err != nil {
		return nil, err
	}
	predicates, err := loadTable(cfg.RelationTablePath, ontology.Predicates)
	if err != nil {
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		provider, err = llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	registry := o.registry
	if registry == nil {
		registry = parser.NewRegistry()
	}

	p := &Pipeline{
		cfg:        cfg,
		provider:   provider,
		parsers:    registry,
		ledger:     o.ledger,
		prompt:     string(prompt),
		grammar:    grammar.WrapReasoning(g),
		categories: ontology.NewMapper(categories),
		predicates: ontology.NewMapper(predicates),
		normalize: graph.NormalizeOptions{
			Policy:          cfg.conflictPolicy(),
			DedupeRelations: cfg.DedupeRelations,
		},
		sink: kgx.NewSink(cfg.NodesFile, cfg.EdgesFile),
	}
	p.assembler = graph.NewAssembler(p.categories, p.predicates, graph.NewMinter(cfg.Namespace),
		graph.AssemblerOptions{KnowledgeSource: cfg.KnowledgeSource})

	if p.ledger == nil && cfg.LedgerPath != "" {
		s, err := store.New(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		p.ledger = s
		p.ownsLedger = true
	}

	slog.Info("txt2kgx: pipeline ready",
		"schema", cfg.SchemaPath,
		"grammar_rules", len(g.RuleNames()),
		"categories", categories.Len(),
		"predicates", predicates.Len(),
		"nodes_file", cfg.NodesFile,
		"edges_file", cfg.EdgesFile,
		"ledger", p.ledger != nil)
	return p, nil
}

func loadTable(path string, kind ontology.Kind) (*ontology.Table, error) {
	t, err := ontology.LoadTable(path, kind)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, ontology.ErrEmptyTable) {
		return nil, fmt.Errorf("%w: %s table: %w", ErrConfigurationMissing, kind, err)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Grammar returns the full generation grammar sent with every request.
func (p *Pipeline) Grammar() string { return p.grammar }

// Unmapped returns every raw entity type and relationship the pipeline has
// failed to map so far.
func (p *Pipeline) Unmapped() (categories, predicates []string) {
	return p.categories.Unmapped(), p.predicates.Unmapped()
}

// Ledger returns the run ledger, or nil when none is configured.
func (p *Pipeline) Ledger() *store.Store { return p.ledger }

// ProcessText extracts a graph from text and appends it to the sinks. name
// identifies the document and becomes the provided_by of every edge. Rows are
// written only when every earlier step succeeded.
func (p *Pipeline) ProcessText(ctx context.Context, name, text string) (*Report, error) {
	rep := &Report{Document: name, Status: StatusFailed}
	if strings.TrimSpace(text) == "" {
		rep.Err = fmt.Errorf("%w: %s", ErrEmptyDocument, name)
		return rep, rep.Err
	}

	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Model:       p.cfg.LLM.Model,
		Messages:    []llm.Message{llm.System(p.prompt), llm.User(text)},
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		Grammar:     p.grammar,
	})
	if err != nil {
		rep.Err = fmt.Errorf("%w: %s: %w", ErrGenerationFailed, name, err)
		return rep, rep.Err
	}
	rep.PromptTokens = resp.PromptTokens
	rep.CompletionTokens = resp.CompletionTokens

	parsed, err := response.Parse(resp.Content)
	if err != nil {
		rep.Err = fmt.Errorf("%s: %w", name, err)
		return rep, rep.Err
	}
	rep.PayloadPath = parsed.Path.String()

	x := graph.Normalize(parsed.Value, p.normalize)
	x.Document = name
	g, diag := p.assembler.Assemble(x)
	rep.Diagnostics = diag

	if err := p.sink.Write(g); err != nil {
		rep.Err = fmt.Errorf("%s: %w", name, err)
		return rep, rep.Err
	}
	rep.Status = StatusDone
	rep.Graph = g
	rep.Nodes = len(g.Nodes)
	rep.Edges = len(g.Edges)

	slog.Info("txt2kgx: document processed",
		"document", name,
		"payload_path", rep.PayloadPath,
		"nodes", rep.Nodes,
		"edges", rep.Edges,
		"diagnostics", diag)
	return rep, nil
}

// ProcessFile parses the document at path and processes its text. With a
// ledger, the outcome is recorded in a run of its own and an unchanged
// document already marked done is skipped unless WithForce is given.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, opts ...ProcessOption) (*Report, error) {
	batch, err := p.ProcessAll(ctx, []string{path}, opts...)
	if err != nil {
		return nil, err
	}
	rep := batch.Reports[0]
	return &rep, rep.Err
}

// ProcessAll processes paths in order. A failing document is reported and
// the batch continues; the returned error is reserved for ledger failures
// and context cancellation, in which case the partial batch is returned.
func (p *Pipeline) ProcessAll(ctx context.Context, paths []string, opts ...ProcessOption) (*Batch, error) {
	o := &processOptions{}
	for _, opt := range opts {
		opt(o)
	}

	batch := &Batch{}
	if p.ledger != nil {
		runID, err := p.ledger.StartRun(ctx, p.cfg.NodesFile, p.cfg.EdgesFile)
		if err != nil {
			return nil, err
		}
		batch.RunID = runID
	}

	var runErr error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		rep, err := p.processFile(ctx, batch.RunID, path, o)
		if err != nil {
			runErr = err
			break
		}
		if rep.Err != nil {
			slog.Warn("txt2kgx: document failed", "path", path, "error", rep.Err)
		}
		batch.add(rep)
	}

	if p.ledger != nil {
		// Stamp the run even when cancelled so its counts stay accurate.
		if err := p.ledger.FinishRun(context.WithoutCancel(ctx), batch.RunID); err != nil && runErr == nil {
			runErr = err
		}
	}
	batch.UnmappedCategories, batch.UnmappedPredicates = p.Unmapped()

	slog.Info("txt2kgx: batch finished",
		"run_id", batch.RunID,
		"succeeded", batch.Succeeded,
		"failed", batch.Failed,
		"skipped", batch.Skipped)
	return batch, runErr
}

// processFile handles one path. Document failures land in the report; the
// error return is only for ledger failures.
func (p *Pipeline) processFile(ctx context.Context, runID int64, path string, o *processOptions) (Report, error) {
	rep := Report{Document: filepath.Base(path), Path: path, Status: StatusFailed}

	absPath, err := filepath.Abs(path)
	if err != nil {
		rep.Err = fmt.Errorf("resolving path: %w", err)
		return rep, nil
	}
	rep.Path = absPath
	format := parser.FormatOf(absPath)

	var docID int64
	if p.ledger != nil {
		hash, err := store.HashFile(absPath)
		if err != nil {
			rep.Err = fmt.Errorf("%w: %s: %w", ErrParsingFailed, rep.Document, err)
			return rep, nil
		}
		if !o.force {
			done, err := p.ledger.AlreadyProcessed(ctx, absPath, hash)
			if err != nil {
				return rep, err
			}
			if done {
				rep.Status = StatusSkipped
				slog.Info("txt2kgx: document unchanged, skipping", "path", absPath)
				return rep, p.recordSkip(ctx, runID, absPath)
			}
		}
		docID, err = p.ledger.UpsertDocument(ctx, store.Document{
			Path:        absPath,
			Filename:    rep.Document,
			Format:      format,
			ContentHash: hash,
			Status:      store.StatusPending,
		})
		if err != nil {
			return rep, err
		}
	}

	p.extractFile(ctx, absPath, format, &rep)

	if p.ledger == nil {
		return rep, nil
	}
	_, err = p.ledger.RecordOutcome(ctx, store.Outcome{
		RunID:      runID,
		DocumentID: docID,
		Status:     rep.Status,
		Error:      errText(rep.Err),
	}, rep.Diagnostics, rep.Nodes, rep.Edges)
	return rep, err
}

func (p *Pipeline) extractFile(ctx context.Context, path, format string, rep *Report) {
	parse, err := p.parsers.Get(format)
	if err != nil {
		rep.Err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		return
	}
	doc, err := parse.Parse(ctx, path)
	if err != nil {
		rep.Err = fmt.Errorf("%w: %s: %w", ErrParsingFailed, rep.Document, err)
		return
	}
	textRep, _ := p.ProcessText(ctx, doc.Name, doc.Text)
	textRep.Path = rep.Path
	*rep = *textRep
}

// recordSkip stores a skipped outcome against the existing document row.
func (p *Pipeline) recordSkip(ctx context.Context, runID int64, path string) error {
	doc, err := p.ledger.GetDocumentByPath(ctx, path)
	if err != nil {
		return err
	}
	_, err = p.ledger.RecordOutcome(ctx, store.Outcome{
		RunID:      runID,
		DocumentID: doc.ID,
		Status:     StatusSkipped,
	}, nil, doc.Nodes, doc.Edges)
	return err
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Close releases the ledger if the pipeline opened it.
func (p *Pipeline) Close() error {
	if p.ownsLedger && p.ledger != nil {
		return p.ledger.Close()
	}
	return nil
}

// CollectInputs expands path into the documents to process. A file is
// returned as is; a directory yields every file with a supported format
// beneath it, in lexical order.
func CollectInputs(path string, reg *parser.Registry) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	if reg == nil {
		reg = parser.NewRegistry()
	}

	var out []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if reg.Supports(parser.FormatOf(p)) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", path, err)
	}
	return out, nil
}
