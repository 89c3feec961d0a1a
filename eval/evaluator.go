package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/txt2kgx"
	"github.com/brunobiangulo/txt2kgx/graph"
)

// DefaultMinF1 is the edge F1 a case needs to pass.
const DefaultMinF1 = 0.5

// Extractor is the part of *txt2kgx.Pipeline the evaluator drives.
type Extractor interface {
	ProcessText(ctx context.Context, name, text string) (*txt2kgx.Report, error)
	ProcessFile(ctx context.Context, path string, opts ...txt2kgx.ProcessOption) (*txt2kgx.Report, error)
}

// Evaluator runs datasets through an extractor and scores the output.
type Evaluator struct {
	extractor Extractor
	// MinF1 is the edge F1 threshold for a passing case.
	MinF1 float64
}

// NewEvaluator creates an Evaluator over x.
func NewEvaluator(x Extractor) *Evaluator {
	return &Evaluator{extractor: x, MinF1: DefaultMinF1}
}

// Report holds the results of an evaluation run. Totals are micro-averaged
// over all cases that produced a graph.
type Report struct {
	Dataset    string        `json:"dataset"`
	TotalCases int           `json:"total_cases"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Entities   Score         `json:"entities"`
	Edges      Score         `json:"edges"`
	Results    []CaseResult  `json:"results"`
	RunTime    time.Duration `json:"run_time"`
	TokenUsage TokenUsage    `json:"token_usage"`
}

// TokenUsage aggregates generation token consumption across a run.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name        string             `json:"name"`
	Entities    Score              `json:"entities"`
	Edges       Score              `json:"edges"`
	Diagnostics *graph.Diagnostics `json:"diagnostics,omitempty"`
	Passed      bool               `json:"passed"`
	Error       string             `json:"error,omitempty"`
	ElapsedMs   int64              `json:"elapsed_ms"`
}

// Run evaluates every case of ds in order. A failing case is recorded and
// the run continues; only context cancellation aborts it.
func (e *Evaluator) Run(ctx context.Context, ds Dataset) (*Report, error) {
	start := time.Now()
	r := &Report{Dataset: ds.Name, TotalCases: len(ds.Cases)}

	for i, c := range ds.Cases {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		res, rep := e.runCase(ctx, i, c)
		if rep != nil {
			r.TokenUsage.PromptTokens += rep.PromptTokens
			r.TokenUsage.CompletionTokens += rep.CompletionTokens
		}
		if res.Error == "" {
			r.Entities.add(res.Entities)
			r.Edges.add(res.Edges)
		}
		if res.Passed {
			r.Passed++
		} else {
			r.Failed++
		}
		r.Results = append(r.Results, res)

		slog.Info("eval: case finished",
			"case", res.Name,
			"passed", res.Passed,
			"entity_f1", res.Entities.F1(),
			"edge_f1", res.Edges.F1(),
			"elapsed_ms", res.ElapsedMs)
	}

	r.RunTime = time.Since(start)
	return r, nil
}

func (e *Evaluator) runCase(ctx context.Context, i int, c Case) (CaseResult, *txt2kgx.Report) {
	start := time.Now()
	res := CaseResult{Name: c.label(i)}

	var (
		rep *txt2kgx.Report
		err error
	)
	if c.Document != "" {
		// Forced so a ledger never skips a case and leaves nothing to score.
		rep, err = e.extractor.ProcessFile(ctx, c.Document, txt2kgx.WithForce())
	} else {
		rep, err = e.extractor.ProcessText(ctx, res.Name, c.Text)
	}
	res.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res, rep
	}

	res.Diagnostics = &rep.Diagnostics
	var nodes []graph.Node
	if rep.Graph != nil {
		nodes = rep.Graph.Nodes
	}
	res.Entities = ScoreEntities(nodes, c.Entities)
	res.Edges = ScoreEdges(rep.Graph, c.Edges)
	res.Passed = res.Edges.F1() >= e.MinF1 || (len(c.Edges) == 0 && res.Edges.FalsePositives == 0)
	return res, rep
}

// FormatReport produces a human-readable report string.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Extraction Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d\n",
		r.TotalCases, r.Passed, passRate(r.Passed, r.TotalCases), r.Failed)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Micro-averaged Metrics:\n")
	fmt.Fprintf(&b, "  Entities:  P=%.2f R=%.2f F1=%.2f\n", r.Entities.Precision(), r.Entities.Recall(), r.Entities.F1())
	fmt.Fprintf(&b, "  Edges:     P=%.2f R=%.2f F1=%.2f\n\n", r.Edges.Precision(), r.Edges.Recall(), r.Edges.F1())

	fmt.Fprintf(&b, "Token Usage:\n")
	fmt.Fprintf(&b, "  Prompt:     %d\n", r.TokenUsage.PromptTokens)
	fmt.Fprintf(&b, "  Completion: %d\n\n", r.TokenUsage.CompletionTokens)

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", status, i+1, res.Name)
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(&b, "  Entities F1=%.2f  Edges F1=%.2f  (%dms)\n", res.Entities.F1(), res.Edges.F1(), res.ElapsedMs)
		for _, k := range res.Edges.Missed {
			fmt.Fprintf(&b, "    missed:   %s\n", k)
		}
		for _, k := range res.Edges.Spurious {
			fmt.Fprintf(&b, "    spurious: %s\n", k)
		}
	}

	return b.String()
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}
