// Command eval runs an annotated dataset through the extraction pipeline and
// reports entity and edge precision, recall and F1.
//
// Usage:
//
//	go run ./cmd/eval \
//	  --dataset ./testdata/gold.yaml \
//	  --config ./txt2kgx.yaml \
//	  --output report.json
//
// The graph rows produced during evaluation go to a temporary directory
// unless --keep-output is set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brunobiangulo/txt2kgx"
	"github.com/brunobiangulo/txt2kgx/eval"
)

func main() {
	var (
		datasetPath = flag.String("dataset", "", "Path to gold dataset (YAML or JSON)")
		configPath  = flag.String("config", "", "Path to pipeline config file")
		outputPath  = flag.String("output", "", "Write the JSON report to this file")
		minF1       = flag.Float64("min-f1", eval.DefaultMinF1, "Edge F1 a case needs to pass")
		keepOutput  = flag.Bool("keep-output", false, "Append extracted rows to the configured node/edge files")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *datasetPath == "" {
		fmt.Fprintln(os.Stderr, "--dataset is required")
		os.Exit(2)
	}

	ds, err := eval.LoadDataset(*datasetPath)
	if err != nil {
		slog.Error("loading dataset", "error", err)
		os.Exit(1)
	}

	cfg, err := txt2kgx.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if !*keepOutput {
		tmp, err := os.MkdirTemp("", "txt2kgx-eval-")
		if err != nil {
			slog.Error("creating temp dir", "error", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmp)
		cfg.NodesFile = filepath.Join(tmp, "nodes.tsv")
		cfg.EdgesFile = filepath.Join(tmp, "edges.tsv")
		cfg.LedgerPath = ""
	}

	p, err := txt2kgx.New(cfg)
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	ev := eval.NewEvaluator(p)
	ev.MinF1 = *minF1

	report, err := ev.Run(context.Background(), ds)
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		os.Exit(1)
	}

	fmt.Print(eval.FormatReport(report))

	if *outputPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			slog.Error("encoding report", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outputPath, data, 0o644); err != nil {
			slog.Error("writing report", "error", err)
			os.Exit(1)
		}
		slog.Info("report written", "path", *outputPath)
	}
}
