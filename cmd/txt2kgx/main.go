// Command txt2kgx extracts entities and relationships from a document, or
// from every supported document in a directory, and appends them to KGX
// node and edge TSV files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brunobiangulo/txt2kgx"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	nodesFile := flag.String("nodes-file", "", "Output file for nodes (default nodes.tsv)")
	edgesFile := flag.String("edges-file", "", "Output file for edges (default edges.tsv)")
	ledger := flag.String("ledger", "", "SQLite run ledger; unchanged documents are skipped")
	force := flag.Bool("force", false, "Process documents the ledger marks as done")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <file-or-directory>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	cfg, err := txt2kgx.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *nodesFile != "" {
		cfg.NodesFile = *nodesFile
	}
	if *edgesFile != "" {
		cfg.EdgesFile = *edgesFile
	}
	if *ledger != "" {
		cfg.LedgerPath = *ledger
	}

	os.Exit(run(cfg, input, *force))
}

func run(cfg txt2kgx.Config, input string, force bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := txt2kgx.New(cfg)
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		return 1
	}
	defer p.Close()

	paths, err := txt2kgx.CollectInputs(input, nil)
	if err != nil {
		slog.Error("reading input", "path", input, "error", err)
		return 1
	}
	if len(paths) == 0 {
		slog.Warn("no supported documents found", "path", input)
		return 0
	}

	var opts []txt2kgx.ProcessOption
	if force {
		opts = append(opts, txt2kgx.WithForce())
	}
	batch, err := p.ProcessAll(ctx, paths, opts...)
	if err != nil {
		if errors.Is(err, context.Canceled) && batch != nil {
			slog.Warn("interrupted", "processed", len(batch.Reports), "total", len(paths))
		} else {
			slog.Error("processing", "error", err)
		}
		return 1
	}

	if len(batch.UnmappedCategories) > 0 || len(batch.UnmappedPredicates) > 0 {
		slog.Warn("unmapped terms",
			"categories", batch.UnmappedCategories,
			"predicates", batch.UnmappedPredicates)
	}
	if batch.Failed > 0 {
		return 1
	}
	return 0
}
