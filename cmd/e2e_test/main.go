// Command e2e_test runs one sample article through the pipeline against a
// live generation service and prints the resulting report and rows. The
// service is taken from the environment like the main command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/txt2kgx"
)

const sampleArticle = `Metformin, a first-line drug for type 2 diabetes, activates AMPK in
hepatocytes and reduces hepatic gluconeogenesis. In aged mice, metformin
treatment was associated with extended lifespan and decreased markers of
chronic inflammation such as IL-6. Rapamycin inhibits mTOR and likewise
extends lifespan in several model organisms.`

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if os.Getenv("OAI_COMPATIBLE_BASE_URL") == "" {
		fmt.Fprintln(os.Stderr, "OAI_COMPATIBLE_BASE_URL not set")
		os.Exit(1)
	}

	tmpDir, _ := os.MkdirTemp("", "txt2kgx-e2e-*")
	defer os.RemoveAll(tmpDir)

	cfg, err := txt2kgx.LoadConfig(os.Getenv("TXT2KGX_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.NodesFile = filepath.Join(tmpDir, "nodes.tsv")
	cfg.EdgesFile = filepath.Join(tmpDir, "edges.tsv")
	cfg.LedgerPath = filepath.Join(tmpDir, "ledger.db")

	p, err := txt2kgx.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating pipeline: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	docPath := filepath.Join(tmpDir, "sample.txt")
	if err := os.WriteFile(docPath, []byte(sampleArticle), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "writing sample: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "\n=== EXTRACTING %s ===\n", docPath)
	rep, err := p.ProcessFile(ctx, docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "extraction error: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(out))

	for _, f := range []string{cfg.NodesFile, cfg.EdgesFile} {
		data, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n=== %s: %v ===\n", filepath.Base(f), err)
			continue
		}
		fmt.Fprintf(os.Stderr, "\n=== %s ===\n%s", filepath.Base(f), data)
	}
}
