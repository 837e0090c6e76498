package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/folio/internal/pipeline"
	"github.com/ppiankov/folio/internal/source"
	"github.com/ppiankov/folio/internal/worker"
	"github.com/spf13/cobra"
)

var (
	batchChunks  string
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchOpts    providerFlags
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <queries-file>",
	Short: "Run many research queries against one chunk pool in parallel",
	Long: `Batch answers every query in a file against the same chunk pool:
- Read queries from the input file (one per line, # comments allowed)
- Run queries in parallel with a configurable worker count
- Throttle model calls with the configured rate limit
- Write one JSON result and one Markdown rendering per query

Example:
  folio batch queries.txt --chunks pool.json
  folio batch queries.txt --chunks pool.jsonl --concurrency 8 --output-dir ./answers`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchChunks, "chunks", "", "chunk pool file or URL (required)")
	_ = batchCmd.MarkFlagRequired("chunks")

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./folio-results", "output directory for results")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown output")

	batchOpts.register(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	batchOpts.apply(cfg)
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	workers := cfg.Concurrency.Workers

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Folio Batch Research\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Queries file: %s\n", file)
	fmt.Fprintf(os.Stderr, "  Chunks:       %s\n", batchChunks)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	chunks, err := source.Load(ctx, batchChunks, nil)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d chunks\n", len(chunks))

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	researcher, err := buildResearcher(cfg, log)
	if err != nil {
		return err
	}

	processor := worker.NewBatchProcessor(researcher, chunks, workers, batchOpts.overrides())
	processor.OnProgress(func(done, total int, r *worker.QueryResult) {
		fmt.Fprintf(os.Stderr, "  [%d/%d] %s\n", done, total, r.Query)
	})

	fmt.Fprintf(os.Stderr, "⚙️  Running queries with %d workers...\n", workers)
	fmt.Fprintf(os.Stderr, "\n")
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount := 0
	failureCount := 0
	renderer := pipeline.NewRenderer(!noFooter)

	for i, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Query, result.Error)
			continue
		}

		base := filepath.Join(outputDir, fmt.Sprintf("%02d-%s", i+1, sanitizeFilename(result.Query)))
		if err := renderOutputs(renderer, result.Run, base+".json", base+".md", ""); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Query, err)
			continue
		}

		if !result.Run.Succeeded() {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", result.Query, result.Run.Failure.Message)
			continue
		}

		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s (%d snippets)\n", result.Query, len(result.Run.Result.Snippets))
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d queries\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// sanitizeFilename turns a query into a short file-safe slug
func sanitizeFilename(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 60 {
		slug = strings.TrimSuffix(slug[:60], "-")
	}
	if slug == "" {
		slug = "query"
	}
	return slug
}
