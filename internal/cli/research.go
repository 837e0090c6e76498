package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/folio/internal/pipeline"
	"github.com/ppiankov/folio/internal/source"
	"github.com/spf13/cobra"
)

var (
	chunksPath   string
	query        string
	outJSON      string
	outMD        string
	outReport    string
	noFooter     bool
	timeout      time.Duration
	researchOpts providerFlags
)

// researchCmd represents the research command
var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Answer a research query from a chunk pool",
	Long: `Research selects the chunks that fit the token budget, asks the configured
model for verbatim passages answering the query, and prints the result:
- Chunks are read in relevance order from a .json, .jsonl or .yaml file or URL
- Selected chunks are presented to the model in document order
- Malformed model output is recovered where possible and reported otherwise

Example:
  folio research --chunks pool.json --query "How do finch beaks vary?"
  folio research --chunks pool.jsonl --query "..." --md answer.md --report run.json
  folio research --chunks https://example.com/pool.json --query "..." --provider ollama --model llama3`,
	Args: cobra.NoArgs,
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)

	researchCmd.Flags().StringVar(&chunksPath, "chunks", "", "chunk pool file or URL (required)")
	researchCmd.Flags().StringVarP(&query, "query", "q", "", "research query (required)")
	_ = researchCmd.MarkFlagRequired("chunks")
	_ = researchCmd.MarkFlagRequired("query")

	// Output flags
	researchCmd.Flags().StringVar(&outJSON, "json", "-", "output JSON path (- for stdout)")
	researchCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	researchCmd.Flags().StringVar(&outReport, "report", "", "output run report JSON path (optional)")
	researchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown output")
	researchCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")

	researchOpts.register(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	researchOpts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if verbose {
		fmt.Fprintf(os.Stderr, "Chunks:   %s\n", chunksPath)
		fmt.Fprintf(os.Stderr, "Provider: %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "Strict:   %v\n", cfg.Research.Strict)
		fmt.Fprintf(os.Stderr, "Cache:    %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	chunks, err := source.Load(ctx, chunksPath, nil)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Loaded %d chunks\n", len(chunks))
	}

	researcher, err := buildResearcher(cfg, log)
	if err != nil {
		return err
	}

	run, err := researcher.Research(ctx, query, chunks, researchOpts.overrides())
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	renderer := pipeline.NewRenderer(!noFooter)
	if verbose {
		renderer.RenderSummary(os.Stderr, run)
		fmt.Fprintln(os.Stderr)
	}

	if err := renderOutputs(renderer, run, outJSON, outMD, outReport); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if !run.Succeeded() {
		return errors.New("model response could not be interpreted")
	}
	return nil
}

func renderOutputs(r *pipeline.Renderer, run *pipeline.Run, jsonPath, mdPath, reportPath string) error {
	if jsonPath != "" {
		if err := r.RenderJSON(run, jsonPath); err != nil {
			return err
		}
		if verbose && jsonPath != "-" {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", jsonPath)
		}
	}
	if mdPath != "" {
		if err := r.RenderMarkdown(run, mdPath); err != nil {
			return err
		}
		if verbose && mdPath != "-" {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", mdPath)
		}
	}
	if reportPath != "" {
		if err := r.RenderReportJSON(run.Report, reportPath); err != nil {
			return err
		}
	}
	return nil
}
