package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ppiankov/folio/internal/source"
	"github.com/spf13/cobra"
)

var (
	contextChunks string
	contextOpts   providerFlags
)

// contextCmd represents the context command
var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the source context used when rewriting prose",
	Long: `Context prints the attributed source block that accompanies a rewrite
request, built from the same chunk pool and budget rules as research.

Example:
  folio context --chunks pool.json
  folio context --chunks pool.json --budget 4000 > context.txt`,
	Args: cobra.NoArgs,
	RunE: runContext,
}

func init() {
	rootCmd.AddCommand(contextCmd)

	contextCmd.Flags().StringVar(&contextChunks, "chunks", "", "chunk pool file or URL (required)")
	_ = contextCmd.MarkFlagRequired("chunks")

	contextOpts.registerBudget(contextCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	chunks, err := source.Load(context.Background(), contextChunks, nil)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg.LLM.Provider = ""
	cfg.Cache.Enabled = false
	researcher, err := buildResearcher(cfg, log)
	if err != nil {
		return err
	}

	text, ok := researcher.RewriteContext(chunks, contextOpts.overrides())
	if !ok {
		fmt.Fprintf(os.Stderr, "No source chunks fit the budget (%d candidates)\n", len(chunks))
		return nil
	}

	fmt.Println(text)
	return nil
}
