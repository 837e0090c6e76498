package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/folio/internal/source"
	"github.com/spf13/cobra"
)

var (
	promptChunks string
	promptQuery  string
	promptJSON   bool
	promptOpts   providerFlags
)

// promptCmd represents the prompt command
var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the assembled research prompt without calling a model",
	Long: `Prompt is a dry run of context assembly. It prints the system prompt, the
user message and the chunk selection for a query so budgets can be tuned
before any tokens are spent.

Example:
  folio prompt --chunks pool.json --query "How do finch beaks vary?"
  folio prompt --chunks pool.json --query "..." --budget 8000 --max-chunks 10 --json`,
	Args: cobra.NoArgs,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)

	promptCmd.Flags().StringVar(&promptChunks, "chunks", "", "chunk pool file or URL (required)")
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "research query (required)")
	promptCmd.Flags().BoolVar(&promptJSON, "json", false, "print the prompt as JSON")
	_ = promptCmd.MarkFlagRequired("chunks")
	_ = promptCmd.MarkFlagRequired("query")

	promptOpts.registerBudget(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	chunks, err := source.Load(context.Background(), promptChunks, nil)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	// the prompt never reaches a model
	cfg.LLM.Provider = ""
	cfg.Cache.Enabled = false
	researcher, err := buildResearcher(cfg, log)
	if err != nil {
		return err
	}

	p := researcher.Prepare(promptQuery, chunks, promptOpts.overrides())

	if promptJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(p)
	}

	sel := p.ChunkSelection

	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println("  System Prompt")
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Println(p.SystemPrompt)
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println("  User Message")
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Println(p.UserMessage)
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println("  Selection")
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Printf("  Candidates:        %d\n", len(chunks))
	fmt.Printf("  Selected:          %d\n", len(sel.SelectedChunks))
	fmt.Printf("  Excluded:          %d\n", sel.ExcludedCount)
	fmt.Printf("  Source tokens:     ~%d\n", sel.TotalTokens)
	fmt.Printf("  Input tokens:      ~%d\n", p.EstimatedInputTokens)
	fmt.Printf("  Budget exhausted:  %v\n", sel.BudgetExhausted)
	fmt.Println()

	return nil
}
