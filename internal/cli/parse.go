package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/folio/internal/parse"
	"github.com/ppiankov/folio/internal/pipeline"
	"github.com/spf13/cobra"
)

var parseStrict bool

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Interpret a saved raw model response",
	Long: `Parse runs the response parser over a raw model reply saved to a file
(or read from stdin with -) and prints the client JSON body. Shape warnings
from the lenient parser are printed to stderr.

Example:
  folio parse response.txt
  pbpaste | folio parse - --strict`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().BoolVar(&parseStrict, "strict", false, "reject any response that does not match the schema exactly")
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := readInput(args[0])
	if err != nil {
		return err
	}

	parser := parse.NewParser(parse.Limits{
		MaxSnippets:      cfg.Research.MaxSnippets,
		MaxContentLength: cfg.Research.MaxContentLength,
		ExcerptLength:    cfg.Research.ExcerptLength,
	})

	run := &pipeline.Run{Raw: raw}
	if parseStrict || cfg.Research.Strict {
		result, err := parser.ParseResearchResponse(raw)
		if err != nil {
			run.Failure = parse.AsFailure(err)
		}
		run.Result = result
	} else {
		out, err := parser.ParseSnippetResponse(raw)
		for _, w := range out.Warnings {
			fmt.Fprintf(os.Stderr, "⚠ %s\n", w)
		}
		if err != nil {
			run.Failure = parse.AsFailure(err)
			run.Partial = out.Partial
		}
		run.Result = out.Result
	}

	if err := pipeline.NewRenderer(false).WriteJSON(os.Stdout, run); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	if !run.Succeeded() {
		if run.Failure.RawExcerpt != "" && verbose {
			fmt.Fprintf(os.Stderr, "Response excerpt:\n%s\n", run.Failure.RawExcerpt)
		}
		return errors.New("model response could not be interpreted")
	}
	return nil
}

// readInput reads a file, or stdin when path is "-"
func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(data), nil
}
