package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/folio/internal/model"
)

// ErrorResponse is the client-facing body for an uninterpretable response
type ErrorResponse struct {
	Error   string                     `json:"error"`
	Partial *model.ResearchQueryResult `json:"partial,omitempty"`
}

// Renderer writes research runs in client and human formats
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// Body returns the value serialized to API clients: the result on success,
// otherwise an ErrorResponse carrying any partial summary
func Body(run *Run) interface{} {
	if run.Succeeded() {
		result := *run.Result
		if result.Snippets == nil {
			result.Snippets = []model.Snippet{}
		}
		return result
	}
	msg := "model response could not be interpreted"
	if run.Failure != nil {
		msg = run.Failure.Message
	}
	return ErrorResponse{Error: msg, Partial: run.Partial}
}

// WriteJSON writes the client body as indented JSON
func (r *Renderer) WriteJSON(w io.Writer, run *Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(Body(run))
}

// RenderJSON writes the client body to path
func (r *Renderer) RenderJSON(run *Run, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteJSON(w, run) })
}

// RenderReportJSON writes the telemetry report to path
func (r *Renderer) RenderReportJSON(report *model.Report, path string) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
}

// WriteMarkdown renders snippets as attributed block quotes
func (r *Renderer) WriteMarkdown(w io.Writer, run *Run) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research: %s\n\n", run.Report.Query)

	result := run.Result
	if !run.Succeeded() {
		b.WriteString("> **Could not interpret the model response.**\n")
		if run.Failure != nil {
			fmt.Fprintf(&b, "> %s\n", run.Failure.Message)
		}
		b.WriteString("\n")
		result = run.Partial
	}

	if result != nil {
		if result.Summary != "" {
			fmt.Fprintf(&b, "## Summary\n\n%s\n\n", result.Summary)
		}
		if result.NoResults || len(result.Snippets) == 0 {
			b.WriteString("_No relevant passages were found in the selected sources._\n\n")
		} else {
			b.WriteString("## Passages\n\n")
			for i, s := range result.Snippets {
				for _, line := range strings.Split(strings.TrimSpace(s.Content), "\n") {
					fmt.Fprintf(&b, "> %s\n", line)
				}
				fmt.Fprintf(&b, ">\n> Source: %s\n", attribution(s))
				if s.Relevance != "" {
					fmt.Fprintf(&b, "\n%s\n", s.Relevance)
				}
				if i < len(result.Snippets)-1 {
					b.WriteString("\n")
				}
			}
			b.WriteString("\n")
		}
	}

	if r.includeFooter {
		sel := run.Report.Selection
		fmt.Fprintf(&b, "---\n\n_%d of %d candidate chunks used (~%d tokens). Request %s._\n",
			sel.Selected, sel.Candidates, sel.TotalTokens, run.Report.ID)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderMarkdown writes the Markdown rendering to path
func (r *Renderer) RenderMarkdown(run *Run, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteMarkdown(w, run) })
}

// RenderSummary prints a short human summary of the run
func (r *Renderer) RenderSummary(w io.Writer, run *Run) {
	report := run.Report
	sel := report.Selection

	fmt.Fprintf(w, "Query:    %s\n", report.Query)
	fmt.Fprintf(w, "Context:  %d/%d chunks, ~%d tokens", sel.Selected, sel.Candidates, sel.TotalTokens)
	if sel.BudgetExhausted {
		fmt.Fprintf(w, " (%d excluded by budget)", sel.Excluded)
	}
	fmt.Fprintln(w)

	switch {
	case run.Succeeded() && run.Result.NoResults:
		fmt.Fprintf(w, "Outcome:  no relevant passages\n")
	case run.Succeeded():
		fmt.Fprintf(w, "Outcome:  %d snippets\n", len(run.Result.Snippets))
	case run.Partial != nil:
		fmt.Fprintf(w, "Outcome:  partial (summary only): %s\n", report.Failure)
	default:
		fmt.Fprintf(w, "Outcome:  failed: %s\n", report.Failure)
	}

	if g := report.Grounding; g != nil {
		fmt.Fprintf(w, "Grounding: %d/100 (%s confidence, %d/%d verbatim)\n", g.Index, g.Confidence, g.Verified, g.Snippets)
	}

	for _, s := range report.Signals {
		fmt.Fprintf(w, "  [%s] %s\n", s.Severity, s.Description)
	}
}

func attribution(s model.Snippet) string {
	title := s.SourceTitle
	if title == "" {
		title = s.SourceID
	}
	if s.SourceLocation != "" {
		return fmt.Sprintf("*%s*, %s", title, s.SourceLocation)
	}
	return fmt.Sprintf("*%s*", title)
}

// writeFile writes to path, or stdout when path is "-"
func writeFile(path string, write func(io.Writer) error) (err error) {
	if path == "-" {
		return write(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()

	return write(f)
}
