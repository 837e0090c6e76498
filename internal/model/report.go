package model

import "time"

// Report is the telemetry record of one research run.
// It never changes the result returned to the client.
type Report struct {
	ID        string    `json:"id"`         // Request ID for log correlation
	Query     string    `json:"query"`      // Research query as submitted
	CreatedAt time.Time `json:"created_at"` // When the run started

	Provider string `json:"provider,omitempty"` // openai, anthropic, ollama
	Model    string `json:"model,omitempty"`

	Selection            SelectionStats `json:"selection"`
	EstimatedInputTokens int            `json:"estimated_input_tokens"`
	UsedInputTokens      int            `json:"used_input_tokens,omitempty"`  // As reported by the provider
	UsedOutputTokens     int            `json:"used_output_tokens,omitempty"` // As reported by the provider

	Grounding *Grounding `json:"grounding,omitempty"` // Set only for successful results with snippets

	Outcome  Outcome  `json:"outcome"`
	Failure  string   `json:"failure,omitempty"` // Parse failure message, if any
	Signals  []Signal `json:"signals"`
	Warnings []string `json:"warnings,omitempty"` // Parser shape warnings
}

// SelectionStats summarizes a BudgetResult without the chunk bodies
type SelectionStats struct {
	Candidates      int      `json:"candidates"`
	Selected        int      `json:"selected"`
	Excluded        int      `json:"excluded"`
	TotalTokens     int      `json:"total_tokens"`
	BudgetExhausted bool     `json:"budget_exhausted"`
	ChunkIDs        []string `json:"chunk_ids,omitempty"`
}

// Outcome classifies how the model response was interpreted
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial" // Failure with a salvaged summary
)

// Signal is a diagnostic observation about a run, with its raw numbers
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalBudgetExhausted  SignalType = "budget_exhausted"  // Not every candidate chunk fit
	SignalSnippetsDropped  SignalType = "snippets_dropped"  // Snippet cap discarded results
	SignalContentTruncated SignalType = "content_truncated" // Snippet content exceeded the length cap
	SignalShapeDrift       SignalType = "shape_drift"       // Response deviated from the canonical schema
	SignalPartialResult    SignalType = "partial_result"    // Only a summary could be salvaged
	SignalCacheHit         SignalType = "cache_hit"         // Raw response served from cache
	SignalEmptyContext     SignalType = "empty_context"     // Prompt carried no source material
	SignalResponseCutOff   SignalType = "response_cut_off"  // Model stopped at the output token limit
	SignalUnknownSource    SignalType = "unknown_source"    // Snippet cites a source that was not in the prompt
	SignalUnverifiedQuote  SignalType = "unverified_quote"  // Snippet text does not appear in the cited source
	SignalMisattributed    SignalType = "misattributed"     // Snippet text belongs to a different source
)

// Grounding measures how faithfully snippets quote the selected chunks.
// Index is 0-100: 40 points for citing sources that were in the prompt
// and 60 for content found verbatim in the cited source.
type Grounding struct {
	Index         int      `json:"index"`
	Confidence    string   `json:"confidence"` // high, medium, low
	Snippets      int      `json:"snippets"`
	Verified      int      `json:"verified"`       // Found in a chunk of the cited source
	Misattributed int      `json:"misattributed"`  // Found only in another source's chunks
	Unverified    int      `json:"unverified"`     // Found in no selected chunk
	UnknownSource int      `json:"unknown_source"` // Cited source absent from the prompt
	Signals       []Signal `json:"-"`
}

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// NewSelectionStats condenses a BudgetResult for reporting
func NewSelectionStats(candidates int, r BudgetResult) SelectionStats {
	ids := make([]string, 0, len(r.SelectedChunks))
	for _, c := range r.SelectedChunks {
		ids = append(ids, c.ID)
	}
	return SelectionStats{
		Candidates:      candidates,
		Selected:        len(r.SelectedChunks),
		Excluded:        r.ExcludedCount,
		TotalTokens:     r.TotalTokens,
		BudgetExhausted: r.BudgetExhausted,
		ChunkIDs:        ids,
	}
}

// HasSignal reports whether the report carries a signal of the given type
func (r *Report) HasSignal(t SignalType) bool {
	for _, s := range r.Signals {
		if s.Type == t {
			return true
		}
	}
	return false
}
