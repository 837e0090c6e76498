package model

import (
	"fmt"
	"strings"
)

// ChunkSeparator is placed between rendered chunks in a prompt
const ChunkSeparator = "\n\n---\n\n"

// FullDocumentSection labels chunks that carry no heading chain
const FullDocumentSection = "Full document"

// Chunk is an immutable excerpt from one source document
type Chunk struct {
	ID           string   `json:"id" yaml:"id"`                                         // Unique within a query batch (opaque)
	SourceID     string   `json:"sourceId" yaml:"source_id"`                            // Owning source document
	SourceTitle  string   `json:"sourceTitle" yaml:"source_title"`                      // Display title for attribution
	HeadingChain []string `json:"headingChain,omitempty" yaml:"heading_chain,omitempty"` // Section path; empty = whole document
	Text         string   `json:"text" yaml:"text"`                                     // Plain rendering
	HTML         string   `json:"html,omitempty" yaml:"html,omitempty"`                 // Rich rendering of the same excerpt
	WordCount    int      `json:"wordCount" yaml:"word_count"`
	StartOffset  int      `json:"startOffset" yaml:"start_offset"` // Position within the source
	EndOffset    int      `json:"endOffset" yaml:"end_offset"`
}

// Section returns the heading chain joined for display
func (c Chunk) Section() string {
	if len(c.HeadingChain) == 0 {
		return FullDocumentSection
	}
	return strings.Join(c.HeadingChain, " > ")
}

// Header renders the attribution line that precedes the chunk text in a prompt
func (c Chunk) Header() string {
	return fmt.Sprintf(`[Source: "%s" (id: %s), Section: "%s"]`, c.SourceTitle, c.SourceID, c.Section())
}

// TokenBudget bounds how much source material goes into one prompt
type TokenBudget struct {
	// SourceContextBudget caps the estimated tokens of formatted chunks
	SourceContextBudget int `json:"source_context_budget" yaml:"source_context_budget" mapstructure:"source_context_budget"`
	// MaxChunks caps the number of selected chunks
	MaxChunks int `json:"max_chunks" yaml:"max_chunks" mapstructure:"max_chunks"`
}

// DefaultTokenBudget returns the budget used when nothing is configured
func DefaultTokenBudget() TokenBudget {
	return TokenBudget{
		SourceContextBudget: 50000,
		MaxChunks:           40,
	}
}

// WithOverrides returns a copy of b with every positive field of o applied.
// A nil override leaves b unchanged.
func (b TokenBudget) WithOverrides(o *TokenBudget) TokenBudget {
	if o == nil {
		return b
	}
	if o.SourceContextBudget > 0 {
		b.SourceContextBudget = o.SourceContextBudget
	}
	if o.MaxChunks > 0 {
		b.MaxChunks = o.MaxChunks
	}
	return b
}

// BudgetResult describes which candidate chunks survived selection
type BudgetResult struct {
	SelectedChunks  []Chunk `json:"selectedChunks"`
	TotalTokens     int     `json:"totalTokens"`
	ExcludedCount   int     `json:"excludedCount"`
	BudgetExhausted bool    `json:"budgetExhausted"` // True iff not every candidate was selected
}
