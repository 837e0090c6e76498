package prompt

import (
	"github.com/ppiankov/folio/internal/budget"
	"github.com/ppiankov/folio/internal/model"
)

// ResearchPrompt is the request payload for a research query plus the
// selection data callers log alongside it
type ResearchPrompt struct {
	SystemPrompt         string             `json:"systemPrompt"`
	UserMessage          string             `json:"userMessage"`
	EstimatedInputTokens int                `json:"estimatedInputTokens"`
	ChunkSelection       model.BudgetResult `json:"chunkSelection"`
}

// Assembler turns candidate chunks into prompts under a token budget
type Assembler struct {
	budget    model.TokenBudget
	estimator budget.Estimator
	selector  *budget.Selector
}

// NewAssembler creates an assembler with a default budget and estimator
func NewAssembler(defaults model.TokenBudget, estimator budget.Estimator) *Assembler {
	return &Assembler{
		budget:    defaults,
		estimator: estimator,
		selector:  budget.NewSelector(estimator),
	}
}

// DefaultAssembler uses model.DefaultTokenBudget and the default estimator
func DefaultAssembler() *Assembler {
	return NewAssembler(model.DefaultTokenBudget(), budget.DefaultEstimator())
}

// Budget returns the assembler's default budget
func (a *Assembler) Budget() model.TokenBudget {
	return a.budget
}

// selectChunks dedups before budgeting so repeats never consume budget twice,
// and sorts after budgeting so sort cost is bounded by the selected count
func (a *Assembler) selectChunks(candidates []model.Chunk, overrides *model.TokenBudget) model.BudgetResult {
	unique := budget.Deduplicate(candidates)
	result := a.selector.SelectWithinBudget(unique, a.budget.WithOverrides(overrides))
	result.SelectedChunks = budget.SortByDocumentOrder(result.SelectedChunks)
	return result
}

// BuildResearchPrompt assembles the complete research request.
// An empty candidate list produces a prompt carrying only the query.
func (a *Assembler) BuildResearchPrompt(query string, candidates []model.Chunk, overrides *model.TokenBudget) ResearchPrompt {
	selection := a.selectChunks(candidates, overrides)
	userMessage := BuildResearchUserMessage(query, selection.SelectedChunks)

	return ResearchPrompt{
		SystemPrompt:         ResearchSystemPrompt,
		UserMessage:          userMessage,
		EstimatedInputTokens: a.estimator.EstimateTokens(ResearchSystemPrompt) + a.estimator.EstimateTokens(userMessage),
		ChunkSelection:       selection,
	}
}

// BuildSourceContextForRewrite returns only the formatted source block for a
// chapter rewrite. The second result is false when no chunk survives selection.
func (a *Assembler) BuildSourceContextForRewrite(chunks []model.Chunk, overrides *model.TokenBudget) (string, bool) {
	if len(chunks) == 0 {
		return "", false
	}
	selection := a.selectChunks(chunks, overrides)
	if len(selection.SelectedChunks) == 0 {
		return "", false
	}
	return FormatChunksForPrompt(selection.SelectedChunks), true
}

// BuildResearchPrompt assembles a research request with the default assembler
func BuildResearchPrompt(query string, candidates []model.Chunk, overrides *model.TokenBudget) ResearchPrompt {
	return DefaultAssembler().BuildResearchPrompt(query, candidates, overrides)
}

// BuildSourceContextForRewrite formats rewrite context with the default assembler
func BuildSourceContextForRewrite(chunks []model.Chunk, overrides *model.TokenBudget) (string, bool) {
	return DefaultAssembler().BuildSourceContextForRewrite(chunks, overrides)
}
