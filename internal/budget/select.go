package budget

import "github.com/ppiankov/folio/internal/model"

// Selector picks chunks in the order given until a count or token ceiling is hit
type Selector struct {
	estimator Estimator
}

// NewSelector creates a selector that prices chunks with the given estimator
func NewSelector(estimator Estimator) *Selector {
	return &Selector{estimator: estimator}
}

// SelectWithinBudget walks chunks in input order (assumed descending relevance)
// and stops at the first chunk that would exceed either ceiling. Nothing after
// that point is considered, so a smaller later chunk never backfills the gap.
// A chunk whose own estimate exceeds the whole budget is never force-included.
func (s *Selector) SelectWithinBudget(chunks []model.Chunk, budget model.TokenBudget) model.BudgetResult {
	selected := make([]model.Chunk, 0, min(len(chunks), max(budget.MaxChunks, 0)))
	total := 0

	for _, c := range chunks {
		if len(selected) >= budget.MaxChunks {
			break
		}
		cost := s.estimator.EstimateChunkTokens(c)
		if total+cost > budget.SourceContextBudget {
			break
		}
		selected = append(selected, c)
		total += cost
	}

	excluded := len(chunks) - len(selected)
	return model.BudgetResult{
		SelectedChunks:  selected,
		TotalTokens:     total,
		ExcludedCount:   excluded,
		BudgetExhausted: excluded > 0,
	}
}

// SelectWithinBudget selects chunks using the default estimator
func SelectWithinBudget(chunks []model.Chunk, budget model.TokenBudget) model.BudgetResult {
	return NewSelector(DefaultEstimator()).SelectWithinBudget(chunks, budget)
}
