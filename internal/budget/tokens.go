package budget

import (
	"math"
	"strings"

	"github.com/ppiankov/folio/internal/model"
)

// DefaultTokenRatio is the number of tokens assumed per whitespace-delimited word.
// It deliberately overestimates so budget checks exclude content rather than overflow.
const DefaultTokenRatio = 1.33

// Estimator approximates token counts from word counts
type Estimator struct {
	ratio float64
}

// NewEstimator creates an estimator with the given tokens-per-word ratio.
// Non-positive ratios fall back to DefaultTokenRatio.
func NewEstimator(ratio float64) Estimator {
	if ratio <= 0 {
		ratio = DefaultTokenRatio
	}
	return Estimator{ratio: ratio}
}

// DefaultEstimator returns an estimator using DefaultTokenRatio
func DefaultEstimator() Estimator {
	return NewEstimator(DefaultTokenRatio)
}

// Ratio returns the tokens-per-word ratio
func (e Estimator) Ratio() float64 {
	if e.ratio <= 0 {
		return DefaultTokenRatio
	}
	return e.ratio
}

// EstimateTokens counts whitespace-delimited words and scales them by the ratio, rounding up.
// Empty or whitespace-only text is 0 tokens.
func (e Estimator) EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * e.Ratio()))
}

// EstimateChunkTokens estimates the prompt cost of a chunk including the
// attribution header and separator rendered around it
func (e Estimator) EstimateChunkTokens(c model.Chunk) int {
	return e.EstimateTokens(c.Header()) + e.EstimateTokens(c.Text) + e.EstimateTokens(model.ChunkSeparator)
}

// EstimateTokens estimates tokens with the default ratio
func EstimateTokens(text string) int {
	return DefaultEstimator().EstimateTokens(text)
}

// EstimateChunkTokens estimates chunk tokens with the default ratio
func EstimateChunkTokens(c model.Chunk) int {
	return DefaultEstimator().EstimateChunkTokens(c)
}
