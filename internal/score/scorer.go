package score

import (
	"fmt"
	"strings"

	"github.com/ppiankov/folio/internal/model"
)

// Scorer checks snippets against the chunks that were actually in the prompt
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate grades how well snippets are grounded in the selected chunks.
// It returns nil when there are no snippets to grade.
func (s *Scorer) Calculate(snippets []model.Snippet, selected []model.Chunk) *model.Grounding {
	if len(snippets) == 0 {
		return nil
	}

	bySource := make(map[string][]string)
	for _, c := range selected {
		bySource[c.SourceID] = append(bySource[c.SourceID], normalize(c.Text))
	}

	g := &model.Grounding{Snippets: len(snippets)}
	for _, sn := range snippets {
		if _, ok := bySource[sn.SourceID]; !ok {
			g.UnknownSource++
		}

		quote := normalize(trimEllipsis(sn.Content))
		switch {
		case containsIn(bySource[sn.SourceID], quote):
			g.Verified++
		case foundElsewhere(bySource, sn.SourceID, quote):
			g.Misattributed++
		default:
			g.Unverified++
		}
	}

	// 1. Attribution (0-40 points)
	attributionScore, attributionSignal := s.calculateAttribution(g)
	if attributionSignal.Type != "" {
		g.Signals = append(g.Signals, attributionSignal)
	}

	// 2. Verbatim quoting (0-60 points)
	verbatimScore, verbatimSignals := s.calculateVerbatim(g)
	g.Signals = append(g.Signals, verbatimSignals...)

	g.Index = attributionScore + verbatimScore
	g.Confidence = s.determineConfidence(g.Index, g.Snippets)

	return g
}

// calculateAttribution scores the share of snippets citing a source that was in the prompt (0-40 points)
func (s *Scorer) calculateAttribution(g *model.Grounding) (int, model.Signal) {
	known := g.Snippets - g.UnknownSource
	ratio := float64(known) / float64(g.Snippets)
	score := int(ratio * 40)

	if g.UnknownSource == 0 {
		return score, model.Signal{}
	}

	severity := model.SeverityWarning
	if ratio < 0.5 {
		severity = model.SeverityCritical
	}

	return score, model.Signal{
		Type:        model.SignalUnknownSource,
		Severity:    severity,
		Description: fmt.Sprintf("%d of %d snippets cite a source that was not in the prompt", g.UnknownSource, g.Snippets),
		Data: map[string]interface{}{
			"unknown_source": g.UnknownSource,
			"snippets":       g.Snippets,
			"score":          score,
			"formula":        "(snippets - unknown_source) / snippets * 40",
		},
	}
}

// calculateVerbatim scores the share of snippets quoted verbatim from their cited source (0-60 points)
func (s *Scorer) calculateVerbatim(g *model.Grounding) (int, []model.Signal) {
	ratio := float64(g.Verified) / float64(g.Snippets)
	score := int(ratio * 60)

	var signals []model.Signal
	if g.Unverified > 0 {
		severity := model.SeverityWarning
		if ratio < 0.5 {
			severity = model.SeverityCritical
		}
		signals = append(signals, model.Signal{
			Type:        model.SignalUnverifiedQuote,
			Severity:    severity,
			Description: fmt.Sprintf("%d of %d snippets do not appear verbatim in any selected chunk", g.Unverified, g.Snippets),
			Data: map[string]interface{}{
				"unverified": g.Unverified,
				"verified":   g.Verified,
				"score":      score,
				"formula":    "verified / snippets * 60",
			},
		})
	}
	if g.Misattributed > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalMisattributed,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d snippets quote a different source than the one they cite", g.Misattributed),
			Data:        map[string]interface{}{"misattributed": g.Misattributed},
		})
	}

	return score, signals
}

// determineConfidence determines the confidence level based on the index
func (s *Scorer) determineConfidence(index int, snippets int) string {
	if snippets < 2 && index < 100 {
		return "low"
	}

	if index >= 80 {
		return "high"
	} else if index >= 50 {
		return "medium"
	} else {
		return "low"
	}
}

// normalize folds whitespace, case and typographic quotes so that
// re-flowed quotations still match their source
func normalize(s string) string {
	s = quoteReplacer.Replace(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
)

func trimEllipsis(s string) string {
	s = strings.TrimSpace(s)
	for _, e := range []string{"...", "…"} {
		s = strings.TrimPrefix(s, e)
		s = strings.TrimSuffix(s, e)
	}
	return s
}

func containsIn(texts []string, quote string) bool {
	if quote == "" {
		return false
	}
	for _, t := range texts {
		if strings.Contains(t, quote) {
			return true
		}
	}
	return false
}

func foundElsewhere(bySource map[string][]string, cited, quote string) bool {
	for id, texts := range bySource {
		if id != cited && containsIn(texts, quote) {
			return true
		}
	}
	return false
}
