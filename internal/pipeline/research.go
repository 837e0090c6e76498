package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/folio/internal/budget"
	"github.com/ppiankov/folio/internal/cache"
	"github.com/ppiankov/folio/internal/llm"
	"github.com/ppiankov/folio/internal/logger"
	"github.com/ppiankov/folio/internal/model"
	"github.com/ppiankov/folio/internal/parse"
	"github.com/ppiankov/folio/internal/prompt"
	"github.com/ppiankov/folio/internal/score"
)

// RateLimiter throttles provider calls. tokens is the estimated prompt size.
type RateLimiter interface {
	Wait(ctx context.Context, provider string, tokens int) error
}

// Researcher runs research queries end to end: context assembly, the model
// call, and response interpretation
type Researcher struct {
	assembler *prompt.Assembler
	parser    *parse.Parser
	scorer    *score.Scorer
	provider  llm.Provider // nil when no provider is configured
	cache     cache.Cache  // nil disables response caching
	limiter   RateLimiter  // nil disables throttling
	log       *logger.Logger
	config    *model.Config
	newID     func() string
	now       func() time.Time
}

// Option customizes a Researcher
type Option func(*Researcher)

// WithCache enables raw response caching
func WithCache(c cache.Cache) Option {
	return func(r *Researcher) { r.cache = c }
}

// WithLimiter throttles provider calls
func WithLimiter(l RateLimiter) Option {
	return func(r *Researcher) { r.limiter = l }
}

// WithLogger sets the structured logger
func WithLogger(l *logger.Logger) Option {
	return func(r *Researcher) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResearcher creates a researcher from configuration. provider may be nil,
// in which case only Prepare and RewriteContext are usable.
func NewResearcher(cfg *model.Config, provider llm.Provider, opts ...Option) *Researcher {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}

	r := &Researcher{
		assembler: prompt.NewAssembler(cfg.Research.Budget, budget.NewEstimator(cfg.Research.TokenRatio)),
		parser: parse.NewParser(parse.Limits{
			MaxSnippets:      cfg.Research.MaxSnippets,
			MaxContentLength: cfg.Research.MaxContentLength,
			ExcerptLength:    cfg.Research.ExcerptLength,
		}),
		scorer:   score.NewScorer(),
		provider: provider,
		log:      logger.Nop(),
		config:   cfg,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run is the outcome of one research query. Exactly one of Result and
// Failure is set; Partial may accompany a Failure.
type Run struct {
	Prompt  prompt.ResearchPrompt
	Raw     string // Raw model response
	Result  *model.ResearchQueryResult
	Partial *model.ResearchQueryResult
	Failure *parse.Failure
	Report  *model.Report
}

// Succeeded reports whether the model response was interpreted
func (r *Run) Succeeded() bool {
	return r.Result != nil
}

// Prepare assembles the prompt without calling the model
func (r *Researcher) Prepare(query string, chunks []model.Chunk, overrides *model.TokenBudget) prompt.ResearchPrompt {
	return r.assembler.BuildResearchPrompt(query, chunks, overrides)
}

// RewriteContext returns the source block used when rewriting prose against
// the same chunk pool; false when no chunk fits
func (r *Researcher) RewriteContext(chunks []model.Chunk, overrides *model.TokenBudget) (string, bool) {
	return r.assembler.BuildSourceContextForRewrite(chunks, overrides)
}

// Research answers query from the candidate chunks, which must be in
// relevance order. Malformed model output is reported through Run.Failure;
// the returned error is reserved for provider and transport failures.
func (r *Researcher) Research(ctx context.Context, query string, chunks []model.Chunk, overrides *model.TokenBudget) (*Run, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("research query is empty")
	}
	if r.provider == nil {
		return nil, errors.New("no LLM provider configured (set llm.provider or --provider)")
	}

	id := r.newID()
	log := r.log.With("request_id", id, "provider", r.provider.Name())

	p := r.Prepare(query, chunks, overrides)
	run := &Run{
		Prompt: p,
		Report: &model.Report{
			ID:                   id,
			Query:                query,
			CreatedAt:            r.now().UTC(),
			Provider:             r.provider.Name(),
			Model:                r.config.LLM.Model,
			Selection:            model.NewSelectionStats(len(chunks), p.ChunkSelection),
			EstimatedInputTokens: p.EstimatedInputTokens,
			Signals:              []model.Signal{},
		},
	}
	addSelectionSignals(run.Report)

	log.Debug("prompt assembled",
		"candidates", len(chunks),
		"selected", run.Report.Selection.Selected,
		"excluded", run.Report.Selection.Excluded,
		"estimated_input_tokens", p.EstimatedInputTokens,
	)

	key := cache.ResponseKey(r.provider.Name(), r.config.LLM.Model, p.SystemPrompt, p.UserMessage)
	fromCache := false
	if r.cache != nil {
		if hit, ok := r.cache.Get(key); ok {
			run.Raw = hit.Raw
			fromCache = true
			if hit.Model != "" {
				run.Report.Model = hit.Model
			}
			run.Report.Signals = append(run.Report.Signals, model.Signal{
				Type:        model.SignalCacheHit,
				Severity:    model.SeverityInfo,
				Description: "Model response served from cache",
				Data: map[string]interface{}{
					"stored_at":     hit.StoredAt,
					"input_tokens":  hit.InputTokens,
					"output_tokens": hit.OutputTokens,
				},
			})
		}
	}

	if !fromCache {
		if err := r.complete(ctx, run); err != nil {
			log.Error("model call failed", "error", err)
			return nil, err
		}
	}

	r.interpret(run)
	r.grade(run)

	if r.cache != nil && !fromCache && run.Succeeded() {
		if err := r.cache.Put(key, &cache.Response{
			Raw:          run.Raw,
			Model:        run.Report.Model,
			InputTokens:  run.Report.UsedInputTokens,
			OutputTokens: run.Report.UsedOutputTokens,
			StoredAt:     r.now(),
		}); err != nil {
			log.Warn("cache write failed", "error", err)
		}
	}

	fields := []interface{}{
		"outcome", run.Report.Outcome,
		"cached", fromCache,
		"input_tokens", run.Report.UsedInputTokens,
		"output_tokens", run.Report.UsedOutputTokens,
	}
	if run.Succeeded() {
		fields = append(fields, "snippets", len(run.Result.Snippets), "no_results", run.Result.NoResults)
		if run.Report.Grounding != nil {
			fields = append(fields, "grounding_index", run.Report.Grounding.Index)
		}
		log.Info("research complete", fields...)
	} else {
		fields = append(fields, "failure", run.Failure.Message)
		log.Warn("model response not interpretable", fields...)
	}

	return run, nil
}

func (r *Researcher) complete(ctx context.Context, run *Run) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, r.provider.Name(), run.Prompt.EstimatedInputTokens); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		System:    run.Prompt.SystemPrompt,
		User:      run.Prompt.UserMessage,
		Model:     r.config.LLM.Model,
		MaxTokens: r.config.LLM.MaxTokens,
		JSONMode:  true,
	})
	if err != nil {
		return fmt.Errorf("complete research query: %w", err)
	}

	run.Raw = resp.Text
	run.Report.UsedInputTokens = resp.InputTokens
	run.Report.UsedOutputTokens = resp.OutputTokens
	if resp.Model != "" {
		run.Report.Model = resp.Model
	}
	if resp.Truncated {
		run.Report.Signals = append(run.Report.Signals, model.Signal{
			Type:        model.SignalResponseCutOff,
			Severity:    model.SeverityWarning,
			Description: "Model stopped at the output token limit; the response may be incomplete",
			Data:        map[string]interface{}{"output_tokens": resp.OutputTokens},
		})
	}
	return nil
}

// interpret parses run.Raw with the configured strictness and records the
// outcome and its telemetry on the report
func (r *Researcher) interpret(run *Run) {
	report := run.Report

	if r.config.Research.Strict {
		result, err := r.parser.ParseResearchResponse(run.Raw)
		if err != nil {
			run.Failure = parse.AsFailure(err)
			report.Outcome = model.OutcomeFailure
			report.Failure = run.Failure.Message
			return
		}
		run.Result = result
		report.Outcome = model.OutcomeSuccess
		return
	}

	out, err := r.parser.ParseSnippetResponse(run.Raw)
	report.Warnings = out.Warnings
	addParseSignals(report, out)

	if err != nil {
		run.Failure = parse.AsFailure(err)
		run.Partial = out.Partial
		report.Failure = run.Failure.Message
		report.Outcome = model.OutcomeFailure
		if out.Partial != nil {
			report.Outcome = model.OutcomePartial
			report.Signals = append(report.Signals, model.Signal{
				Type:        model.SignalPartialResult,
				Severity:    model.SeverityWarning,
				Description: "Only a summary could be recovered from the model response",
			})
		}
		return
	}

	run.Result = out.Result
	report.Outcome = model.OutcomeSuccess
}

// grade scores snippet grounding against the chunks the model was shown
func (r *Researcher) grade(run *Run) {
	if !run.Succeeded() {
		return
	}
	g := r.scorer.Calculate(run.Result.Snippets, run.Prompt.ChunkSelection.SelectedChunks)
	if g == nil {
		return
	}
	run.Report.Grounding = g
	run.Report.Signals = append(run.Report.Signals, g.Signals...)
}

func addSelectionSignals(report *model.Report) {
	sel := report.Selection
	if sel.BudgetExhausted {
		report.Signals = append(report.Signals, model.Signal{
			Type:        model.SignalBudgetExhausted,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d of %d candidate chunks did not fit the source budget", sel.Excluded, sel.Excluded+sel.Selected),
			Data: map[string]interface{}{
				"excluded":     sel.Excluded,
				"total_tokens": sel.TotalTokens,
			},
		})
	}
	if sel.Selected == 0 {
		report.Signals = append(report.Signals, model.Signal{
			Type:        model.SignalEmptyContext,
			Severity:    model.SeverityWarning,
			Description: "Prompt carries no source material",
			Data:        map[string]interface{}{"candidates": sel.Candidates},
		})
	}
}

// addParseSignals surfaces the lenient parser's silent data loss as telemetry
func addParseSignals(report *model.Report, out parse.SnippetOutcome) {
	if out.Stats.DroppedSnippets > 0 {
		report.Signals = append(report.Signals, model.Signal{
			Type:        model.SignalSnippetsDropped,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d snippets over the limit were dropped", out.Stats.DroppedSnippets),
			Data:        map[string]interface{}{"dropped": out.Stats.DroppedSnippets},
		})
	}
	if out.Stats.TruncatedContents > 0 {
		report.Signals = append(report.Signals, model.Signal{
			Type:        model.SignalContentTruncated,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("%d snippets had their content truncated", out.Stats.TruncatedContents),
			Data:        map[string]interface{}{"truncated": out.Stats.TruncatedContents},
		})
	}
	// cap and truncation warnings are already reported above
	shape := len(out.Warnings)
	if out.Stats.DroppedSnippets > 0 {
		shape--
	}
	if out.Stats.TruncatedContents > 0 {
		shape--
	}
	if shape > 0 {
		report.Signals = append(report.Signals, model.Signal{
			Type:        model.SignalShapeDrift,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("Model response deviated from the expected schema (%d warnings)", shape),
			Data:        map[string]interface{}{"skipped_entries": out.Stats.SkippedEntries},
		})
	}
}
