package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/ppiankov/folio/internal/model"
	"github.com/ppiankov/folio/internal/pipeline"
)

// QueryRunner answers one research query against a chunk pool
type QueryRunner interface {
	Research(ctx context.Context, query string, chunks []model.Chunk, overrides *model.TokenBudget) (*pipeline.Run, error)
}

// ResearchJob runs one query against the shared chunk pool
type ResearchJob struct {
	Query     string
	Chunks    []model.Chunk
	Overrides *model.TokenBudget
	Runner    QueryRunner
}

// Execute executes the research job
func (j *ResearchJob) Execute(ctx context.Context) Result {
	run, err := j.Runner.Research(ctx, j.Query, j.Chunks, j.Overrides)
	return &QueryResult{
		Query: j.Query,
		Run:   run,
		Error: err,
	}
}

// QueryResult is the outcome of one batch query. Error is set only for
// provider failures; uninterpretable responses are reported on Run.
type QueryResult struct {
	Query string
	Run   *pipeline.Run
	Error error
}

// GetError returns the error from the query result
func (r *QueryResult) GetError() error {
	return r.Error
}

// BatchProcessor runs many queries against one chunk pool concurrently
type BatchProcessor struct {
	runner      QueryRunner
	chunks      []model.Chunk
	overrides   *model.TokenBudget
	concurrency int
	progress    func(done, total int, r *QueryResult)
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner QueryRunner, chunks []model.Chunk, concurrency int, overrides *model.TokenBudget) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		chunks:      chunks,
		overrides:   overrides,
		concurrency: concurrency,
	}
}

// OnProgress registers fn to be called as each query finishes, from the
// worker goroutine that ran it
func (b *BatchProcessor) OnProgress(fn func(done, total int, r *QueryResult)) {
	b.progress = fn
}

// ProcessQueries runs every query and returns one result per query in input
// order. Queries that never ran report the context error.
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string) []*QueryResult {
	if len(queries) == 0 {
		return []*QueryResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	if b.progress != nil {
		var done int32
		pool.OnDone(func(index int, r Result) {
			n := atomic.AddInt32(&done, 1)
			b.progress(int(n), len(queries), toQueryResult(ctx, queries[index], r))
		})
	}
	pool.Start()

	for _, q := range queries {
		pool.Submit(&ResearchJob{
			Query:     q,
			Chunks:    b.chunks,
			Overrides: b.overrides,
			Runner:    b.runner,
		})
	}

	results := pool.Wait()

	queryResults := make([]*QueryResult, len(queries))
	for i, q := range queries {
		var r Result
		if i < len(results) {
			r = results[i]
		}
		queryResults[i] = toQueryResult(ctx, q, r)
	}
	return queryResults
}

// toQueryResult normalizes a pool slot: nil for a job that never ran,
// or a non-QueryResult for a job that panicked
func toQueryResult(ctx context.Context, query string, r Result) *QueryResult {
	switch v := r.(type) {
	case *QueryResult:
		return v
	case nil:
		err := ctx.Err()
		if err == nil {
			err = errors.New("query was not run")
		}
		return &QueryResult{Query: query, Error: err}
	default:
		return &QueryResult{Query: query, Error: v.GetError()}
	}
}

// ProcessFile reads queries from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*QueryResult, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return b.ProcessQueries(ctx, queries), nil
}

// ReadQueriesFromFile reads queries from a file (one per line). Blank lines
// and # comments are skipped and duplicates removed.
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			queries = append(queries, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}
