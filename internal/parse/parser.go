package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/folio/internal/model"
	"github.com/ppiankov/folio/internal/validate"
)

// Limits bound how much of a model response is accepted
type Limits struct {
	MaxSnippets      int // Snippets past this count are dropped
	MaxContentLength int // Snippet content is truncated to this many characters
	ExcerptLength    int // Raw response characters kept in a Failure
}

// DefaultLimits returns the limits used when nothing is configured
func DefaultLimits() Limits {
	return Limits{
		MaxSnippets:      20,
		MaxContentLength: 2000,
		ExcerptLength:    500,
	}
}

// Failure describes a model response that could not be interpreted
type Failure struct {
	Message    string // Human-readable reason
	RawExcerpt string // Truncated raw response, empty when there was nothing to show
	Err        error  // Underlying decode or validation error, if any
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure returns err as a *Failure, wrapping errors of other types
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Message: err.Error(), Err: err}
}

// Stats counts data the lenient parser discarded or altered
type Stats struct {
	DroppedSnippets   int `json:"dropped_snippets"`   // Valid snippets past MaxSnippets
	TruncatedContents int `json:"truncated_contents"` // Snippets whose content was cut to MaxContentLength
	SkippedEntries    int `json:"skipped_entries"`    // Array entries that were not usable snippets
}

// SnippetOutcome is the result of lenient parsing. On success Result is set.
// On failure Partial may carry a salvaged summary.
type SnippetOutcome struct {
	Result   *model.ResearchQueryResult
	Partial  *model.ResearchQueryResult
	Warnings []string
	Stats    Stats
}

func (o *SnippetOutcome) warn(format string, args ...interface{}) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// Parser interprets raw model responses as research results
type Parser struct {
	limits Limits
}

// NewParser creates a parser; non-positive limits fall back to DefaultLimits
func NewParser(limits Limits) *Parser {
	defaults := DefaultLimits()
	if limits.MaxSnippets <= 0 {
		limits.MaxSnippets = defaults.MaxSnippets
	}
	if limits.MaxContentLength <= 0 {
		limits.MaxContentLength = defaults.MaxContentLength
	}
	if limits.ExcerptLength <= 0 {
		limits.ExcerptLength = defaults.ExcerptLength
	}
	return &Parser{limits: limits}
}

// Limits returns the effective limits
func (p *Parser) Limits() Limits {
	return p.limits
}

func (p *Parser) failure(message, raw string, err error) *Failure {
	ex, _ := truncateRunes(raw, p.limits.ExcerptLength)
	return &Failure{Message: message, RawExcerpt: ex, Err: err}
}

// decode strips fences and unmarshals the response into a generic value
func (p *Parser) decode(raw string) (interface{}, error) {
	var decoded interface{}
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &decoded); err != nil {
		return nil, p.failure(fmt.Sprintf("invalid JSON in model response: %v", err), raw, err)
	}
	return decoded, nil
}

// ParseResearchResponse is the strict parser: the response must validate
// against the exact research result schema. No shape recovery is attempted.
func (p *Parser) ParseResearchResponse(raw string) (*model.ResearchQueryResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &Failure{Message: "empty model response"}
	}

	decoded, err := p.decode(raw)
	if err != nil {
		return nil, err
	}

	if err := validate.ResearchResponse(decoded); err != nil {
		return nil, p.failure("invalid research response: "+err.Error(), raw, err)
	}

	obj := decoded.(map[string]interface{})
	result := model.EmptyResult()
	result.Summary = obj["summary"].(string)
	result.NoResults = obj["noResults"].(bool)
	for _, entry := range obj["snippets"].([]interface{}) {
		m := entry.(map[string]interface{})
		result.Snippets = append(result.Snippets, model.Snippet{
			Content:        m["content"].(string),
			SourceID:       m["sourceId"].(string),
			SourceTitle:    m["sourceTitle"].(string),
			SourceLocation: m["sourceLocation"].(string),
			Relevance:      m["relevance"].(string),
		})
	}

	return result, nil
}

// ParseSnippetResponse is the lenient parser. It tolerates fenced output, JSON
// embedded in prose, snake_case field names, a single unwrapped snippet, and
// missing optional fields. It fails only when the response is empty, is not a
// JSON object, or carries no recognizable research result marker.
func (p *Parser) ParseSnippetResponse(raw string) (SnippetOutcome, error) {
	var out SnippetOutcome

	if strings.TrimSpace(raw) == "" {
		return out, &Failure{Message: "empty model response"}
	}

	decoded, err := p.decode(raw)
	if err != nil {
		embedded, ok := embeddedObject(StripCodeFence(raw))
		if !ok || json.Unmarshal([]byte(embedded), &decoded) != nil {
			return out, err
		}
		out.warn("recovered JSON object embedded in surrounding text")
	}

	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return out, p.failure(fmt.Sprintf("expected a JSON object, got %s", describe(decoded)), raw, nil)
	}

	fields := &fieldReader{}
	snippets, recognized := p.collectSnippets(obj, fields, &out)

	if len(snippets) > p.limits.MaxSnippets {
		out.Stats.DroppedSnippets = len(snippets) - p.limits.MaxSnippets
		out.warn("dropped %d snippets over the limit of %d", out.Stats.DroppedSnippets, p.limits.MaxSnippets)
		snippets = snippets[:p.limits.MaxSnippets]
	}
	for i := range snippets {
		var cut bool
		snippets[i].Content, cut = truncateRunes(snippets[i].Content, p.limits.MaxContentLength)
		if cut {
			out.Stats.TruncatedContents++
		}
	}
	if out.Stats.TruncatedContents > 0 {
		out.warn("truncated content of %d snippets to %d characters", out.Stats.TruncatedContents, p.limits.MaxContentLength)
	}

	summary, _ := fields.str(obj, "summary")
	noResults, explicit := fields.boolean(obj, "noResults", "no_results")
	if explicit {
		recognized = true
	} else {
		noResults = len(snippets) == 0
	}

	if fields.snakeCase {
		out.warn("accepted snake_case field names")
	}

	if len(snippets) == 0 && !recognized {
		if strings.TrimSpace(summary) != "" {
			out.Partial = &model.ResearchQueryResult{Snippets: []model.Snippet{}, Summary: summary, NoResults: true}
		}
		return out, p.failure("model response did not contain a recognizable research result", raw, nil)
	}

	result := model.EmptyResult()
	result.Snippets = append(result.Snippets, snippets...)
	result.Summary = summary
	result.NoResults = noResults
	out.Result = result

	return out, nil
}

// collectSnippets reads the snippets array, or a single unwrapped snippet when
// the array is absent. recognized reports whether a snippets array was present.
func (p *Parser) collectSnippets(obj map[string]interface{}, fields *fieldReader, out *SnippetOutcome) ([]model.Snippet, bool) {
	rawSnippets, present := obj["snippets"]
	if !present {
		s, reason := fields.snippet(obj)
		if reason != "" {
			return nil, false
		}
		out.warn("response was a single snippet without a 'snippets' wrapper")
		return []model.Snippet{s}, false
	}

	list, ok := rawSnippets.([]interface{})
	if !ok {
		out.warn("'snippets' is %s, not an array", describe(rawSnippets))
		return nil, false
	}

	snippets := make([]model.Snippet, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			out.Stats.SkippedEntries++
			out.warn("snippets[%d]: %s is not an object, skipped", i, describe(entry))
			continue
		}
		s, reason := fields.snippet(m)
		if reason != "" {
			out.Stats.SkippedEntries++
			out.warn("snippets[%d]: %s, skipped", i, reason)
			continue
		}
		snippets = append(snippets, s)
	}

	return snippets, true
}

// fieldReader reads string and bool fields under camelCase or snake_case
// names, camelCase first, and remembers whether a snake_case alias was used
type fieldReader struct {
	snakeCase bool
}

func (r *fieldReader) str(m map[string]interface{}, names ...string) (string, bool) {
	for i, name := range names {
		if v, ok := m[name].(string); ok {
			if i > 0 {
				r.snakeCase = true
			}
			return v, true
		}
	}
	return "", false
}

func (r *fieldReader) boolean(m map[string]interface{}, names ...string) (bool, bool) {
	for i, name := range names {
		if v, ok := m[name].(bool); ok {
			if i > 0 {
				r.snakeCase = true
			}
			return v, true
		}
	}
	return false, false
}

// snippet builds a snippet from m; reason is non-empty when a required field is missing
func (r *fieldReader) snippet(m map[string]interface{}) (model.Snippet, string) {
	content, _ := r.str(m, "content")
	if strings.TrimSpace(content) == "" {
		return model.Snippet{}, "missing 'content'"
	}
	sourceID, _ := r.str(m, "sourceId", "source_id")
	if strings.TrimSpace(sourceID) == "" {
		return model.Snippet{}, "missing 'sourceId'"
	}

	title, _ := r.str(m, "sourceTitle", "source_title")
	location, _ := r.str(m, "sourceLocation", "source_location", "location_in_source")
	relevance, _ := r.str(m, "relevance")

	return model.Snippet{
		Content:        content,
		SourceID:       sourceID,
		SourceTitle:    title,
		SourceLocation: location,
		Relevance:      relevance,
	}, ""
}

func describe(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "an array"
	case map[string]interface{}:
		return "an object"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case float64:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

var defaultParser = NewParser(DefaultLimits())

// ParseSnippetResponse parses leniently with DefaultLimits
func ParseSnippetResponse(raw string) (SnippetOutcome, error) {
	return defaultParser.ParseSnippetResponse(raw)
}

// ParseResearchResponse parses strictly with DefaultLimits
func ParseResearchResponse(raw string) (*model.ResearchQueryResult, error) {
	return defaultParser.ParseResearchResponse(raw)
}
