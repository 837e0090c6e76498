package model

// Snippet is one verbatim passage the model extracted from the source materials.
// JSON field names are the canonical camelCase API shape.
type Snippet struct {
	Content        string `json:"content"`
	SourceID       string `json:"sourceId"`
	SourceTitle    string `json:"sourceTitle"`
	SourceLocation string `json:"sourceLocation"`
	Relevance      string `json:"relevance"`
}

// ResearchQueryResult is the successful outcome of a research query
type ResearchQueryResult struct {
	Snippets  []Snippet `json:"snippets"`
	Summary   string    `json:"summary"`
	NoResults bool      `json:"noResults"`
}

// EmptyResult returns a result with a non-nil snippet list so it
// serializes as "snippets": [] rather than null
func EmptyResult() *ResearchQueryResult {
	return &ResearchQueryResult{Snippets: []Snippet{}}
}
