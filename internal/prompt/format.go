package prompt

import (
	"strings"

	"github.com/ppiankov/folio/internal/model"
)

// ResearchSystemPrompt identifies the assistant's role and pins the response schema
const ResearchSystemPrompt = `You are a research extraction assistant for a nonfiction author.

You receive a research query and a set of source materials. Each source excerpt is preceded by an attribution line of the form:
[Source: "<title>" (id: <source id>), Section: "<section>"]

RULES:
1. Extract passages VERBATIM from the source materials. Never paraphrase, merge, or invent text.
2. Only use the source materials provided. Do not draw on outside knowledge.
3. Attribute every passage to the source id from its attribution line.
4. If nothing in the materials answers the query, say so by returning no snippets and setting noResults to true.

Respond with a single JSON object and nothing else:
{
  "snippets": [
    {
      "content": "<verbatim passage>",
      "sourceId": "<source id>",
      "sourceTitle": "<source title>",
      "sourceLocation": "<section or position within the source>",
      "relevance": "<one sentence on why this passage answers the query>"
    }
  ],
  "summary": "<two or three sentences summarizing what the sources say about the query>",
  "noResults": false
}`

// extractionInstruction closes the source materials block of the user message
const extractionInstruction = "Extract the passages from the source materials above that are relevant to the research query. Quote them verbatim and attribute each one to its source id."

// FormatChunksForPrompt renders each chunk as its attribution header followed by
// its text, joining chunks with model.ChunkSeparator
func FormatChunksForPrompt(chunks []model.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Header()+"\n"+c.Text)
	}
	return strings.Join(parts, model.ChunkSeparator)
}

// BuildResearchUserMessage combines the verbatim query with the formatted source materials.
// With no chunks the message carries only the query block.
func BuildResearchUserMessage(query string, chunks []model.Chunk) string {
	var b strings.Builder

	b.WriteString("## Research Query\n\n")
	b.WriteString(query)

	if len(chunks) > 0 {
		b.WriteString("\n\n## Source Materials\n\n")
		b.WriteString(FormatChunksForPrompt(chunks))
		b.WriteString("\n\n")
		b.WriteString(extractionInstruction)
	}

	return b.String()
}
