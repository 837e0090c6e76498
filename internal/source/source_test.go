package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/folio/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadChunks_JSONArray(t *testing.T) {
	path := writeFile(t, "chunks.json", `[
		{"id": "s1:0", "sourceId": "s1", "sourceTitle": " Origin ", "headingChain": ["Ch 1"], "text": "one two three", "startOffset": 0, "endOffset": 13},
		{"id": "s1:1", "sourceId": "s1", "sourceTitle": "Origin", "text": "four", "wordCount": 9, "startOffset": 13, "endOffset": 17}
	]`)

	chunks, err := LoadChunks(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].SourceTitle != "Origin" {
		t.Errorf("Expected trimmed title, got %q", chunks[0].SourceTitle)
	}
	if chunks[0].WordCount != 3 {
		t.Errorf("Expected computed word count 3, got %d", chunks[0].WordCount)
	}
	if chunks[1].WordCount != 9 {
		t.Errorf("Expected provided word count to be kept, got %d", chunks[1].WordCount)
	}
	if chunks[0].Section() != "Ch 1" {
		t.Errorf("Expected heading chain to load, got %q", chunks[0].Section())
	}
}

func TestLoadChunks_JSONWrapped(t *testing.T) {
	path := writeFile(t, "pool.json", `{"chunks": [{"id": "a", "sourceId": "s", "text": "x"}]}`)

	chunks, err := LoadChunks(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "a" {
		t.Errorf("Expected one chunk 'a', got %+v", chunks)
	}
}

func TestLoadChunks_JSONLines(t *testing.T) {
	path := writeFile(t, "pool.jsonl", `{"id": "a", "sourceId": "s", "text": "x"}

{"id": "b", "sourceId": "s", "text": "y"}
`)

	chunks, err := LoadChunks(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(chunks) != 2 || chunks[1].ID != "b" {
		t.Errorf("Expected chunks [a b], got %+v", chunks)
	}
}

func TestLoadChunks_JSONLinesBadLine(t *testing.T) {
	path := writeFile(t, "pool.jsonl", "{\"id\": \"a\"}\n{broken\n")

	_, err := LoadChunks(path)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected error naming line 2, got %v", err)
	}
}

func TestLoadChunks_YAML(t *testing.T) {
	path := writeFile(t, "pool.yaml", `
chunks:
  - id: s2:0
    source_id: s2
    source_title: Voyage
    heading_chain: [Part I, Chapter 3]
    text: The islands differ.
    start_offset: 100
    end_offset: 119
`)

	chunks, err := LoadChunks(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.SourceID != "s2" || c.StartOffset != 100 || c.Section() != "Part I > Chapter 3" {
		t.Errorf("Unexpected chunk %+v", c)
	}
}

func TestLoadChunks_YAMLSequence(t *testing.T) {
	path := writeFile(t, "pool.yml", "- id: a\n  source_id: s\n  text: x\n")

	chunks, err := LoadChunks(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("Expected 1 chunk, got %d", len(chunks))
	}
}

func TestLoadChunks_Empty(t *testing.T) {
	for _, name := range []string{"empty.json", "empty.yaml", "empty.jsonl"} {
		chunks, err := LoadChunks(writeFile(t, name, ""))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
		if len(chunks) != 0 {
			t.Errorf("%s: expected no chunks, got %d", name, len(chunks))
		}
	}
}

func TestLoadChunks_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		contains string
	}{
		{"unknown extension", "pool.txt", "a", "unsupported chunk file extension"},
		{"malformed json", "pool.json", "[{", "parse pool.json"},
		{"missing id", "pool.json", `[{"id": "a"}, {"sourceId": "s"}]`, "chunk 1: missing id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadChunks(writeFile(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error containing %q, got %v", tt.contains, err)
			}
		})
	}

	if _, err := LoadChunks(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestNormalize_HTMLFallback(t *testing.T) {
	c := model.Chunk{
		ID:   "a",
		HTML: `<h2>Finches</h2><p>The beaks <em>vary</em>.</p><script>track()</script><style>p{}</style><p>Second   para.</p>`,
	}

	got, err := Normalize(c)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := "Finches\n\nThe beaks vary .\n\nSecond para."
	if got.Text != expected {
		t.Errorf("Expected %q, got %q", expected, got.Text)
	}
	if strings.Contains(got.Text, "track") {
		t.Error("Expected script content to be skipped")
	}
	if got.WordCount != 7 {
		t.Errorf("Expected word count 7, got %d", got.WordCount)
	}
	if got.HTML != c.HTML {
		t.Error("Expected HTML to be preserved")
	}
}

func TestNormalize_TextWins(t *testing.T) {
	c := model.Chunk{ID: "a", Text: "plain", HTML: "<p>rich</p>"}

	got, err := Normalize(c)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Text != "plain" {
		t.Errorf("Expected existing text to be kept, got %q", got.Text)
	}
}
