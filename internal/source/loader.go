package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/folio/internal/model"
	"gopkg.in/yaml.v3"
)

// chunkFile is the wrapped document form: {"chunks": [...]}
type chunkFile struct {
	Chunks []model.Chunk `json:"chunks" yaml:"chunks"`
}

// LoadChunks reads a chunk pool from a .json, .jsonl, .yaml or .yml file.
// Chunks are normalized and returned in file order, which callers treat as
// relevance order.
func LoadChunks(path string) ([]model.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}

	f, err := formatFromExt(path)
	if err != nil {
		return nil, err
	}

	chunks, err := decodeChunks(data, f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	return normalizeAll(chunks)
}

// Load reads a chunk pool from a local path or an http(s) URL
func Load(ctx context.Context, location string, fetcher *Fetcher) ([]model.Chunk, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if fetcher == nil {
			fetcher = NewFetcher(DefaultFetcherConfig())
		}
		return fetcher.FetchChunks(ctx, location)
	}
	return LoadChunks(location)
}

type format int

const (
	formatJSON format = iota
	formatJSONLines
	formatYAML
)

func formatFromExt(path string) (format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return formatJSON, nil
	case ".jsonl", ".ndjson":
		return formatJSONLines, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported chunk file extension %q (want .json, .jsonl, .yaml)", ext)
	}
}

func decodeChunks(data []byte, f format) ([]model.Chunk, error) {
	switch f {
	case formatJSONLines:
		return decodeJSONLines(data)
	case formatYAML:
		return decodeYAML(data)
	default:
		return decodeJSON(data)
	}
}

func decodeJSON(data []byte) ([]model.Chunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []model.Chunk{}, nil
	}

	if trimmed[0] == '[' {
		var chunks []model.Chunk
		if err := json.Unmarshal(trimmed, &chunks); err != nil {
			return nil, err
		}
		return chunks, nil
	}

	var wrapped chunkFile
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Chunks, nil
}

func decodeJSONLines(data []byte) ([]model.Chunk, error) {
	var chunks []model.Chunk

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c model.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		chunks = append(chunks, c)
	}

	return chunks, scanner.Err()
}

func decodeYAML(data []byte) ([]model.Chunk, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return []model.Chunk{}, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var chunks []model.Chunk
		if err := root.Decode(&chunks); err != nil {
			return nil, err
		}
		return chunks, nil
	}

	var wrapped chunkFile
	if err := root.Decode(&wrapped); err != nil {
		return nil, err
	}
	return wrapped.Chunks, nil
}

func normalizeAll(chunks []model.Chunk) ([]model.Chunk, error) {
	out := make([]model.Chunk, 0, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("chunk %d: missing id", i)
		}
		n, err := Normalize(c)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		out = append(out, n)
	}
	return out, nil
}
