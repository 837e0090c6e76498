package budget

import "github.com/ppiankov/folio/internal/model"

// Deduplicate keeps the first occurrence of each chunk ID and preserves order.
// The input slice is not modified.
func Deduplicate(chunks []model.Chunk) []model.Chunk {
	seen := make(map[string]struct{}, len(chunks))
	unique := make([]model.Chunk, 0, len(chunks))

	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}

	return unique
}
