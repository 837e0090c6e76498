package budget

import (
	"sort"

	"github.com/ppiankov/folio/internal/model"
)

// SortByDocumentOrder returns a copy of chunks grouped by source and ordered
// by position within each source. Ties keep their relative order.
func SortByDocumentOrder(chunks []model.Chunk) []model.Chunk {
	sorted := make([]model.Chunk, len(chunks))
	copy(sorted, chunks)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SourceID != sorted[j].SourceID {
			return sorted[i].SourceID < sorted[j].SourceID
		}
		return sorted[i].StartOffset < sorted[j].StartOffset
	})

	return sorted
}
