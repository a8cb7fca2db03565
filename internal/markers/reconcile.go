package markers

import (
	"slices"
	"strings"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
)

// Reconcile appends a marker line for every attached table and image that has no
// marker anywhere in content. Tables are appended before images, each in id order.
// Existing lines, including orphan markers, are left untouched, so calling Reconcile
// again with the same inputs returns its own output unchanged.
func Reconcile(content string, tables []model.Table, images []model.Image) string {
	present := make(map[Marker]struct{})
	for _, line := range strings.Split(content, lineSeparator) {
		if marker, ok := Parse(line); ok && marker.Valid {
			present[marker] = struct{}{}
		}
	}

	missing := make([]string, 0)
	for _, id := range sortedTableIDs(tables) {
		if _, ok := present[Marker{Kind: KindTable, EntityID: id, Valid: true}]; !ok {
			missing = append(missing, TableMarker(id))
		}
	}
	for _, id := range sortedImageIDs(images) {
		if _, ok := present[Marker{Kind: KindImage, EntityID: id, Valid: true}]; !ok {
			missing = append(missing, ImageMarker(id))
		}
	}
	if len(missing) == 0 {
		return content
	}

	var builder strings.Builder
	builder.WriteString(content)
	if content != "" && !strings.HasSuffix(content, lineSeparator) {
		builder.WriteString(lineSeparator)
	}
	for _, marker := range missing {
		builder.WriteString(marker)
		builder.WriteString(lineSeparator)
	}
	return builder.String()
}

func sortedTableIDs(tables []model.Table) []int64 {
	ids := make([]int64, 0, len(tables))
	for _, table := range tables {
		ids = append(ids, table.ID)
	}
	return uniqueSorted(ids)
}

func sortedImageIDs(images []model.Image) []int64 {
	ids := make([]int64, 0, len(images))
	for _, image := range images {
		ids = append(ids, image.ID)
	}
	return uniqueSorted(ids)
}

func uniqueSorted(ids []int64) []int64 {
	slices.Sort(ids)
	return slices.Compact(ids)
}
