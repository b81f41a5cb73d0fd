package integration

import (
	"github.com/google/uuid"

	"github.com/odyssey-erp/fulfillment/internal/procurement"
)

// movedItems returns the distinct items with a non-zero stock delta.
func movedItems(lines []procurement.StockLineEvent) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	out := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if line.Delta == 0 {
			continue
		}
		if _, ok := seen[line.ItemID]; ok {
			continue
		}
		seen[line.ItemID] = struct{}{}
		out = append(out, line.ItemID)
	}
	return out
}
