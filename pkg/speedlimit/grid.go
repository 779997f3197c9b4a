package speedlimit

import (
	"math"

	"github.com/kass/go-speedlimit/pkg/models"
)

// GridCell maps a GPS coordinate to its discrete grid cell address.
// Each axis is normalized against the dataset envelope and scaled by
// the grid size. Points outside the envelope clamp to the nearest edge
// cell rather than erroring; the grid resolver widens the search to a
// neighborhood anyway. Always returns a valid address in
// [0, GridSize) on both axes.
func GridCell(b models.Bounds, lat, lon float64) (x, y int) {
	normX := (lon - b.MinLon) / (b.MaxLon - b.MinLon)
	normY := (lat - b.MinLat) / (b.MaxLat - b.MinLat)

	x = clamp(int(math.Floor(normX*float64(b.GridSize))), b.GridSize)
	y = clamp(int(math.Floor(normY*float64(b.GridSize))), b.GridSize)
	return x, y
}

func clamp(v, gridSize int) int {
	if v < 0 {
		return 0
	}
	if v >= gridSize {
		return gridSize - 1
	}
	return v
}
