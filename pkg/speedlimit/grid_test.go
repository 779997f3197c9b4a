package speedlimit

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kass/go-speedlimit/pkg/models"
)

var capeTownBounds = models.Bounds{
	MinLat:   -34.0,
	MaxLat:   -33.9,
	MinLon:   18.4,
	MaxLon:   18.5,
	GridSize: 10,
}

func TestGridCell(t *testing.T) {
	// Known cell: norm_x = 0.241, norm_y = 0.751 on a 10x10 grid.
	x, y := GridCell(capeTownBounds, -33.9249, 18.4241)
	assert.Equal(t, 2, x)
	assert.Equal(t, 7, y)

	// Envelope corners.
	x, y = GridCell(capeTownBounds, capeTownBounds.MinLat, capeTownBounds.MinLon)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)

	// Max corner normalizes to 1.0 and must clamp into the last cell.
	x, y = GridCell(capeTownBounds, capeTownBounds.MaxLat, capeTownBounds.MaxLon)
	assert.Equal(t, 9, x)
	assert.Equal(t, 9, y)
}

func TestGridCellClampsOutsideEnvelope(t *testing.T) {
	// Below min_lat collapses to the bottom edge row.
	x, y := GridCell(capeTownBounds, -35.0, 18.45)
	assert.Equal(t, 0, y)
	assert.Equal(t, 5, x)

	// Above max_lat, east of max_lon.
	x, y = GridCell(capeTownBounds, -33.0, 19.2)
	assert.Equal(t, 9, y)
	assert.Equal(t, 9, x)
}

func TestGridCellAlwaysValid(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		// Deliberately wild inputs, far outside the envelope.
		lat := r.Float64()*360 - 180
		lon := r.Float64()*720 - 360

		x, y := GridCell(capeTownBounds, lat, lon)
		assert.GreaterOrEqual(t, x, 0)
		assert.Less(t, x, capeTownBounds.GridSize)
		assert.GreaterOrEqual(t, y, 0)
		assert.Less(t, y, capeTownBounds.GridSize)
	}
}

func TestGridCellMonotonic(t *testing.T) {
	// Increasing longitude never decreases grid_x.
	prevX := -1
	for lon := 18.0; lon <= 19.0; lon += 0.001 {
		x, _ := GridCell(capeTownBounds, -33.95, lon)
		assert.GreaterOrEqual(t, x, prevX, "grid_x regressed at lon=%f", lon)
		prevX = x
	}

	// Increasing latitude never decreases grid_y.
	prevY := -1
	for lat := -34.5; lat <= -33.5; lat += 0.001 {
		_, y := GridCell(capeTownBounds, lat, 18.45)
		assert.GreaterOrEqual(t, y, prevY, "grid_y regressed at lat=%f", lat)
		prevY = y
	}
}

func TestGridCellSingleCellGrid(t *testing.T) {
	b := capeTownBounds
	b.GridSize = 1

	x, y := GridCell(b, -33.95, 18.45)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}
