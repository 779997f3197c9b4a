// Package memindex answers the same two-tier speed limit lookups as
// pkg/speedlimit without touching the dataset per query. Road segments
// are preloaded into R-Trees, trading memory for latency on devices
// with RAM headroom.
package memindex

import (
	"encoding/gob"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"

	"github.com/kass/go-speedlimit/pkg/models"
	"github.com/kass/go-speedlimit/pkg/speedlimit"
)

const (
	pointTolerance = 1e-9
	minChildren    = 25
	maxChildren    = 50
	dimensions     = 2
)

// segmentItem wraps a Segment for R-Tree indexing
type segmentItem struct {
	*models.Segment
	rect *rtreego.Rect
}

func (si *segmentItem) Bounds() *rtreego.Rect {
	return si.rect
}

// Index is a thread-safe in-memory resolver over preloaded segments.
// Two trees back the two lookup tiers: one over segment bounding boxes
// for the containment path, one over segment centers for the window
// fallback. Result.Source reflects which tier matched.
type Index struct {
	boxes     *rtreego.Rtree
	centers   *rtreego.Rtree
	window    float64
	mu        sync.RWMutex
	itemCount atomic.Int64
}

// New creates an empty index with the given fallback window in degrees.
func New(window float64) *Index {
	if window <= 0 {
		window = speedlimit.DefaultWindow
	}
	return &Index{
		boxes:   rtreego.NewTree(dimensions, minChildren, maxChildren),
		centers: rtreego.NewTree(dimensions, minChildren, maxChildren),
		window:  window,
	}
}

// FromSession preloads every segment of an open dataset session. The
// session stays usable and owns the dataset handle; the index keeps no
// reference to it.
func FromSession(s *speedlimit.Session) (*Index, error) {
	segments, err := s.Segments()
	if err != nil {
		return nil, fmt.Errorf("failed to preload segments: %w", err)
	}

	ix := New(s.Window())
	ix.Add(segments)
	return ix, nil
}

// Add indexes a batch of segments.
func (ix *Index) Add(segments []*models.Segment) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	count := int64(0)
	for _, seg := range segments {
		if seg == nil {
			continue
		}

		boxRect, err := rtreego.NewRect(
			rtreego.Point{seg.MinLat, seg.MinLon},
			[]float64{span(seg.MaxLat - seg.MinLat), span(seg.MaxLon - seg.MinLon)},
		)
		if err != nil {
			continue
		}
		ix.boxes.Insert(&segmentItem{seg, boxRect})

		centerRect := rtreego.Point{seg.CenterLat, seg.CenterLon}.ToRect(pointTolerance)
		ix.centers.Insert(&segmentItem{seg, centerRect})

		count++
	}
	ix.itemCount.Add(count)
}

// span keeps degenerate boxes indexable; rtreego rejects zero lengths.
func span(d float64) float64 {
	if d < pointTolerance {
		return pointTolerance
	}
	return d
}

// Lookup resolves the speed limit at the given coordinate, containment
// tier first, window fallback second. Semantics match
// speedlimit.Session.Lookup against the same dataset.
func (ix *Index) Lookup(lat, lon float64) speedlimit.Result {
	if res := ix.lookupContaining(lat, lon); res.Found {
		return res
	}
	return ix.lookupWindow(lat, lon)
}

// lookupContaining returns the containing segment with the nearest
// center, by squared degree distance.
func (ix *Index) lookupContaining(lat, lon float64) speedlimit.Result {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	probe := rtreego.Point{lat, lon}.ToRect(pointTolerance)
	candidates := ix.boxes.SearchIntersect(probe)

	best, ok := nearest(candidates, lat, lon, func(seg *models.Segment) bool {
		return seg.Contains(lat, lon)
	})
	if !ok {
		return speedlimit.Result{}
	}
	return speedlimit.Result{SpeedLimit: best.SpeedLimit, Found: true, Source: speedlimit.SourceGrid}
}

// lookupWindow tests segment centers against the fixed window, the
// looser match the fallback tier is specified to use.
func (ix *Index) lookupWindow(lat, lon float64) speedlimit.Result {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	w := ix.window
	windowRect, err := rtreego.NewRect(
		rtreego.Point{lat - w, lon - w},
		[]float64{2 * w, 2 * w},
	)
	if err != nil {
		return speedlimit.Result{}
	}
	candidates := ix.centers.SearchIntersect(windowRect)

	best, ok := nearest(candidates, lat, lon, func(seg *models.Segment) bool {
		return seg.CenterLat >= lat-w && seg.CenterLat <= lat+w &&
			seg.CenterLon >= lon-w && seg.CenterLon <= lon+w
	})
	if !ok {
		return speedlimit.Result{}
	}
	return speedlimit.Result{SpeedLimit: best.SpeedLimit, Found: true, Source: speedlimit.SourceWindow}
}

func nearest(candidates []rtreego.Spatial, lat, lon float64, keep func(*models.Segment) bool) (*models.Segment, bool) {
	var best *models.Segment
	bestDist := 0.0

	for _, candidate := range candidates {
		item, ok := candidate.(*segmentItem)
		if !ok || item.Segment == nil || !keep(item.Segment) {
			continue
		}
		dist := item.CenterDistSq(lat, lon)
		if best == nil || dist < bestDist {
			best = item.Segment
			bestDist = dist
		}
	}
	return best, best != nil
}

// Size returns the number of indexed segments.
func (ix *Index) Size() int64 {
	return ix.itemCount.Load()
}

// Clear removes all segments from the index.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.boxes = rtreego.NewTree(dimensions, minChildren, maxChildren)
	ix.centers = rtreego.NewTree(dimensions, minChildren, maxChildren)
	ix.itemCount.Store(0)
}

// indexData is the serializable form of the index
type indexData struct {
	Window   float64
	Segments []*models.Segment
}

// SaveToFile saves the indexed segments to a gob file for fast cold
// starts, skipping the dataset scan on the next boot.
func (ix *Index) SaveToFile(filename string) error {
	ix.mu.RLock()

	// Extract all segments through the centers tree; every segment has
	// exactly one center entry.
	worldRect, _ := rtreego.NewRect(rtreego.Point{-90, -180}, []float64{180, 360})
	results := ix.centers.SearchIntersect(worldRect)

	data := indexData{Window: ix.window}
	for _, result := range results {
		if item, ok := result.(*segmentItem); ok {
			data.Segments = append(data.Segments, item.Segment)
		}
	}
	ix.mu.RUnlock()

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	return nil
}

// LoadFromFile replaces the index contents with a previously saved
// snapshot.
func (ix *Index) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data indexData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}

	ix.Clear()
	ix.mu.Lock()
	if data.Window > 0 {
		ix.window = data.Window
	}
	ix.mu.Unlock()
	ix.Add(data.Segments)

	return nil
}
