package models

// Bounds describes the geographic envelope and grid resolution of a dataset.
// GridSize is the number of cells per axis, so the grid is GridSize x GridSize.
type Bounds struct {
	MinLat   float64 `json:"min_lat"`
	MaxLat   float64 `json:"max_lat"`
	MinLon   float64 `json:"min_lon"`
	MaxLon   float64 `json:"max_lon"`
	GridSize int     `json:"grid_size"`
}

// Valid reports whether the envelope is non-degenerate and the grid usable.
func (b Bounds) Valid() bool {
	return b.MaxLat > b.MinLat && b.MaxLon > b.MinLon && b.GridSize >= 1
}

// Segment is one road segment: its bounding box, representative center
// point and posted speed limit in km/h.
type Segment struct {
	ID          int64   `json:"id"`
	MinLat      float64 `json:"min_lat"`
	MaxLat      float64 `json:"max_lat"`
	MinLon      float64 `json:"min_lon"`
	MaxLon      float64 `json:"max_lon"`
	CenterLat   float64 `json:"center_lat"`
	CenterLon   float64 `json:"center_lon"`
	SpeedLimit  int     `json:"speed_limit_kmh"`
	Name        string  `json:"name,omitempty"`
	HighwayType string  `json:"highway_type,omitempty"`
	Inferred    bool    `json:"is_inferred,omitempty"`
}

// Contains reports whether the point falls inside the segment's bounding box.
func (s *Segment) Contains(lat, lon float64) bool {
	return s.MinLat <= lat && lat <= s.MaxLat &&
		s.MinLon <= lon && lon <= s.MaxLon
}

// CenterDistSq returns the squared degree distance from the point to the
// segment center. Used for nearest-candidate ordering; no geodesic math.
func (s *Segment) CenterDistSq(lat, lon float64) float64 {
	dLat := s.CenterLat - lat
	dLon := s.CenterLon - lon
	return dLat*dLat + dLon*dLon
}

// RoadInfo is the detailed lookup result for a matched road.
type RoadInfo struct {
	SpeedLimit  int    `json:"speed_limit_kmh"`
	Name        string `json:"name,omitempty"`
	HighwayType string `json:"highway_type"`
	Inferred    bool   `json:"is_inferred"`
}
