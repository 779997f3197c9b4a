package speedlimit

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/kass/go-speedlimit/pkg/models"
)

// DefaultWindow is the fallback search window in degrees, roughly
// 1.1 km at the equator.
const DefaultWindow = 0.01

const queryGrid = `
SELECT rs.speed_limit_kmh
FROM spatial_grid sg
JOIN road_segments rs ON sg.road_segment_id = rs.id
WHERE sg.grid_x BETWEEN ? AND ?
  AND sg.grid_y BETWEEN ? AND ?
  AND rs.min_lat <= ? AND rs.max_lat >= ?
  AND rs.min_lon <= ? AND rs.max_lon >= ?
ORDER BY
    (rs.center_lat - ?) * (rs.center_lat - ?) +
    (rs.center_lon - ?) * (rs.center_lon - ?)
LIMIT 1`

const queryWindow = `
SELECT speed_limit_kmh
FROM road_segments
WHERE center_lat BETWEEN ? AND ?
  AND center_lon BETWEEN ? AND ?
ORDER BY
    (center_lat - ?) * (center_lat - ?) +
    (center_lon - ?) * (center_lon - ?)
LIMIT 1`

const queryRoadInfo = `
SELECT speed_limit_kmh, name, highway_type, is_inferred
FROM road_segments
WHERE center_lat BETWEEN ? AND ?
  AND center_lon BETWEEN ? AND ?
ORDER BY
    (center_lat - ?) * (center_lat - ?) +
    (center_lon - ?) * (center_lon - ?)
LIMIT 1`

const queryBounds = `
SELECT
  (SELECT value FROM metadata WHERE key = 'min_latitude'),
  (SELECT value FROM metadata WHERE key = 'max_latitude'),
  (SELECT value FROM metadata WHERE key = 'min_longitude'),
  (SELECT value FROM metadata WHERE key = 'max_longitude'),
  (SELECT value FROM metadata WHERE key = 'grid_size')`

// Session owns the read-only dataset handle, the cached bounds and the
// prepared lookup statements. Statements live as long as the handle
// and are released together by Close.
//
// A Session carries no internal synchronization: run one lookup at a
// time per Session, or create one Session per worker.
type Session struct {
	db     *sql.DB
	bounds models.Bounds
	window float64

	gridStmt   *sql.Stmt
	windowStmt *sql.Stmt
	infoStmt   *sql.Stmt

	// Query counters, observable in tests.
	gridQueries   uint64
	windowQueries uint64
}

// Option configures a Session at open time.
type Option func(*Session)

// WithWindow overrides the fallback search window (degrees).
func WithWindow(deg float64) Option {
	return func(s *Session) {
		if deg > 0 {
			s.window = deg
		}
	}
}

// Open acquires a read-only handle on the dataset at path, caches its
// bounds metadata and prepares both lookup statements. On any failure
// everything acquired so far is released and a nil Session is returned.
func Open(path string, opts ...Option) (*Session, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetOpen, err)
	}

	// Prepared statements bind to a single connection's page cache.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDatasetOpen, path, err)
	}

	// Read tuning for low-power hardware.
	pragmas := []string{
		"PRAGMA query_only = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 67108864",
		"PRAGMA cache_size = -8000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrDatasetOpen, p, err)
		}
	}

	s := &Session{db: db, window: DefaultWindow}
	for _, opt := range opts {
		opt(s)
	}

	s.bounds, err = loadBounds(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if s.gridStmt, err = db.Prepare(queryGrid); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: grid: %v", ErrQueryPrepare, err)
	}
	if s.windowStmt, err = db.Prepare(queryWindow); err != nil {
		s.gridStmt.Close()
		db.Close()
		return nil, fmt.Errorf("%w: window: %v", ErrQueryPrepare, err)
	}
	if s.infoStmt, err = db.Prepare(queryRoadInfo); err != nil {
		s.gridStmt.Close()
		s.windowStmt.Close()
		db.Close()
		return nil, fmt.Errorf("%w: road info: %v", ErrQueryPrepare, err)
	}

	return s, nil
}

// loadBounds reads the five bounds scalars from dataset metadata.
// A missing key surfaces as a NULL subselect. Values are parsed in Go
// rather than CAST in SQL: SQLite coerces garbage text to 0, which can
// leave a plausible-looking envelope standing.
func loadBounds(db *sql.DB) (models.Bounds, error) {
	keys := [...]string{"min_latitude", "max_latitude", "min_longitude", "max_longitude", "grid_size"}
	var raw [5]sql.NullString

	err := db.QueryRow(queryBounds).Scan(&raw[0], &raw[1], &raw[2], &raw[3], &raw[4])
	if err != nil {
		return models.Bounds{}, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	for i, v := range raw {
		if !v.Valid {
			return models.Bounds{}, fmt.Errorf("%w: missing metadata key %s", ErrMetadata, keys[i])
		}
	}

	var b models.Bounds
	fields := [...]*float64{&b.MinLat, &b.MaxLat, &b.MinLon, &b.MaxLon}
	for i, dst := range fields {
		f, err := strconv.ParseFloat(raw[i].String, 64)
		if err != nil {
			return models.Bounds{}, fmt.Errorf("%w: metadata key %s: %v", ErrMetadata, keys[i], err)
		}
		*dst = f
	}
	b.GridSize, err = strconv.Atoi(raw[4].String)
	if err != nil {
		return models.Bounds{}, fmt.Errorf("%w: metadata key grid_size: %v", ErrMetadata, err)
	}

	if !b.Valid() {
		return models.Bounds{}, fmt.Errorf("%w: degenerate bounds %+v", ErrMetadata, b)
	}
	return b, nil
}

// Bounds returns the cached dataset bounds.
func (s *Session) Bounds() models.Bounds {
	return s.bounds
}

// Window returns the fallback search window in degrees.
func (s *Session) Window() float64 {
	return s.window
}

// Lookup resolves the speed limit at the given coordinate. The grid
// path runs first; the window fallback runs only when the grid path
// finds nothing. Both missing yields Found=false, which is final for
// this call and never cached.
func (s *Session) Lookup(lat, lon float64) (Result, error) {
	gx, gy := GridCell(s.bounds, lat, lon)

	res, err := s.lookupGrid(gx, gy, lat, lon)
	if err != nil || res.Found {
		return res, err
	}
	return s.lookupWindow(lat, lon)
}

// lookupGrid searches the 3x3 cell neighborhood around (gx, gy) for
// segments whose bounding box contains the point, nearest center first.
// Out-of-range neighbor cells simply match no rows.
func (s *Session) lookupGrid(gx, gy int, lat, lon float64) (Result, error) {
	s.gridQueries++

	var limit int
	err := s.gridStmt.QueryRow(
		gx-1, gx+1, gy-1, gy+1,
		lat, lat, lon, lon,
		lat, lat, lon, lon,
	).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("grid lookup failed: %w", err)
	}
	return Result{SpeedLimit: limit, Found: true, Source: SourceGrid}, nil
}

// lookupWindow scans segments whose center falls within the fixed
// window around the point. Deliberately looser than the grid path:
// centers are tested, not full bounding boxes.
func (s *Session) lookupWindow(lat, lon float64) (Result, error) {
	s.windowQueries++

	var limit int
	err := s.windowStmt.QueryRow(
		lat-s.window, lat+s.window,
		lon-s.window, lon+s.window,
		lat, lat, lon, lon,
	).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("window lookup failed: %w", err)
	}
	return Result{SpeedLimit: limit, Found: true, Source: SourceWindow}, nil
}

// RoadInfo returns detailed information for the nearest segment whose
// center falls within the fallback window, or nil when none matches.
// Heavier than Lookup; not intended for the per-fix hot path.
func (s *Session) RoadInfo(lat, lon float64) (*models.RoadInfo, error) {
	var (
		limit    int
		name     sql.NullString
		highway  sql.NullString
		inferred int
	)
	err := s.infoStmt.QueryRow(
		lat-s.window, lat+s.window,
		lon-s.window, lon+s.window,
		lat, lat, lon, lon,
	).Scan(&limit, &name, &highway, &inferred)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("road info lookup failed: %w", err)
	}

	return &models.RoadInfo{
		SpeedLimit:  limit,
		Name:        name.String,
		HighwayType: highway.String,
		Inferred:    inferred == 1,
	}, nil
}

// Segments reads the full road segment table. Used to preload the
// in-memory index and by the bench command; not part of the hot path.
func (s *Session) Segments() ([]*models.Segment, error) {
	rows, err := s.db.Query(`
		SELECT id, min_lat, max_lat, min_lon, max_lon,
		       center_lat, center_lon, speed_limit_kmh,
		       name, highway_type, is_inferred
		FROM road_segments`)
	if err != nil {
		return nil, fmt.Errorf("failed to read segments: %w", err)
	}
	defer rows.Close()

	var segments []*models.Segment
	for rows.Next() {
		var (
			seg      models.Segment
			name     sql.NullString
			highway  sql.NullString
			inferred int
		)
		err := rows.Scan(&seg.ID, &seg.MinLat, &seg.MaxLat, &seg.MinLon, &seg.MaxLon,
			&seg.CenterLat, &seg.CenterLon, &seg.SpeedLimit,
			&name, &highway, &inferred)
		if err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		seg.Name = name.String
		seg.HighwayType = highway.String
		seg.Inferred = inferred == 1
		segments = append(segments, &seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return segments, nil
}

// Close releases the prepared statements and the dataset handle. The
// Session must not be used afterwards.
func (s *Session) Close() error {
	if s.gridStmt != nil {
		s.gridStmt.Close()
	}
	if s.windowStmt != nil {
		s.windowStmt.Close()
	}
	if s.infoStmt != nil {
		s.infoStmt.Close()
	}
	return s.db.Close()
}
