// Package buildings queries the municipal building stock database.
//
// All queries are built from allow-listed column names with values bound
// as positional parameters, so user-controlled filter input never reaches
// SQL text directly.
package buildings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/isabella-tue/retrofit/internal/log"
)

// ErrNotFound indicates the requested building does not exist.
var ErrNotFound = errors.New("building not found")

const table = "buildings"

// Query pagination limits.
const (
	defaultLimit = 50
	maxLimit     = 500

	defaultDistinctLimit = 100
	maxDistinctLimit     = 500
)

// defaultColumns is the projection used when a query names no columns.
var defaultColumns = []string{
	"pand_id", "area", "height", "gem_bouwlagen",
	"residential_type", "bouwjaar", "postcode", "average_wwr",
}

// Querier is the subset of pgxpool.Pool the store depends on.
// Defined here, by the consumer, so tests can substitute a lighter
// implementation.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store answers building queries against PostgreSQL.
// Safe for concurrent use.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a building store over the given connection pool.
func NewStore(db Querier, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// QueryRequest selects, filters, sorts, and paginates building rows.
type QueryRequest struct {
	Filters   []Filter `json:"filters"`
	SortBy    string   `json:"sort_by"`
	SortOrder string   `json:"sort_order"`
	Limit     int      `json:"limit"`
	Offset    int      `json:"offset"`
	Columns   []string `json:"columns"`
}

// QueryResult is one page of matching buildings plus the total count
// before pagination.
type QueryResult struct {
	Buildings   []map[string]any `json:"buildings"`
	TotalCount  int64            `json:"total_count"`
	Columns     []string         `json:"columns"`
	QueryTimeMs float64          `json:"query_time_ms"`
}

// Query runs a filtered, sorted, paginated building query.
func (s *Store) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()

	where, args, err := buildWhere(req.Filters)
	if err != nil {
		return nil, err
	}

	if req.SortBy != "" && !allowedColumns[req.SortBy] {
		return nil, fmt.Errorf("%w: sort column %q", ErrColumnNotAllowed, req.SortBy)
	}
	order := "ORDER BY pand_id"
	if req.SortBy != "" {
		dir := "ASC"
		if strings.EqualFold(req.SortOrder, "desc") {
			dir = "DESC"
		}
		order = fmt.Sprintf("ORDER BY %s %s", req.SortBy, dir)
	}

	cols := req.Columns
	if len(cols) == 0 {
		cols = defaultColumns
	}
	for _, c := range cols {
		if !allowedColumns[c] {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotAllowed, c)
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := max(req.Offset, 0)

	query := fmt.Sprintf("SELECT %s FROM %s %s %s LIMIT $%d OFFSET $%d",
		strings.Join(cols, ", "), table, where, order, len(args)+1, len(args)+2)

	rows, err := s.db.Query(ctx, query, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	buildings, resultCols, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	if len(resultCols) == 0 {
		resultCols = cols
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", table, where)
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("building count: %w", err)
	}

	s.logger.Debug("building query",
		"filters", len(req.Filters), "rows", len(buildings), "total", total)

	return &QueryResult{
		Buildings:   buildings,
		TotalCount:  total,
		Columns:     resultCols,
		QueryTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

// Get returns a single building by its exact pand_id.
func (s *Store) Get(ctx context.Context, pandID string) (map[string]any, error) {
	rows, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE pand_id = $1", table), pandID)
	if err != nil {
		return nil, fmt.Errorf("get building %q: %w", pandID, err)
	}
	buildings, _, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("get building %q: %w", pandID, err)
	}
	if len(buildings) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, pandID)
	}
	return buildings[0], nil
}

// Coordinates locates a building's centroid for camera navigation.
type Coordinates struct {
	PandID string   `json:"pand_id"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Source string   `json:"source"`
}

// centroidColumnPairs are the precomputed coordinate column naming
// conventions seen across dataset versions, tried in order.
var centroidColumnPairs = [][2]string{
	{"lat", "lon"},
	{"centroid_lat", "centroid_lon"},
	{"latitude", "longitude"},
	{"y", "x"},
}

// Coordinates returns the building centroid, preferring a PostGIS geometry
// column and falling back to precomputed coordinate columns. Identifiers
// stored as bigint lose their leading zeros, so both the raw and stripped
// pand_id are matched.
func (s *Store) Coordinates(ctx context.Context, pandID string) (*Coordinates, error) {
	stripped := strings.TrimLeft(pandID, "0")
	if stripped == "" {
		stripped = "0"
	}

	geomQuery := fmt.Sprintf(`
		SELECT
			ST_Y(ST_Transform(ST_Centroid(geometry), 4326)),
			ST_X(ST_Transform(ST_Centroid(geometry), 4326))
		FROM %s
		WHERE pand_id::text = $1 OR pand_id::text = $2
		LIMIT 1`, table)

	var lat, lon *float64
	err := s.db.QueryRow(ctx, geomQuery, pandID, stripped).Scan(&lat, &lon)
	switch {
	case err == nil && lat != nil && lon != nil:
		return &Coordinates{PandID: pandID, Lat: lat, Lon: lon, Source: "geometry"}, nil
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		// Geometry column may not exist in this dataset version.
		s.logger.Debug("geometry centroid query failed", "pand_id", pandID, "error", err)
	}

	for _, pair := range centroidColumnPairs {
		query := fmt.Sprintf(`
			SELECT %s, %s FROM %s
			WHERE pand_id::text = $1 OR pand_id::text = $2
			LIMIT 1`, pair[0], pair[1], table)

		var lat, lon *float64
		err := s.db.QueryRow(ctx, query, pandID, stripped).Scan(&lat, &lon)
		if err == nil && lat != nil && lon != nil {
			return &Coordinates{PandID: pandID, Lat: lat, Lon: lon, Source: "centroid_columns"}, nil
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("centroid column query failed",
				"pand_id", pandID, "columns", pair, "error", err)
		}
	}

	var exists string
	existsQuery := fmt.Sprintf(
		"SELECT pand_id FROM %s WHERE pand_id::text = $1 OR pand_id::text = $2 LIMIT 1", table)
	if err := s.db.QueryRow(ctx, existsQuery, pandID, stripped).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, pandID)
		}
		return nil, fmt.Errorf("coordinates for %q: %w", pandID, err)
	}

	return &Coordinates{PandID: pandID, Source: "unavailable"}, nil
}

// RangeStats summarizes a numeric column over the matched set.
type RangeStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// YearStats summarizes the construction year span.
type YearStats struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// EraBucket is one construction era with its building count and mean area.
type EraBucket struct {
	Era     string  `json:"era"`
	Count   int64   `json:"count"`
	AvgArea float64 `json:"avg_area"`
}

// TypeBucket is one residential type with its building count.
type TypeBucket struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Stats aggregates the buildings matched by a filter set.
type Stats struct {
	TotalCount      int64        `json:"total_count"`
	UniqueBuildings int64        `json:"unique_buildings"`
	Area            RangeStats   `json:"area"`
	Height          RangeStats   `json:"height"`
	Year            YearStats    `json:"year"`
	Floors          RangeStats   `json:"floors"`
	ByEra           []EraBucket  `json:"by_era"`
	ByType          []TypeBucket `json:"by_type"`
}

// Stats computes summary statistics over buildings matching the filters.
func (s *Store) Stats(ctx context.Context, filters []Filter) (*Stats, error) {
	where, args, err := buildWhere(filters)
	if err != nil {
		return nil, err
	}

	statsQuery := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(DISTINCT pand_id),
			MIN(area), MAX(area), ROUND(AVG(area)::numeric, 1),
			MIN(height), MAX(height), ROUND(AVG(height)::numeric, 1),
			MIN(bouwjaar), MAX(bouwjaar),
			MIN(gem_bouwlagen), MAX(gem_bouwlagen), ROUND(AVG(gem_bouwlagen)::numeric, 1)
		FROM %s %s`, table, where)

	var stats Stats
	var areaMin, areaMax, areaAvg *float64
	var heightMin, heightMax, heightAvg *float64
	var yearMin, yearMax *int
	var floorsMin, floorsMax, floorsAvg *float64
	err = s.db.QueryRow(ctx, statsQuery, args...).Scan(
		&stats.TotalCount, &stats.UniqueBuildings,
		&areaMin, &areaMax, &areaAvg,
		&heightMin, &heightMax, &heightAvg,
		&yearMin, &yearMax,
		&floorsMin, &floorsMax, &floorsAvg,
	)
	if err != nil {
		return nil, fmt.Errorf("building stats: %w", err)
	}
	stats.Area = RangeStats{Min: deref(areaMin), Max: deref(areaMax), Avg: deref(areaAvg)}
	stats.Height = RangeStats{Min: deref(heightMin), Max: deref(heightMax), Avg: deref(heightAvg)}
	stats.Year = YearStats{Min: deref(yearMin), Max: deref(yearMax)}
	stats.Floors = RangeStats{Min: deref(floorsMin), Max: deref(floorsMax), Avg: deref(floorsAvg)}

	eraQuery := fmt.Sprintf(`
		SELECT
			CASE
				WHEN bouwjaar < 1945 THEN 'Pre-1945'
				WHEN bouwjaar < 1975 THEN '1945-1974'
				WHEN bouwjaar < 1992 THEN '1975-1991'
				WHEN bouwjaar < 2006 THEN '1992-2005'
				ELSE '2006+'
			END AS era,
			COUNT(*),
			ROUND(AVG(area)::numeric, 1)
		FROM %s %s
		GROUP BY era
		ORDER BY era`, table, where)

	rows, err := s.db.Query(ctx, eraQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("era breakdown: %w", err)
	}
	for rows.Next() {
		var b EraBucket
		var avgArea *float64
		if err := rows.Scan(&b.Era, &b.Count, &avgArea); err != nil {
			rows.Close()
			return nil, fmt.Errorf("era breakdown: %w", err)
		}
		b.AvgArea = deref(avgArea)
		stats.ByEra = append(stats.ByEra, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("era breakdown: %w", err)
	}

	typeWhere := "WHERE residential_type IS NOT NULL"
	if where != "" {
		typeWhere = where + " AND residential_type IS NOT NULL"
	}
	typeQuery := fmt.Sprintf(`
		SELECT residential_type, COUNT(*)
		FROM %s %s
		GROUP BY residential_type
		ORDER BY COUNT(*) DESC
		LIMIT 10`, table, typeWhere)

	rows, err = s.db.Query(ctx, typeQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("type breakdown: %w", err)
	}
	for rows.Next() {
		var b TypeBucket
		if err := rows.Scan(&b.Type, &b.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("type breakdown: %w", err)
		}
		stats.ByType = append(stats.ByType, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("type breakdown: %w", err)
	}

	return &stats, nil
}

// DistinctValues holds the distinct entries of one column.
type DistinctValues struct {
	Column string `json:"column"`
	Values []any  `json:"values"`
	Count  int    `json:"count"`
}

// Distinct returns the distinct non-null values of a dropdown column.
func (s *Store) Distinct(ctx context.Context, column string, limit int) (*DistinctValues, error) {
	if !distinctValueColumns[column] {
		return nil, fmt.Errorf("%w: %q is not available for distinct values", ErrColumnNotAllowed, column)
	}
	if limit <= 0 {
		limit = defaultDistinctLimit
	}
	if limit > maxDistinctLimit {
		limit = maxDistinctLimit
	}

	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s LIMIT $1",
		column, table, column, column)
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	values := []any{}
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("distinct %s: %w", column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}

	return &DistinctValues{Column: column, Values: values, Count: len(values)}, nil
}

// FilterOption is one dropdown entry with its building count.
type FilterOption struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// FilterOptions groups dropdown entries per categorical column.
type FilterOptions struct {
	Options map[string][]FilterOption `json:"options"`
	Columns []string                  `json:"columns"`
}

// ageRangeOrder fixes the chronological ordering of age_range labels,
// which do not sort lexically.
var ageRangeOrder = []string{
	"< 1945", "1945 - 1964", "1965 - 1974", "1975 - 1991",
	"1992 - 2005", "2006 - 2014", "2015 and later",
}

// FilterOptions fetches all categorical dropdown options in one query.
func (s *Store) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	categorical := []string{
		"building_function", "building_type", "residential_type",
		"non_residential_type", "age_range",
	}

	parts := make([]string, len(categorical))
	for i, col := range categorical {
		parts[i] = fmt.Sprintf(`
			SELECT '%s' AS column_name, %s AS value, COUNT(*) AS count
			FROM %s
			WHERE %s IS NOT NULL AND %s::text != ''
			GROUP BY %s`, col, col, table, col, col, col)
	}
	query := strings.Join(parts, "\nUNION ALL\n") + "\nORDER BY column_name, count DESC"

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter options: %w", err)
	}

	options := make(map[string][]FilterOption, len(categorical))
	for _, col := range categorical {
		options[col] = []FilterOption{}
	}
	for rows.Next() {
		var col string
		var opt FilterOption
		if err := rows.Scan(&col, &opt.Value, &opt.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("filter options: %w", err)
		}
		if _, ok := options[col]; ok {
			options[col] = append(options[col], opt)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter options: %w", err)
	}

	sort.SliceStable(options["age_range"], func(i, j int) bool {
		return ageRangeIndex(options["age_range"][i].Value) < ageRangeIndex(options["age_range"][j].Value)
	})

	return &FilterOptions{Options: options, Columns: DistinctValueColumns()}, nil
}

func ageRangeIndex(label string) int {
	for i, l := range ageRangeOrder {
		if l == label {
			return i
		}
	}
	return len(ageRangeOrder)
}

// ColumnInfo describes one table column.
type ColumnInfo struct {
	Name string `json:"column_name"`
	Type string `json:"data_type"`
}

// Schema describes the buildings table and which columns are queryable.
type Schema struct {
	Columns    []ColumnInfo `json:"columns"`
	Filterable []string     `json:"filterable_columns"`
	Numeric    []string     `json:"numeric_columns"`
	Text       []string     `json:"text_columns"`
}

// Schema reports the table layout from information_schema together with
// the filter allow-lists.
func (s *Store) Schema(ctx context.Context) (*Schema, error) {
	rows, err := s.db.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("building schema: %w", err)
	}
	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			rows.Close()
			return nil, fmt.Errorf("building schema: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("building schema: %w", err)
	}

	return &Schema{
		Columns:    cols,
		Filterable: FilterableColumns(),
		Numeric:    NumericColumns(),
		Text:       TextColumns(),
	}, nil
}

// collectRows drains rows into maps keyed by column name.
func collectRows(rows pgx.Rows) ([]map[string]any, []string, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	result := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		result = append(result, row)
	}
	return result, cols, rows.Err()
}

func deref[T int | float64](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
