package db

import (
	"context"
	"fmt"
	"strings"

	"aidflow/internal/types"
)

// SeriesQuery defines the filters applied when loading a yearly observation
// series. Country and Sector are substring-matched case-insensitively;
// Sector "all" (any case) or empty means no sector filter. MinYear and Limit
// are optional (zero disables them).
type SeriesQuery struct {
	Country string
	Sector  string
	MinYear int
	Limit   int
}

// HasSectorFilter reports whether the query restricts results to one sector.
func (q SeriesQuery) HasSectorFilter() bool {
	return q.Sector != "" && !strings.EqualFold(q.Sector, "all")
}

// SeriesRepository loads yearly aid observation series from aid_records.
type SeriesRepository struct {
	db DBTX
}

// NewSeriesRepository creates a SeriesRepository backed by the given database
// connection (pool or transaction).
func NewSeriesRepository(db DBTX) *SeriesRepository {
	return &SeriesRepository{db: db}
}

// FetchSeries returns the per-year summed aid amounts matching the query,
// ordered by ascending year. It returns a not_found_series AppError when no
// rows match, so callers can distinguish "unknown country" from sparse data.
func (r *SeriesRepository) FetchSeries(ctx context.Context, q SeriesQuery) (types.ObservationSeries, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT ar.year, COALESCE(SUM(ar.amount), 0) AS total_aid
		FROM aid_records ar
		JOIN countries c ON ar.country_id = c.id
		WHERE c.name ILIKE $1`)

	args := []any{"%" + q.Country + "%"}

	if q.HasSectorFilter() {
		args = append(args, "%"+q.Sector+"%")
		fmt.Fprintf(&sb, `
		AND EXISTS (
			SELECT 1 FROM sectors s
			WHERE ar.sector_id = s.id AND s.name ILIKE $%d
		)`, len(args))
	}

	if q.MinYear > 0 {
		args = append(args, q.MinYear)
		fmt.Fprintf(&sb, `
		AND ar.year >= $%d`, len(args))
	}

	sb.WriteString(`
		GROUP BY ar.year
		ORDER BY ar.year`)

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, `
		LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query observation series", err)
	}
	defer rows.Close()

	var series types.ObservationSeries
	for rows.Next() {
		var p types.ObservationPoint
		if err := rows.Scan(&p.Year, &p.Amount); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan observation row", err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating observation rows", err)
	}

	if len(series) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundSeries,
			fmt.Sprintf("no historical data found for %s", q.Country),
			nil,
		)
	}

	return series, nil
}
