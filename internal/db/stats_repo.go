package db

import (
	"context"
	"fmt"

	"aidflow/internal/types"
)

// Listing sizes for the dashboard leaderboards.
const (
	topRecipientsLimit = 10
	topDonorsLimit     = 8
)

// StatsRepository computes the aggregate dashboard statistics and serves the
// reference-entity listings (countries, donors, sectors).
type StatsRepository struct {
	db DBTX
}

// NewStatsRepository creates a StatsRepository backed by the given database
// connection (pool or transaction).
func NewStatsRepository(db DBTX) *StatsRepository {
	return &StatsRepository{db: db}
}

// FormatAmount renders a thousands-USD amount as a display string, using
// billions above $1B and millions otherwise. Matches the dashboard frontend's
// formatting conventions.
func FormatAmount(thousands float64) string {
	millions := thousands / 1000
	if millions >= 1000 {
		return fmt.Sprintf("$%.2fB", millions/1000)
	}
	return fmt.Sprintf("$%.2fM", millions)
}

// DashboardStats assembles the full dashboard summary in a single call. Each
// aggregation is a separate query; they share the caller's context so a
// request timeout cancels the whole batch.
func (r *StatsRepository) DashboardStats(ctx context.Context) (*types.DashboardStats, error) {
	stats := &types.DashboardStats{}

	var totalAid float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM aid_records`,
	).Scan(&totalAid)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to sum total aid", err)
	}
	stats.TotalAid = FormatAmount(totalAid)

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM countries`).Scan(&stats.CountryCount); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count countries", err)
	}
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM donors`).Scan(&stats.DonorCount); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count donors", err)
	}

	if stats.TopRecipients, err = r.topRecipients(ctx); err != nil {
		return nil, err
	}
	if stats.AidTrends, err = r.aidTrends(ctx); err != nil {
		return nil, err
	}
	if stats.SectorShares, err = r.sectorShares(ctx); err != nil {
		return nil, err
	}
	if stats.TopDonors, err = r.topDonors(ctx); err != nil {
		return nil, err
	}
	if stats.Regions, err = r.regionShares(ctx); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *StatsRepository) topRecipients(ctx context.Context) ([]types.RankedAmount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.name, c.region, SUM(ar.amount) AS total_amount
		FROM countries c
		JOIN aid_records ar ON c.id = ar.country_id
		GROUP BY c.id, c.name, c.region
		ORDER BY total_amount DESC
		LIMIT $1`, topRecipientsLimit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query top recipients", err)
	}
	defer rows.Close()

	var out []types.RankedAmount
	for rows.Next() {
		var name, region string
		var amount float64
		if err := rows.Scan(&name, &region, &amount); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan recipient row", err)
		}
		out = append(out, types.RankedAmount{
			Name:   name,
			Region: region,
			Amount: FormatAmount(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating recipient rows", err)
	}
	return out, nil
}

func (r *StatsRepository) aidTrends(ctx context.Context) ([]types.YearAmount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT year, SUM(amount) AS total_amount
		FROM aid_records
		GROUP BY year
		ORDER BY year`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query aid trends", err)
	}
	defer rows.Close()

	var out []types.YearAmount
	for rows.Next() {
		var ya types.YearAmount
		if err := rows.Scan(&ya.Year, &ya.Amount); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan trend row", err)
		}
		out = append(out, ya)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating trend rows", err)
	}
	return out, nil
}

func (r *StatsRepository) sectorShares(ctx context.Context) ([]types.SectorShare, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.name, SUM(ar.amount) AS total_amount
		FROM sectors s
		JOIN aid_records ar ON s.id = ar.sector_id
		GROUP BY s.id, s.name
		ORDER BY total_amount DESC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query sector distribution", err)
	}
	defer rows.Close()

	var out []types.SectorShare
	var total float64
	for rows.Next() {
		var share types.SectorShare
		if err := rows.Scan(&share.Sector, &share.Amount); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sector row", err)
		}
		total += share.Amount
		out = append(out, share)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating sector rows", err)
	}

	if total > 0 {
		for i := range out {
			out[i].Percentage = out[i].Amount / total * 100
		}
	}
	return out, nil
}

func (r *StatsRepository) topDonors(ctx context.Context) ([]types.RankedAmount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d.name, d.donor_type, SUM(ar.amount) AS total_amount
		FROM donors d
		JOIN aid_records ar ON d.id = ar.donor_id
		GROUP BY d.id, d.name, d.donor_type
		ORDER BY total_amount DESC
		LIMIT $1`, topDonorsLimit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query top donors", err)
	}
	defer rows.Close()

	var out []types.RankedAmount
	for rows.Next() {
		var name, donorType string
		var amount float64
		if err := rows.Scan(&name, &donorType, &amount); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan donor row", err)
		}
		out = append(out, types.RankedAmount{
			Name:   name,
			Type:   donorType,
			Amount: FormatAmount(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating donor rows", err)
	}
	return out, nil
}

func (r *StatsRepository) regionShares(ctx context.Context) ([]types.RegionShare, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.region, SUM(ar.amount) AS total_amount, COUNT(DISTINCT c.id) AS country_count
		FROM countries c
		JOIN aid_records ar ON c.id = ar.country_id
		GROUP BY c.region
		ORDER BY total_amount DESC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query regional distribution", err)
	}
	defer rows.Close()

	type regionRow struct {
		region    string
		amount    float64
		countries int
	}
	var raw []regionRow
	var total float64
	for rows.Next() {
		var rr regionRow
		if err := rows.Scan(&rr.region, &rr.amount, &rr.countries); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan region row", err)
		}
		total += rr.amount
		raw = append(raw, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating region rows", err)
	}

	out := make([]types.RegionShare, 0, len(raw))
	for _, rr := range raw {
		pct := 0.0
		if total > 0 {
			pct = rr.amount / total * 100
		}
		out = append(out, types.RegionShare{
			Region:     rr.region,
			Amount:     fmt.Sprintf("$%.2fM", rr.amount/1000),
			Percentage: pct,
			Countries:  rr.countries,
		})
	}
	return out, nil
}

// ListCountries returns all recipient countries ordered by name.
func (r *StatsRepository) ListCountries(ctx context.Context) ([]types.Country, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, iso_code, region
		FROM countries
		ORDER BY name`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query countries", err)
	}
	defer rows.Close()

	var out []types.Country
	for rows.Next() {
		var c types.Country
		if err := rows.Scan(&c.ID, &c.Name, &c.ISO, &c.Region); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan country row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating country rows", err)
	}
	return out, nil
}

// ListDonors returns all donors ordered by name.
func (r *StatsRepository) ListDonors(ctx context.Context) ([]types.Donor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, donor_type, COALESCE(country, '')
		FROM donors
		ORDER BY name`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query donors", err)
	}
	defer rows.Close()

	var out []types.Donor
	for rows.Next() {
		var d types.Donor
		if err := rows.Scan(&d.ID, &d.Name, &d.DonorType, &d.Country); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan donor row", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating donor rows", err)
	}
	return out, nil
}

// ListSectors returns all sectors ordered by code.
func (r *StatsRepository) ListSectors(ctx context.Context) ([]types.Sector, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, code
		FROM sectors
		ORDER BY code`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query sectors", err)
	}
	defer rows.Close()

	var out []types.Sector
	for rows.Next() {
		var s types.Sector
		if err := rows.Scan(&s.ID, &s.Name, &s.Code); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sector row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating sector rows", err)
	}
	return out, nil
}
