// Package loader ingests the OECD CRS-style aid CSV into the database:
// it streams the (optionally gzipped) file, derives reference entities
// with classification heuristics, validates rows, and bulk-inserts aid
// records chunk by chunk.
package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"aidflow/internal/config"
	"aidflow/internal/db"
	"aidflow/internal/types"
)

const (
	fallbackSectorCode = "99998"
	fallbackSectorName = "Unspecified Sector"
	defaultYear        = 2020
	maxTitleLen        = 500
)

// RecordStore is the persistence surface the loader writes through.
type RecordStore interface {
	UpsertCountry(ctx context.Context, c types.Country) error
	UpsertDonor(ctx context.Context, d types.Donor) error
	UpsertSector(ctx context.Context, s types.Sector) error
	CopyRecords(ctx context.Context, copier db.CopyFromer, records []types.AidRecord) (int64, error)
}

// Report summarizes one ingest run for the audit log.
type Report struct {
	Processed   int
	Skipped     int
	SkipReasons map[string]int
	Countries   int
	Donors      int
	Sectors     int
}

// Loader streams aid rows from CSV into the record store.
type Loader struct {
	store  RecordStore
	copier db.CopyFromer
	logger *slog.Logger
	cfg    config.LoaderConfig
}

func New(store RecordStore, copier db.CopyFromer, logger *slog.Logger, cfg config.LoaderConfig) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:  store,
		copier: copier,
		logger: logger,
		cfg:    cfg,
	}
}

// Run ingests every row from r and returns the audit report. Reference
// entities are de-duplicated by code across the whole run; aid records
// flush to the database whenever a chunk fills.
func (l *Loader) Run(ctx context.Context, r io.Reader) (*Report, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := indexColumns(header)

	report := &Report{SkipReasons: make(map[string]int)}
	seenCountries := make(map[string]bool)
	seenDonors := make(map[string]bool)
	seenSectors := make(map[string]bool)

	chunkSize := l.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	chunk := make([]types.AidRecord, 0, chunkSize)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.Skipped++
			report.SkipReasons["malformed_row"]++
			continue
		}

		rec, refs, skipReason := l.parseRow(cols, row)
		if skipReason != "" {
			report.Skipped++
			report.SkipReasons[skipReason]++
			continue
		}

		if !seenCountries[refs.country.ID] {
			if err := l.store.UpsertCountry(ctx, refs.country); err != nil {
				return report, err
			}
			seenCountries[refs.country.ID] = true
		}
		if !seenDonors[refs.donor.ID] {
			if err := l.store.UpsertDonor(ctx, refs.donor); err != nil {
				return report, err
			}
			seenDonors[refs.donor.ID] = true
		}
		if !seenSectors[refs.sector.ID] {
			if err := l.store.UpsertSector(ctx, refs.sector); err != nil {
				return report, err
			}
			seenSectors[refs.sector.ID] = true
		}

		chunk = append(chunk, rec)
		report.Processed++

		if len(chunk) >= chunkSize {
			if err := l.flush(ctx, chunk, report); err != nil {
				return report, err
			}
			chunk = chunk[:0]
		}
	}

	if len(chunk) > 0 {
		if err := l.flush(ctx, chunk, report); err != nil {
			return report, err
		}
	}

	report.Countries = len(seenCountries)
	report.Donors = len(seenDonors)
	report.Sectors = len(seenSectors)

	l.logReport(report)
	return report, nil
}

func (l *Loader) flush(ctx context.Context, chunk []types.AidRecord, report *Report) error {
	n, err := l.store.CopyRecords(ctx, l.copier, chunk)
	if err != nil {
		return err
	}
	l.logger.Info("committed chunk", "rows", n, "total_processed", report.Processed)
	return nil
}

// references bundles the entities derived from one row.
type references struct {
	country types.Country
	donor   types.Donor
	sector  types.Sector
}

// parseRow validates one CSV row and derives its record plus reference
// entities. A non-empty skip reason means the row is dropped.
func (l *Loader) parseRow(cols columnIndex, row []string) (types.AidRecord, references, string) {
	var zero types.AidRecord

	year := parseYear(cols.get(row, "Year"))
	countryCode := cleanField(cols.get(row, "RecipientCode"))
	countryName := titleCase(cleanField(cols.get(row, "RecipientName")))
	donorCode := cleanField(cols.get(row, "DonorCode"))
	donorName := cleanField(cols.get(row, "DonorName"))
	sectorCode := cleanField(cols.get(row, "SectorCode"))
	sectorName := cleanField(cols.get(row, "SectorName"))

	switch {
	case year < l.cfg.MinYear || year > l.cfg.MaxYear:
		return zero, references{}, fmt.Sprintf("invalid_year_%d", year)
	case countryCode == "":
		return zero, references{}, "missing_country_code"
	case countryName == "":
		return zero, references{}, "missing_country_name"
	case donorCode == "":
		return zero, references{}, "missing_donor_code"
	case donorName == "":
		return zero, references{}, "missing_donor_name"
	}

	if sectorCode == "" {
		sectorCode = fallbackSectorCode
		sectorName = fallbackSectorName
	} else if sectorName == "" {
		sectorName = "Sector " + sectorCode
	}

	// Prefer the disbursement figure; fall back to the commitment.
	amount := parseAmount(cols.get(row, "USD_Disbursement"))
	if amount == 0 {
		amount = parseAmount(cols.get(row, "USD_Commitment"))
	}

	iso := countryCode
	if len(iso) > 3 {
		iso = iso[:3]
	}

	refs := references{
		country: types.Country{
			ID:     countryCode,
			Name:   countryName,
			ISO:    iso,
			Region: regionForCountry(countryName),
		},
		donor: types.Donor{
			ID:        donorCode,
			Name:      donorName,
			DonorType: donorTypeFor(donorName),
			Country:   donorCountryFor(donorName),
		},
		sector: types.Sector{
			ID:   sectorCode,
			Name: sectorName,
			Code: sectorCode,
		},
	}

	rec := types.AidRecord{
		ID:           uuid.NewString(),
		CountryID:    countryCode,
		DonorID:      donorCode,
		SectorID:     sectorCode,
		Year:         year,
		Amount:       amount,
		Currency:     "USD",
		ProjectTitle: truncate(cols.get(row, "ProjectTitle"), maxTitleLen),
	}

	return rec, refs, ""
}

func (l *Loader) logReport(report *Report) {
	l.logger.Info("data loading audit report",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"countries", report.Countries,
		"donors", report.Donors,
		"sectors", report.Sectors,
	)

	if total := report.Processed + report.Skipped; total > 0 {
		l.logger.Info("processing rate",
			"percent", fmt.Sprintf("%.1f", float64(report.Processed)/float64(total)*100))
	}

	reasons := make([]string, 0, len(report.SkipReasons))
	for reason := range report.SkipReasons {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		return report.SkipReasons[reasons[i]] > report.SkipReasons[reasons[j]]
	})
	for _, reason := range reasons {
		l.logger.Info("skip reason", "reason", reason, "count", report.SkipReasons[reason])
	}
}

// columnIndex maps header names to positions so the loader tolerates
// column reordering between file versions.
type columnIndex map[string]int

func indexColumns(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func (c columnIndex) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}

func parseYear(s string) int {
	s = cleanField(s)
	if s == "" {
		return defaultYear
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultYear
	}
	return int(f)
}

func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(cleanField(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
