// Package export renders aid records and forecasts as downloadable
// artifacts: CSV (optionally gzip-compressed) and a forecast chart PNG.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"aidflow/internal/config"
	"aidflow/internal/db"
	"aidflow/internal/types"
)

var csvHeader = []string{"Country", "Donor", "Sector", "Year", "Amount_Thousands_USD", "Region"}

// RecordSource supplies the flattened rows the CSV export streams.
type RecordSource interface {
	FetchExportRows(ctx context.Context, f db.ExportFilter) ([]db.ExportRow, error)
}

// Clock supplies the timestamp stamped into filenames.
type Clock interface {
	Now() time.Time
}

// Service streams export artifacts. Row volume is capped by the
// configured maximum; results at the cap carry no continuation marker,
// matching a plain file download.
type Service struct {
	records RecordSource
	clock   Clock
	logger  *slog.Logger
	maxRows int
}

func NewService(cfg config.ExportConfig, records RecordSource, clock Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		records: records,
		clock:   clock,
		logger:  logger,
		maxRows: cfg.MaxRows,
	}
}

// WriteCSV streams the filtered records as CSV to w, gzip-compressing
// when compress is set. Returns the number of data rows written.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, filter db.ExportFilter, compress bool) (int, error) {
	if filter.Limit <= 0 || filter.Limit > s.maxRows {
		filter.Limit = s.maxRows
	}

	rows, err := s.records.FetchExportRows(ctx, filter)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, types.NewAppError(types.ErrCodeNotFoundSeries,
			"no data found matching the specified filters", nil)
	}

	out := w
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(w)
		out = gz
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(csvHeader); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalExport, "failed to write csv header", err)
	}

	for _, row := range rows {
		record := []string{
			row.Country,
			row.Donor,
			row.Sector,
			strconv.Itoa(row.Year),
			formatThousands(row.Amount),
			row.Region,
		}
		if err := cw.Write(record); err != nil {
			return 0, types.NewAppError(types.ErrCodeInternalExport, "failed to write csv row", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalExport, "failed to flush csv", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return 0, types.NewAppError(types.ErrCodeInternalExport, "failed to finish gzip stream", err)
		}
	}

	return len(rows), nil
}

// CSVFilename derives the download filename from the active filters plus
// the current date, e.g. "india_health_20260830.csv".
func (s *Service) CSVFilename(filter db.ExportFilter, compress bool) string {
	var parts []string
	if filter.Country != "" {
		parts = append(parts, slugify(filter.Country))
	}
	if filter.Sector != "" {
		parts = append(parts, slugify(filter.Sector))
	}
	if filter.Year > 0 {
		parts = append(parts, strconv.Itoa(filter.Year))
	}

	base := "aid_data"
	if len(parts) > 0 {
		base = strings.Join(parts, "_")
	}

	name := fmt.Sprintf("%s_%s.csv", base, s.clock.Now().Format("20060102"))
	if compress {
		name += ".gz"
	}
	return name
}

func slugify(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// formatThousands renders an amount in thousands USD with comma grouping
// and a K suffix, e.g. 1234567.5 -> "1,234,567.50K".
func formatThousands(amount float64) string {
	whole := fmt.Sprintf("%.2f", amount)
	dot := strings.Index(whole, ".")
	intPart, fracPart := whole[:dot], whole[dot:]

	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}

	var sb strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(digit)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return sign + sb.String() + fracPart + "K"
}
