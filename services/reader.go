package services

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"rental-insights/config"
	"rental-insights/models"
	"rental-insights/utils"
)

// naTokens are read as missing values
var naTokens = map[string]bool{"": true, "N/A": true, "NA": true, "na": true, "NaN": true}

// CityColumn is appended to every raw record at merge time
const CityColumn = "city"

// RawReader reads the per-city listing exports and merges them into one table
type RawReader struct {
	cfg    *config.Config
	logger *utils.Logger
}

// NewRawReader creates a new RawReader
func NewRawReader(cfg *config.Config, logger *utils.Logger) *RawReader {
	return &RawReader{cfg: cfg, logger: logger}
}

// Read loads every configured city. Cities without an export on disk are
// skipped with a warning; it is an error when no city could be read.
func (r *RawReader) Read() (*models.RawTable, error) {
	table := &models.RawTable{}
	seenCols := make(map[string]bool)
	loaded := 0

	for _, city := range r.cfg.Cities {
		path, ok := r.locate(city)
		if !ok {
			r.logger.Warn("File for %s does not exist. Skipping.", city)
			continue
		}

		cols, records, err := readTabular(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for _, c := range append(cols, CityColumn) {
			if !seenCols[c] {
				seenCols[c] = true
				table.Columns = append(table.Columns, c)
			}
		}
		for _, rec := range records {
			rec[CityColumn] = city
		}
		table.Records = append(table.Records, records...)
		loaded++
		r.logger.Info("Read %d records for %s from %s", len(records), city, path)
	}

	if loaded == 0 {
		return nil, fmt.Errorf("no listing exports found under %s for %d configured cities", r.cfg.DataDir, len(r.cfg.Cities))
	}
	r.logger.Info("Merged %d records from %d cities", len(table.Records), loaded)
	return table, nil
}

// locate finds the export of a city, trying the plain, gzipped and spreadsheet variants
func (r *RawReader) locate(city string) (string, bool) {
	base := filepath.Join(r.cfg.DataDir, city, r.cfg.SourceFileName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, p := range []string{base, base + ".gz", stem + ".csv.gz", stem + ".xlsx"} {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

func readTabular(path string) ([]string, []models.RawRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readXLSX(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}
	return readCSV(src)
}

func readCSV(src io.Reader) ([]string, []models.RawRecord, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("empty file")
		}
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	header = normalizeHeader(header)

	var records []models.RawRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row %d: %w", len(records)+2, err)
		}
		records = append(records, toRecord(header, row))
	}
	return header, records, nil
}

func readXLSX(path string) ([]string, []models.RawRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("empty sheet")
	}

	header := normalizeHeader(rows[0])
	records := make([]models.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, toRecord(header, row))
	}
	return header, records, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

func toRecord(header, row []string) models.RawRecord {
	rec := make(models.RawRecord, len(header))
	for i, col := range header {
		if i >= len(row) || col == "" {
			continue
		}
		if v := row[i]; !naTokens[v] {
			rec[col] = v
		}
	}
	return rec
}
