package services

import (
	"path/filepath"
	"testing"
	"time"

	"rental-insights/config"
	"rental-insights/models"
)

// testConfig returns the default configuration with every path inside a temp dir
func testConfig(t *testing.T, cities ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	if len(cities) > 0 {
		cfg.Cities = cities
	}
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DatabaseURL = filepath.Join(dir, "listings.sqlite")
	cfg.MetricsPath = filepath.Join(dir, "metrics.json")
	cfg.ChartsPath = filepath.Join(dir, "charts_data.json")
	cfg.CleanCSVPath = filepath.Join(dir, "clean_listings.csv")
	return cfg
}

func day(s string) *time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func i64(n int64) *int64 { return &n }

func f64(f float64) *float64 { return &f }

func strp(s string) *string { return &s }
