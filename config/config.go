package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override (STR_CITIES, STR_DATABASE_URL, ...)
const EnvPrefix = "STR"

// Config holds all run-level configuration.
// It is built once by Load and treated as read-only afterwards.
type Config struct {
	// Source data
	Cities         []string `yaml:"cities" envconfig:"CITIES" validate:"required,min=1,dive,required"`
	DataDir        string   `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	SourceFileName string   `yaml:"source_file" envconfig:"SOURCE_FILE" validate:"required"`

	// Outputs
	DatabaseURL  string `yaml:"database_url" envconfig:"DATABASE_URL" validate:"required"`
	MetricsPath  string `yaml:"metrics_path" envconfig:"METRICS_PATH" validate:"required"`
	ChartsPath   string `yaml:"charts_path" envconfig:"CHARTS_PATH" validate:"required"`
	CleanCSVPath string `yaml:"clean_csv_path" envconfig:"CLEAN_CSV_PATH"`

	// Cleaning and cohorts
	ReviewScorePrecision  int  `yaml:"review_score_precision" envconfig:"REVIEW_SCORE_PRECISION" validate:"gte=0,lte=6"`
	BaselineQuarterOffset int  `yaml:"baseline_quarter_offset" envconfig:"BASELINE_QUARTER_OFFSET" validate:"gte=1"`
	MinimumNightsCutoff   int  `yaml:"minimum_nights_cutoff" envconfig:"MINIMUM_NIGHTS_CUTOFF" validate:"gte=1"`
	FuzzyMatchThreshold   int  `yaml:"fuzzy_match_threshold" envconfig:"FUZZY_MATCH_THRESHOLD" validate:"gte=0,lte=100"`
	ActivityWindowStart   Date `yaml:"activity_window_start" envconfig:"ACTIVITY_WINDOW_START"`
	ActivityWindowEnd     Date `yaml:"activity_window_end" envconfig:"ACTIVITY_WINDOW_END"`
	ImpactBatchSize       int  `yaml:"impact_batch_size" envconfig:"IMPACT_BATCH_SIZE" validate:"gte=1"`

	// LookupColumns maps each flat lookup table to the cleaned source column feeding it
	LookupColumns map[string]string `yaml:"lookup_columns" envconfig:"LOOKUP_COLUMNS" validate:"required"`

	// AmenityVocabulary is the predefined category -> amenity mapping
	AmenityVocabulary []AmenityCategory `yaml:"amenity_vocabulary" ignored:"true" validate:"required,min=1,dive"`

	Fetch FetchConfig `yaml:"fetch" envconfig:"FETCH"`

	LogMode string `yaml:"log_mode" envconfig:"LOG_MODE"`
}

// FetchConfig controls export discovery and download
type FetchConfig struct {
	InsideAirbnbURL string        `yaml:"url" envconfig:"URL" validate:"required,url"`
	Country         string        `yaml:"country" envconfig:"COUNTRY"`
	MaxConcurrency  int           `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY" validate:"gte=1"`
	RateLimitDelay  int           `yaml:"rate_limit_delay_ms" envconfig:"RATE_LIMIT_DELAY_MS" validate:"gte=0"`
	MaxRetries      int           `yaml:"max_retries" envconfig:"MAX_RETRIES" validate:"gte=1"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// AmenityCategory is one category of the canonical amenity vocabulary
type AmenityCategory struct {
	Name      string   `yaml:"name" validate:"required"`
	Amenities []string `yaml:"amenities" validate:"required,min=1,dive,required"`
}

// Date is a calendar date that decodes from "YYYY-MM-DD" in YAML and env
type Date struct {
	time.Time
}

// Decode implements envconfig.Decoder
func (d *Date) Decode(value string) error {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", value, err)
	}
	d.Time = t
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	return d.Decode(node.Value)
}

// MustDate builds a Date from a literal, panicking on bad input
func MustDate(s string) Date {
	var d Date
	if err := d.Decode(s); err != nil {
		panic(err)
	}
	return d
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Cities: []string{
			"Los Angeles",
			"San Francisco",
			"Seattle",
			"Chicago",
			"Cambridge",
			"San Mateo County",
			"Santa Clara County",
			"Santa Cruz County",
			"Oakland",
		},
		DataDir:               "data/usa",
		SourceFileName:        "listings_detailed.csv",
		DatabaseURL:           "data/listings.sqlite",
		MetricsPath:           "data/metrics.json",
		ChartsPath:            "data/charts_data.json",
		CleanCSVPath:          "output/clean_listings.csv",
		ReviewScorePrecision:  2,
		BaselineQuarterOffset: 4,
		MinimumNightsCutoff:   7,
		FuzzyMatchThreshold:   80,
		ActivityWindowStart:   MustDate("2022-01-01"),
		ActivityWindowEnd:     MustDate("2023-03-31"),
		ImpactBatchSize:       100,
		LookupColumns: map[string]string{
			"PropertyTypes":     "property_type",
			"RoomTypes":         "room_type",
			"HostResponseTimes": "host_response_time",
		},
		AmenityVocabulary: DefaultAmenityVocabulary(),
		Fetch: FetchConfig{
			InsideAirbnbURL: "https://insideairbnb.com/get-the-data/",
			Country:         "united-states",
			MaxConcurrency:  3,
			RateLimitDelay:  2000,
			MaxRetries:      3,
			Timeout:         10 * time.Minute,
		},
		LogMode: "dev",
	}
}

// Load builds the configuration: defaults, then the optional YAML file, then
// STR_* environment overrides. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file keep their value
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.ActivityWindowEnd.Before(c.ActivityWindowStart.Time) {
		return errors.New("activity_window_end precedes activity_window_start")
	}
	seen := make(map[string]bool)
	for _, cat := range c.AmenityVocabulary {
		for _, a := range cat.Amenities {
			if seen[a] {
				return fmt.Errorf("amenity %q listed in more than one category", a)
			}
			seen[a] = true
		}
	}
	return nil
}

// IsPostgres reports whether DatabaseURL targets a PostgreSQL server
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}
