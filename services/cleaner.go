package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rental-insights/config"
	"rental-insights/models"
	"rental-insights/utils"
)

// columnRenames maps export column names to the names used by the schema.
// Unmapped columns pass through unchanged.
var columnRenames = map[string]string{
	"neighbourhood_cleansed": "neighborhood",
	"id":                     "listing_id",
	"number_of_reviews_ltm":  "number_of_reviews_last_12m",
	"number_of_reviews_l30d": "number_of_reviews_last_30d",
}

// requiredColumns must be present after renaming
var requiredColumns = []string{"listing_id", "host_id", CityColumn, "price", "last_review"}

var reviewScoreColumns = []string{
	"review_scores_rating",
	"review_scores_accuracy",
	"review_scores_cleanliness",
	"review_scores_checkin",
	"review_scores_communication",
	"review_scores_location",
	"review_scores_value",
}

var hostColumns = []string{
	"host_since",
	"host_response_time",
	"host_response_rate",
	"host_acceptance_rate",
	"host_is_superhost",
	"host_listings_count",
	"host_total_listings_count",
	"host_has_profile_pic",
	"host_identity_verified",
}

// Exclusion reasons reported in CleanDataset.Excluded
const (
	ExcludedNoListingID    = "no_listing_id"
	ExcludedDuplicate      = "duplicate"
	ExcludedActivityWindow = "activity_window"
	ExcludedMinimumNights  = "minimum_nights"
)

// DataCleaner normalizes the merged raw table into anonymized listings and hosts
type DataCleaner struct {
	cfg    *config.Config
	logger *utils.Logger
}

// NewDataCleaner creates a new DataCleaner
func NewDataCleaner(cfg *config.Config, logger *utils.Logger) *DataCleaner {
	return &DataCleaner{cfg: cfg, logger: logger}
}

// Clean runs every cleaning step in order. The raw table is modified in place.
// It fails only when a required or configured lookup column is missing.
func (c *DataCleaner) Clean(raw *models.RawTable) (*models.CleanDataset, error) {
	coerceBooleans(raw)
	p := newCellParser()
	coercePercents(raw, p)
	renameColumns(raw)

	if err := c.validateColumns(raw); err != nil {
		return nil, err
	}

	ds := &models.CleanDataset{
		Lookups:  make(map[string][]string),
		Excluded: make(map[string]int),
	}

	records := dedupeListings(raw.Records, ds.Excluded)

	type candidate struct {
		rec     models.RawRecord
		listing *models.Listing
	}
	start, end := c.cfg.ActivityWindowStart.Time, c.cfg.ActivityWindowEnd.Time
	var kept []candidate
	for _, rec := range records {
		l := c.buildListing(rec, p)

		if l.LastReview == nil || l.LastReview.Before(start) || l.LastReview.After(end) {
			ds.Excluded[ExcludedActivityWindow]++
			continue
		}
		if l.MinimumNights != nil && *l.MinimumNights >= int64(c.cfg.MinimumNightsCutoff) {
			ds.Excluded[ExcludedMinimumNights]++
			continue
		}
		kept = append(kept, candidate{rec: rec, listing: l})
	}

	// Anonymize after filtering: dense ids by first-seen order
	hostIDs := make(map[string]int64)
	hostRecords := make(map[string][]models.RawRecord)
	var hostOrder []string
	for i, cand := range kept {
		cand.listing.ListingID = int64(i + 1)
		if rawHost, ok := cand.rec["host_id"]; ok {
			key := normalizeID(rawHost)
			id, seen := hostIDs[key]
			if !seen {
				id = int64(len(hostIDs) + 1)
				hostIDs[key] = id
				hostOrder = append(hostOrder, key)
			}
			cand.listing.HostID = id
			hostRecords[key] = append(hostRecords[key], cand.rec)
		}
		ds.Listings = append(ds.Listings, cand.listing)
	}

	for _, key := range hostOrder {
		rec := mostComplete(hostRecords[key], hostColumns)
		ds.Hosts = append(ds.Hosts, c.buildHost(hostIDs[key], rec, p))
	}

	for _, col := range sortedValues(c.cfg.LookupColumns) {
		ds.Lookups[col] = distinctValues(kept, col, func(cand candidate) models.RawRecord { return cand.rec })
	}
	ds.FormatErrors = p.errors

	for col, n := range p.errors {
		c.logger.Warn("Column %s: %d malformed values stored as NULL (e.g. %v)", col, n, p.samples[col])
	}
	c.logger.Info("Cleaned %d listings and %d hosts from %d raw records (excluded: %v)",
		len(ds.Listings), len(ds.Hosts), len(raw.Records), ds.Excluded)
	return ds, nil
}

func (c *DataCleaner) validateColumns(raw *models.RawTable) error {
	for _, col := range requiredColumns {
		if !raw.HasColumn(col) {
			return &ConfigError{Field: "source columns", Reason: fmt.Sprintf("required column %q is missing", col)}
		}
	}
	for table, col := range c.cfg.LookupColumns {
		if !raw.HasColumn(col) {
			return &ConfigError{Field: "lookup_columns." + table, Reason: fmt.Sprintf("source column %q is missing", col)}
		}
	}
	return nil
}

func (c *DataCleaner) buildListing(rec models.RawRecord, p *cellParser) *models.Listing {
	l := &models.Listing{
		City:            rec[CityColumn],
		Neighborhood:    p.text(rec, "neighborhood"),
		PropertyType:    p.text(rec, "property_type"),
		RoomType:        p.text(rec, "room_type"),
		Accommodates:    p.integer(rec, "accommodates"),
		Bedrooms:        p.integer(rec, "bedrooms"),
		Beds:            p.integer(rec, "beds"),
		Price:           p.price(rec, "price"),
		MinimumNights:   p.integer(rec, "minimum_nights"),
		MaximumNights:   p.integer(rec, "maximum_nights"),
		HasAvailability: p.flag(rec, "has_availability"),
		InstantBookable: p.flag(rec, "instant_bookable"),
		License:         p.text(rec, "license"),

		Availability30:  p.integer(rec, "availability_30"),
		Availability60:  p.integer(rec, "availability_60"),
		Availability90:  p.integer(rec, "availability_90"),
		Availability365: p.integer(rec, "availability_365"),

		NumberOfReviews:        p.integer(rec, "number_of_reviews"),
		NumberOfReviewsLast12m: p.integer(rec, "number_of_reviews_last_12m"),
		NumberOfReviewsLast30d: p.integer(rec, "number_of_reviews_last_30d"),
		FirstReview:            p.date(rec, "first_review"),
		LastReview:             p.date(rec, "last_review"),

		Amenities: parseAmenityList(rec["amenities"]),
	}

	precision := int32(c.cfg.ReviewScorePrecision)
	scores := []**float64{
		&l.ReviewScoresRating,
		&l.ReviewScoresAccuracy,
		&l.ReviewScoresCleanliness,
		&l.ReviewScoresCheckin,
		&l.ReviewScoresCommunication,
		&l.ReviewScoresLocation,
		&l.ReviewScoresValue,
	}
	for i, col := range reviewScoreColumns {
		*scores[i] = p.rounded(rec, col, precision)
	}
	return l
}

func (c *DataCleaner) buildHost(id int64, rec models.RawRecord, p *cellParser) *models.Host {
	return &models.Host{
		HostID:                 id,
		HostSince:              p.date(rec, "host_since"),
		HostResponseTime:       p.text(rec, "host_response_time"),
		HostResponseRate:       p.fraction(rec, "host_response_rate"),
		HostAcceptanceRate:     p.fraction(rec, "host_acceptance_rate"),
		HostIsSuperhost:        p.flag(rec, "host_is_superhost"),
		HostListingsCount:      p.integer(rec, "host_listings_count"),
		HostTotalListingsCount: p.integer(rec, "host_total_listings_count"),
		HostHasProfilePic:      p.flag(rec, "host_has_profile_pic"),
		HostIdentityVerified:   p.flag(rec, "host_identity_verified"),
	}
}

// coerceBooleans maps t/f to 1/0 in every column whose non-null values are exactly {"t", "f"}
func coerceBooleans(raw *models.RawTable) {
	for _, col := range raw.Columns {
		hasT, hasF, other := false, false, false
		for _, rec := range raw.Records {
			v, ok := rec[col]
			if !ok {
				continue
			}
			switch v {
			case "t":
				hasT = true
			case "f":
				hasF = true
			default:
				other = true
			}
			if other {
				break
			}
		}
		if !hasT || !hasF || other {
			continue
		}
		for _, rec := range raw.Records {
			if v, ok := rec[col]; ok {
				if v == "t" {
					rec[col] = "1"
				} else {
					rec[col] = "0"
				}
			}
		}
	}
}

// coercePercents turns every column whose non-null values all end in "%" into fractions
func coercePercents(raw *models.RawTable, p *cellParser) {
	hundred := decimal.NewFromInt(100)
	for _, col := range raw.Columns {
		seen, all := false, true
		for _, rec := range raw.Records {
			v, ok := rec[col]
			if !ok {
				continue
			}
			seen = true
			if !strings.HasSuffix(v, "%") {
				all = false
				break
			}
		}
		if !seen || !all {
			continue
		}
		for _, rec := range raw.Records {
			v, ok := rec[col]
			if !ok {
				continue
			}
			d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(v, "%")))
			if err != nil {
				p.fail(col, v, "not a percentage")
				delete(rec, col)
				continue
			}
			rec[col] = d.Div(hundred).String()
		}
	}
}

func renameColumns(raw *models.RawTable) {
	for i, col := range raw.Columns {
		if to, ok := columnRenames[col]; ok {
			raw.Columns[i] = to
		}
	}
	for _, rec := range raw.Records {
		for from, to := range columnRenames {
			if v, ok := rec[from]; ok {
				rec[to] = v
				delete(rec, from)
			}
		}
	}
}

// dedupeListings keeps one record per listing_id: the one with the most non-null
// cells, the earliest on ties. Survivors stay in order of first appearance.
func dedupeListings(records []models.RawRecord, excluded map[string]int) []models.RawRecord {
	best := make(map[string]int)
	var order []string
	for i, rec := range records {
		raw, ok := rec["listing_id"]
		if !ok {
			excluded[ExcludedNoListingID]++
			continue
		}
		key := normalizeID(raw)
		j, seen := best[key]
		if !seen {
			best[key] = i
			order = append(order, key)
			continue
		}
		excluded[ExcludedDuplicate]++
		if rec.Filled() > records[j].Filled() {
			best[key] = i
		}
	}

	out := make([]models.RawRecord, 0, len(order))
	for _, key := range order {
		out = append(out, records[best[key]])
	}
	return out
}

// mostComplete returns the record with the most non-null cells among cols
func mostComplete(records []models.RawRecord, cols []string) models.RawRecord {
	filled := func(rec models.RawRecord) int {
		n := 0
		for _, c := range cols {
			if _, ok := rec[c]; ok {
				n++
			}
		}
		return n
	}
	sorted := append([]models.RawRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return filled(sorted[i]) > filled(sorted[j]) })
	return sorted[0]
}

// normalizeID folds "123", "123.0" and " 123 " onto one key
func normalizeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if d, err := decimal.NewFromString(raw); err == nil && d.Equal(d.Truncate(0)) {
		return d.Truncate(0).String()
	}
	return raw
}

// parseAmenityList reads the exported amenity list, a JSON array of strings.
// Malformed lists fall back to a bracket-strip and comma split.
func parseAmenityList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err == nil {
		return names
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	for _, part := range strings.Split(raw, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

func sortedValues(m map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range m {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func distinctValues[T any](rows []T, col string, rec func(T) models.RawRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		v := strings.TrimSpace(rec(row)[col])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// cellParser converts raw cells to typed values and counts the failures
type cellParser struct {
	errors  map[string]int
	samples map[string]*DataFormatError
}

func newCellParser() *cellParser {
	return &cellParser{errors: make(map[string]int), samples: make(map[string]*DataFormatError)}
}

func (p *cellParser) fail(col, value, reason string) {
	p.errors[col]++
	if _, ok := p.samples[col]; !ok {
		p.samples[col] = &DataFormatError{Column: col, Value: value, Reason: reason}
	}
}

func (p *cellParser) text(rec models.RawRecord, col string) *string {
	v, ok := rec[col]
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func (p *cellParser) integer(rec models.RawRecord, col string) *int64 {
	v, ok := rec[col]
	if !ok {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		p.fail(col, v, "not a number")
		return nil
	}
	n := d.IntPart()
	return &n
}

// flag reads a coerced 1/0 column
func (p *cellParser) flag(rec models.RawRecord, col string) *int64 {
	v, ok := rec[col]
	if !ok {
		return nil
	}
	var n int64
	switch strings.TrimSpace(v) {
	case "1":
		n = 1
	case "0":
		n = 0
	default:
		p.fail(col, v, "unexpected boolean encoding")
		return nil
	}
	return &n
}

// price strips the currency symbol and thousands separators, then truncates
func (p *cellParser) price(rec models.RawRecord, col string) *int64 {
	v, ok := rec[col]
	if !ok {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(v))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		p.fail(col, v, "residual is not numeric")
		return nil
	}
	n := d.IntPart()
	return &n
}

func (p *cellParser) fraction(rec models.RawRecord, col string) *float64 {
	v, ok := rec[col]
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.fail(col, v, "not a number")
		return nil
	}
	return &f
}

func (p *cellParser) rounded(rec models.RawRecord, col string, places int32) *float64 {
	v, ok := rec[col]
	if !ok {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		p.fail(col, v, "not a number")
		return nil
	}
	f, _ := d.Round(places).Float64()
	return &f
}

func (p *cellParser) date(rec models.RawRecord, col string) *time.Time {
	v, ok := rec[col]
	if !ok {
		return nil
	}
	t, err := utils.ParseFlexibleDate(v)
	if err != nil {
		p.fail(col, v, "not a date")
		return nil
	}
	return &t
}
