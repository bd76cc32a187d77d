package models

import "time"

// AllCities is the scope key of the aggregate across every city
const AllCities = "All Cities"

// MetricsRecord holds the dashboard metrics of one scope.
// Nil values mean the underlying cohort was empty.
type MetricsRecord struct {
	ActiveListings      int `json:"active_listings"`
	ActiveListingsDelta int `json:"active_listings_delta"`
	ListingsGained      int `json:"listings_gained"`
	ListingsLost        int `json:"listings_lost"`
	ActiveHosts         int `json:"active_hosts"`
	ActiveHostsDelta    int `json:"active_hosts_delta"`

	MedianPrice                    *float64 `json:"median_price"`
	MedianPriceDelta               float64  `json:"median_price_delta"`
	MedianReviewScore              *float64 `json:"median_review_score"`
	MedianReviewScoreDelta         float64  `json:"median_review_score_delta"`
	MeanPrice                      *float64 `json:"mean_price"`
	MeanPriceDelta                 float64  `json:"mean_price_delta"`
	NinetiethPercentilePrice       *float64 `json:"ninetieth_percentile_price"`
	NinetiethPercentilePriceDelta  float64  `json:"ninetieth_percentile_price_delta"`
	MedianSuperhostPrice           *float64 `json:"median_superhost_price"`
	MedianSuperhostPriceDelta      float64  `json:"median_superhost_price_delta"`
	MeanNewListingPrice            *float64 `json:"mean_new_listing_price"`
	MeanNewListingPriceDelta       float64  `json:"mean_new_listing_price_delta"`
	MeanReviewsScore               *float64 `json:"mean_reviews_score"`
	MeanReviewsScoreDelta          float64  `json:"mean_reviews_score_delta"`
	MedianReviewCount              *float64 `json:"median_review_count"`
	MedianReviewCountDelta         float64  `json:"median_review_count_delta"`
	MeanSuperhostReviewsScore      *float64 `json:"mean_superhost_reviews_score"`
	MeanSuperhostReviewsScoreDelta float64  `json:"mean_superhost_reviews_score_delta"`
	SuperhostPercent               float64  `json:"superhost_percent"`
	SuperhostPercentDelta          float64  `json:"superhost_percent_delta"`
}

// MetricsArtifact is the persisted metrics JSON: scope name -> metrics
type MetricsArtifact map[string]*MetricsRecord

// AmenityPriceImpact is one row of the derived impact table.
// CityID and NeighborhoodID are both nil for the overall scope.
type AmenityPriceImpact struct {
	AmenityID             int64
	CityID                *int64
	NeighborhoodID        *int64
	MedianPriceDifference int64
	AmenityCount          int
}

// ChartPoint is a single category/value pair of a chart series
type ChartPoint struct {
	Label string `json:"label"`
	Group string `json:"group,omitempty"`
	Count int    `json:"count"`
}

// ChartArtifact is the persisted chart JSON: "<chart>_<scope>" -> series
type ChartArtifact map[string][]ChartPoint

// RunReport summarizes one pipeline run for the console report
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	RawRecords      int
	CleanListings   int
	CleanHosts      int
	UnresolvedNames int

	Load    LoadReport
	Window  CohortWindow
	Metrics MetricsArtifact
	Impacts []ImpactSummary
}

// ImpactSummary is an overall-scope impact joined with its amenity name
type ImpactSummary struct {
	Amenity               string
	MedianPriceDifference int64
	AmenityCount          int
}
