package services

import (
	"context"
	"fmt"
	"time"

	"rental-insights/config"
	"rental-insights/models"
	"rental-insights/storage"
	"rental-insights/utils"
)

// MetricsEngine computes the quarter-over-quarter dashboard metrics.
// A listing is active in a quarter when its last review falls inside it;
// the same predicate feeds the persisted activity flags.
type MetricsEngine struct {
	source storage.FactSource
	cfg    *config.Config
	logger *utils.Logger
}

// NewMetricsEngine creates a new MetricsEngine
func NewMetricsEngine(source storage.FactSource, cfg *config.Config, logger *utils.Logger) *MetricsEngine {
	return &MetricsEngine{source: source, cfg: cfg, logger: logger}
}

// CohortWindowFor derives the current quarter (latest first-review quarter)
// and its baseline offset quarters earlier.
func CohortWindowFor(firstReviews []*time.Time, offset int) (models.CohortWindow, bool) {
	current, ok := models.ReferenceQuarter(firstReviews)
	if !ok {
		return models.CohortWindow{}, false
	}
	return models.NewCohortWindow(current, offset), true
}

// ComputeAll loads the listing facts and computes every scope
func (e *MetricsEngine) ComputeAll(ctx context.Context) (models.MetricsArtifact, models.CohortWindow, error) {
	facts, err := e.source.LoadListingFacts(ctx)
	if err != nil {
		return nil, models.CohortWindow{}, fmt.Errorf("failed to load listing facts: %w", err)
	}
	window := e.Window(facts)
	return e.Compute(facts, window), window, nil
}

// Window derives the cohort window from the loaded first reviews
func (e *MetricsEngine) Window(facts []models.ListingFact) models.CohortWindow {
	firstReviews := make([]*time.Time, len(facts))
	for i := range facts {
		firstReviews[i] = facts[i].FirstReview
	}
	window, ok := CohortWindowFor(firstReviews, e.cfg.BaselineQuarterOffset)
	if !ok {
		e.logger.Warn("No first reviews loaded; every cohort is empty")
	} else {
		e.logger.Info("Current quarter %s, baseline %s", window.Current, window.Baseline)
	}
	return window
}

// Compute builds the "All Cities" record and one record per configured city
func (e *MetricsEngine) Compute(facts []models.ListingFact, window models.CohortWindow) models.MetricsArtifact {
	artifact := make(models.MetricsArtifact, len(e.cfg.Cities)+1)
	artifact[models.AllCities] = ComputeMetrics(facts, models.AllCities, window)
	for _, city := range e.cfg.Cities {
		artifact[city] = ComputeMetrics(facts, city, window)
	}
	return artifact
}

// ComputeMetrics computes one scope's record. scope is a city name or AllCities.
// A zero window (no data) yields zero counts and null aggregates.
func ComputeMetrics(facts []models.ListingFact, scope string, window models.CohortWindow) *models.MetricsRecord {
	inScope := make([]*models.ListingFact, 0, len(facts))
	for i := range facts {
		if scope == models.AllCities || facts[i].City == scope {
			inScope = append(inScope, &facts[i])
		}
	}

	rec := &models.MetricsRecord{}
	if window.Current.IsZero() {
		return rec
	}

	cur := cohortAggregates(inScope, window.Current)
	base := cohortAggregates(inScope, window.Baseline)

	rec.ActiveListings = cur.active
	rec.ListingsGained = cur.gained
	rec.ListingsLost = listingsLost(inScope, window)
	rec.ActiveListingsDelta = rec.ListingsGained - rec.ListingsLost
	rec.ActiveHosts = cur.newHosts
	rec.ActiveHostsDelta = cur.newHosts - base.newHosts

	rec.MedianPrice, rec.MedianPriceDelta = cur.medianPrice, delta(cur.medianPrice, base.medianPrice)
	rec.MedianReviewScore, rec.MedianReviewScoreDelta = cur.medianScore, delta(cur.medianScore, base.medianScore)
	rec.MeanPrice, rec.MeanPriceDelta = cur.meanPrice, delta(cur.meanPrice, base.meanPrice)
	rec.NinetiethPercentilePrice, rec.NinetiethPercentilePriceDelta = cur.p90Price, delta(cur.p90Price, base.p90Price)
	rec.MedianSuperhostPrice, rec.MedianSuperhostPriceDelta = cur.medianSuperhostPrice, delta(cur.medianSuperhostPrice, base.medianSuperhostPrice)
	rec.MeanNewListingPrice, rec.MeanNewListingPriceDelta = cur.meanNewPrice, delta(cur.meanNewPrice, base.meanNewPrice)
	rec.MeanReviewsScore, rec.MeanReviewsScoreDelta = cur.meanScore, delta(cur.meanScore, base.meanScore)
	rec.MedianReviewCount, rec.MedianReviewCountDelta = cur.medianReviewCount, delta(cur.medianReviewCount, base.medianReviewCount)
	rec.MeanSuperhostReviewsScore, rec.MeanSuperhostReviewsScoreDelta = cur.meanSuperhostScore, delta(cur.meanSuperhostScore, base.meanSuperhostScore)
	rec.SuperhostPercent = cur.superhostPercent
	rec.SuperhostPercentDelta = cur.superhostPercent - base.superhostPercent
	return rec
}

type aggregates struct {
	active   int
	gained   int
	newHosts int

	medianPrice          *float64
	meanPrice            *float64
	p90Price             *float64
	medianScore          *float64
	meanScore            *float64
	medianSuperhostPrice *float64
	meanSuperhostScore   *float64
	meanNewPrice         *float64
	medianReviewCount    *float64
	superhostPercent     float64
}

// cohortAggregates computes every statistic of one quarter's cohort within a scope
func cohortAggregates(facts []*models.ListingFact, q models.Quarter) aggregates {
	var a aggregates
	var prices, scores, counts, newPrices []float64
	var superPrices, superScores []float64
	superActive := 0
	hosts := make(map[int64]bool)

	for _, f := range facts {
		if q.Contains(f.FirstReview) {
			a.gained++
			if f.Price != nil {
				newPrices = append(newPrices, float64(*f.Price))
			}
		}
		if f.HostID != nil && q.Contains(f.HostSince) {
			hosts[*f.HostID] = true
		}
		if !q.Contains(f.LastReview) {
			continue
		}

		a.active++
		if f.HostIsSuperhost {
			superActive++
		}
		if f.Price != nil {
			prices = append(prices, float64(*f.Price))
			if f.HostIsSuperhost {
				superPrices = append(superPrices, float64(*f.Price))
			}
		}
		if f.ReviewScoresRating != nil {
			scores = append(scores, *f.ReviewScoresRating)
			if f.HostIsSuperhost {
				superScores = append(superScores, *f.ReviewScoresRating)
			}
		}
		if f.NumberOfReviews != nil {
			counts = append(counts, float64(*f.NumberOfReviews))
		}
	}

	a.newHosts = len(hosts)
	a.medianPrice = optional(Median(prices))
	a.meanPrice = optional(Mean(prices))
	a.p90Price = optional(Percentile90(prices))
	a.medianScore = optional(Median(scores))
	a.meanScore = optional(Mean(scores))
	a.medianSuperhostPrice = optional(Median(superPrices))
	a.meanSuperhostScore = optional(Mean(superScores))
	a.meanNewPrice = optional(Mean(newPrices))
	a.medianReviewCount = optional(Median(counts))
	if a.active > 0 {
		a.superhostPercent = float64(superActive) / float64(a.active) * 100
	}
	return a
}

// listingsLost counts listings that churned out: last reviewed before the
// current quarter, not reviewed during it, and first reviewed on or before
// the end of the baseline quarter.
func listingsLost(facts []*models.ListingFact, window models.CohortWindow) int {
	currentStart := window.Current.Start()
	baselineEnd := window.Baseline.End()
	lost := 0
	for _, f := range facts {
		if f.LastReview == nil || f.FirstReview == nil {
			continue
		}
		if !f.LastReview.Before(currentStart) {
			continue
		}
		if window.Current.Contains(f.LastReview) {
			continue
		}
		if !f.FirstReview.Before(baselineEnd) {
			continue
		}
		lost++
	}
	return lost
}
