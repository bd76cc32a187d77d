package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"rental-insights/config"
	"rental-insights/models"
	"rental-insights/storage"
	"rental-insights/utils"
)

// ImpactEngine derives the median price difference of every amenity in every
// scope: overall, each city and each neighborhood. The table is replaced on
// every run and written in fixed-size batches.
type ImpactEngine struct {
	source storage.FactSource
	sink   storage.ImpactSink
	cfg    *config.Config
	logger *utils.Logger
}

// NewImpactEngine creates a new ImpactEngine
func NewImpactEngine(source storage.FactSource, sink storage.ImpactSink, cfg *config.Config, logger *utils.Logger) *ImpactEngine {
	return &ImpactEngine{source: source, sink: sink, cfg: cfg, logger: logger}
}

// impactScope selects the listings of one geographic scope
type impactScope struct {
	cityID         *int64
	neighborhoodID *int64
	match          func(f *models.ListingFact) bool
}

// Run clears the impact table, recomputes every (amenity, scope) pair and
// returns the number of rows written.
func (e *ImpactEngine) Run(ctx context.Context) (int, error) {
	start := time.Now()

	facts, err := e.source.LoadListingFacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load listing facts: %w", err)
	}
	withAmenity, err := e.source.LoadAmenityListings(ctx)
	if err != nil {
		return 0, err
	}
	amenities, err := e.source.ListRefs(ctx, storage.Amenities)
	if err != nil {
		return 0, err
	}
	cities, err := e.source.ListRefs(ctx, storage.Cities)
	if err != nil {
		return 0, err
	}
	neighborhoods, err := e.source.ListRefs(ctx, storage.Neighborhoods)
	if err != nil {
		return 0, err
	}

	if err := e.sink.ClearImpacts(ctx); err != nil {
		return 0, err
	}

	batchSize := e.cfg.ImpactBatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	buf := make([]models.AmenityPriceImpact, 0, batchSize)
	written := 0
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := e.sink.WriteImpacts(ctx, buf); err != nil {
			return err
		}
		written += len(buf)
		buf = buf[:0]
		return nil
	}

	for _, scope := range buildScopes(cities, neighborhoods) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		inScope := make([]*models.ListingFact, 0)
		for i := range facts {
			if scope.match(&facts[i]) {
				inScope = append(inScope, &facts[i])
			}
		}
		if len(inScope) == 0 {
			continue
		}
		for _, a := range amenities {
			impact, ok := AmenityImpact(inScope, withAmenity[a.ID])
			if !ok {
				continue
			}
			impact.AmenityID = a.ID
			impact.CityID = scope.cityID
			impact.NeighborhoodID = scope.neighborhoodID
			buf = append(buf, impact)
			if len(buf) >= batchSize {
				if err := flush(); err != nil {
					return written, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}

	e.logger.Info("Generated %d amenity price impacts for %d amenities in %v",
		written, len(amenities), time.Since(start).Round(time.Millisecond))
	return written, nil
}

func buildScopes(cities, neighborhoods []models.NamedRef) []impactScope {
	scopes := []impactScope{{match: func(*models.ListingFact) bool { return true }}}
	for _, c := range cities {
		id := c.ID
		scopes = append(scopes, impactScope{
			cityID: &id,
			match:  func(f *models.ListingFact) bool { return f.CityID == id },
		})
	}
	for _, n := range neighborhoods {
		id := n.ID
		scopes = append(scopes, impactScope{
			neighborhoodID: &id,
			match:          func(f *models.ListingFact) bool { return f.NeighborhoodID != nil && *f.NeighborhoodID == id },
		})
	}
	return scopes
}

// AmenityImpact partitions priced listings by whether they carry the amenity
// and compares the partition medians. It reports false when either partition is empty.
func AmenityImpact(listings []*models.ListingFact, carriers map[int64]struct{}) (models.AmenityPriceImpact, bool) {
	var with, without []float64
	for _, f := range listings {
		if f.Price == nil {
			continue
		}
		if _, ok := carriers[f.ListingID]; ok {
			with = append(with, float64(*f.Price))
		} else {
			without = append(without, float64(*f.Price))
		}
	}

	mWith, err := Median(with)
	if err != nil {
		return models.AmenityPriceImpact{}, false
	}
	mWithout, err := Median(without)
	if err != nil {
		return models.AmenityPriceImpact{}, false
	}
	diff := mWith - mWithout
	if math.IsNaN(diff) {
		return models.AmenityPriceImpact{}, false
	}
	return models.AmenityPriceImpact{
		MedianPriceDifference: int64(math.RoundToEven(diff)),
		AmenityCount:          len(with),
	}, true
}
