package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-insights/models"
	"rental-insights/storage"
	"rental-insights/utils"
)

// recordingSink keeps every written batch in memory
type recordingSink struct {
	cleared int
	batches [][]models.AmenityPriceImpact
}

func (s *recordingSink) ClearImpacts(context.Context) error {
	s.cleared++
	s.batches = nil
	return nil
}

func (s *recordingSink) WriteImpacts(_ context.Context, rows []models.AmenityPriceImpact) error {
	s.batches = append(s.batches, append([]models.AmenityPriceImpact(nil), rows...))
	return nil
}

func (s *recordingSink) rows() []models.AmenityPriceImpact {
	var out []models.AmenityPriceImpact
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func pricedFacts(prices ...int64) []*models.ListingFact {
	out := make([]*models.ListingFact, len(prices))
	for i, p := range prices {
		out[i] = &models.ListingFact{ListingID: int64(i + 1), Price: i64(p)}
	}
	return out
}

func set(ids ...int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func TestAmenityImpact(t *testing.T) {
	listings := pricedFacts(100, 120, 140, 80, 90, 100)

	impact, ok := AmenityImpact(listings, set(1, 2, 3))
	require.True(t, ok)
	assert.Equal(t, int64(30), impact.MedianPriceDifference)
	assert.Equal(t, 3, impact.AmenityCount)

	_, ok = AmenityImpact(listings, set(1, 2, 3, 4, 5, 6))
	assert.False(t, ok, "no listing without the amenity")
	_, ok = AmenityImpact(listings, nil)
	assert.False(t, ok, "no listing with the amenity")
}

func TestAmenityImpactIgnoresUnpricedListings(t *testing.T) {
	listings := pricedFacts(101, 100)
	listings = append(listings, &models.ListingFact{ListingID: 3})

	impact, ok := AmenityImpact(listings, set(1, 3))
	require.True(t, ok)
	assert.Equal(t, int64(1), impact.MedianPriceDifference)
	assert.Equal(t, 1, impact.AmenityCount)
}

func TestAmenityImpactRoundsHalfToEven(t *testing.T) {
	// with: median(100, 101) = 100.5, without: 100 -> 0.5 rounds to 0
	listings := pricedFacts(100, 101, 100)
	impact, ok := AmenityImpact(listings, set(1, 2))
	require.True(t, ok)
	assert.Equal(t, int64(0), impact.MedianPriceDifference)
}

func TestImpactEngineRun(t *testing.T) {
	source := &fakeSource{
		facts: []models.ListingFact{
			{ListingID: 1, CityID: 1, City: "Seattle", NeighborhoodID: i64(10), Price: i64(200)},
			{ListingID: 2, CityID: 1, City: "Seattle", NeighborhoodID: i64(10), Price: i64(100)},
			{ListingID: 3, CityID: 2, City: "Oakland", NeighborhoodID: i64(20), Price: i64(150)},
			{ListingID: 4, CityID: 2, City: "Oakland", Price: i64(50)},
		},
		carriers: map[int64]map[int64]struct{}{
			100: set(1, 3),
			200: set(1, 2, 3, 4),
		},
		refs: map[string][]models.NamedRef{
			storage.Amenities.Table:     {{ID: 100, Name: "Pool"}, {ID: 200, Name: "Wifi"}},
			storage.Cities.Table:        {{ID: 1, Name: "Seattle"}, {ID: 2, Name: "Oakland"}},
			storage.Neighborhoods.Table: {{ID: 10, Name: "Ballard", ParentID: i64(1)}, {ID: 20, Name: "Downtown", ParentID: i64(2)}},
		},
	}
	sink := &recordingSink{}
	cfg := testConfig(t)
	cfg.ImpactBatchSize = 2

	written, err := NewImpactEngine(source, sink, cfg, utils.NewNopLogger()).Run(context.Background())
	require.NoError(t, err)

	// Wifi is on every listing, so only Pool has both partitions: overall,
	// in each city and in Ballard. Downtown holds a single listing.
	rows := sink.rows()
	assert.Equal(t, 4, written)
	require.Len(t, rows, 4)
	assert.Equal(t, 1, sink.cleared)
	require.Len(t, sink.batches, 2)
	assert.Len(t, sink.batches[0], 2)
	assert.Len(t, sink.batches[1], 2)

	overall := rows[0]
	assert.Equal(t, int64(100), overall.AmenityID)
	assert.Nil(t, overall.CityID)
	assert.Nil(t, overall.NeighborhoodID)
	assert.Equal(t, int64(175-75), overall.MedianPriceDifference)
	assert.Equal(t, 2, overall.AmenityCount)

	assert.Equal(t, int64(1), *rows[1].CityID)
	assert.Equal(t, int64(100), rows[1].MedianPriceDifference)
	assert.Equal(t, int64(2), *rows[2].CityID)
	assert.Equal(t, int64(100), rows[2].MedianPriceDifference)

	assert.Nil(t, rows[3].CityID)
	assert.Equal(t, int64(10), *rows[3].NeighborhoodID)
	assert.Equal(t, 1, rows[3].AmenityCount)
}
