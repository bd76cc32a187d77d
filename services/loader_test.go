package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-insights/config"
	"rental-insights/models"
	"rental-insights/storage"
	"rental-insights/utils"
)

func openTestStore(t *testing.T, cfg *config.Config) *storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.OpenBuild(ctx, cfg.DatabaseURL, "test", utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(s.Abandon)
	require.NoError(t, s.Reset(ctx))
	return s
}

func sampleDataset() *models.CleanDataset {
	return &models.CleanDataset{
		Listings: []*models.Listing{
			{
				ListingID: 1, HostID: 1, City: "Seattle", Neighborhood: strp("Ballard"),
				PropertyType: strp("House"), RoomType: strp("Entire home/apt"), Price: i64(150),
				NumberOfReviews: i64(12), FirstReview: day("2022-02-01"), LastReview: day("2023-02-10"),
				ReviewScoresRating: f64(4.9),
				Amenities:          []string{"Wifi", "Kitchen", "Hair dryers", "Heated floors"},
			},
			{
				ListingID: 2, HostID: 1, City: "Seattle", Neighborhood: strp("Fremont"),
				RoomType: strp("Private room"), Price: i64(90),
				FirstReview: day("2023-01-15"), LastReview: day("2023-03-01"),
				Amenities: []string{"Kitchen", "Kitchen"},
			},
			{
				ListingID: 3, HostID: 2, City: "Oakland",
				FirstReview: day("2021-11-01"), LastReview: day("2022-03-01"),
			},
		},
		Hosts: []*models.Host{
			{HostID: 1, HostSince: day("2020-01-01"), HostResponseTime: strp("within an hour"), HostIsSuperhost: i64(1)},
			{HostID: 2, HostIsSuperhost: i64(0)},
		},
		Lookups: map[string][]string{
			"property_type":      {"House"},
			"room_type":          {"Entire home/apt", "Private room"},
			"host_response_time": {"within an hour"},
		},
	}
}

func windowOf(ds *models.CleanDataset) models.CohortWindow {
	firstReviews := make([]*time.Time, len(ds.Listings))
	for i, l := range ds.Listings {
		firstReviews[i] = l.FirstReview
	}
	w, _ := CohortWindowFor(firstReviews, 4)
	return w
}

func TestLoadPopulatesSchema(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle", "Oakland")
	store := openTestStore(t, cfg)
	ds := sampleDataset()

	window := windowOf(ds)
	assert.Equal(t, models.Quarter{Year: 2023, Quarter: 1}, window.Current)
	assert.Equal(t, models.Quarter{Year: 2022, Quarter: 1}, window.Baseline)

	res, err := NewLoader(store, cfg, utils.NewNopLogger()).Load(ctx, ds, window)
	require.NoError(t, err)
	require.Len(t, res.Report.Phases, 7)
	for _, p := range res.Report.Phases {
		assert.Equal(t, models.PhaseOK, p.Status, p.Phase)
	}

	counts := map[string]int{
		"Cities":                 2,
		"Neighborhoods":          2,
		"RoomTypes":              2,
		"PropertyTypes":          1,
		"HostResponseTimes":      1,
		"Hosts":                  2,
		"ListingsCore":           3,
		"ListingsLocation":       3,
		"ListingsReviewsSummary": 3,
		"ListingsAvailability":   3,
		"ListingsAmenities":      4,
	}
	for table, want := range counts {
		n, err := store.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}

	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "Heated floors", res.Unresolved[0].Name)

	facts, err := store.LoadListingFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 3)

	assert.Equal(t, "Seattle", facts[0].City)
	assert.Equal(t, "Ballard", *facts[0].Neighborhood)
	assert.Equal(t, "Entire home/apt", *facts[0].RoomType)
	assert.Equal(t, int64(1), *facts[0].HostID)
	assert.True(t, facts[0].HostIsSuperhost)
	assert.Equal(t, "2020-01-01", facts[0].HostSince.Format(models.DateLayout))
	assert.True(t, facts[0].ActiveCurrent)
	assert.True(t, facts[1].ActiveCurrent)

	assert.Equal(t, "Oakland", facts[2].City)
	assert.Nil(t, facts[2].NeighborhoodID)
	assert.False(t, facts[2].ActiveCurrent)
	assert.True(t, facts[2].ActiveBaseline)
}

func TestLoadIsRepeatableOnRebuiltSchema(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle", "Oakland")
	store := openTestStore(t, cfg)
	loader := NewLoader(store, cfg, utils.NewNopLogger())

	_, err := loader.Load(ctx, sampleDataset(), windowOf(sampleDataset()))
	require.NoError(t, err)
	first, err := store.LoadListingFacts(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))
	_, err = loader.Load(ctx, sampleDataset(), windowOf(sampleDataset()))
	require.NoError(t, err)
	second, err := store.LoadListingFacts(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLoadStoresUnknownReferencesAsNull(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle", "Oakland")
	store := openTestStore(t, cfg)

	ds := sampleDataset()
	ds.Listings[1].RoomType = strp("Hotel room")
	ds.Listings[2].HostID = 42

	res, err := NewLoader(store, cfg, utils.NewNopLogger()).Load(ctx, ds, windowOf(ds))
	require.NoError(t, err)

	p, ok := res.Report.Phase(PhaseListings)
	require.True(t, ok)
	assert.Equal(t, models.PhaseOK, p.Status)
	assert.Equal(t, 3, p.Rows)
	assert.Equal(t, 2, p.Skipped)

	facts, err := store.LoadListingFacts(ctx)
	require.NoError(t, err)
	assert.Nil(t, facts[1].RoomType)
	assert.Nil(t, facts[2].HostID)
}

func TestLoadSkipsPhaseOnIntegrityViolation(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle", "Oakland")
	cfg.AmenityVocabulary = []config.AmenityCategory{
		{Name: "Essentials", Amenities: []string{"Wifi"}},
		{Name: "Connectivity", Amenities: []string{"Wifi"}},
	}
	store := openTestStore(t, cfg)

	res, err := NewLoader(store, cfg, utils.NewNopLogger()).Load(ctx, sampleDataset(), windowOf(sampleDataset()))
	require.NoError(t, err, "integrity violations do not abort the run")

	vocab, ok := res.Report.Phase(PhaseAmenityVocabulary)
	require.True(t, ok)
	assert.Equal(t, models.PhaseSkipped, vocab.Status)
	assert.Contains(t, vocab.Reason, "Amenities")
	assert.False(t, res.Report.Failed())

	n, err := store.CountRows(ctx, "AmenityCategories")
	require.NoError(t, err)
	assert.Zero(t, n, "the skipped phase is rolled back")

	links, ok := res.Report.Phase(PhaseListingAmenities)
	require.True(t, ok)
	assert.Equal(t, models.PhaseOK, links.Status)
	assert.Zero(t, links.Rows)

	n, err = store.CountRows(ctx, "ListingsCore")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "later phases still run")
}

func TestActivityFlagsFor(t *testing.T) {
	window := models.NewCohortWindow(models.Quarter{Year: 2023, Quarter: 1}, 4)

	assert.Equal(t, models.ActivityFlags{MostRecentQuarter: true}, ActivityFlagsFor(day("2023-03-31"), window))
	assert.Equal(t, models.ActivityFlags{FourQuartersPrior: true}, ActivityFlagsFor(day("2022-01-01"), window))
	assert.Equal(t, models.ActivityFlags{}, ActivityFlagsFor(day("2022-06-30"), window))
	assert.Equal(t, models.ActivityFlags{}, ActivityFlagsFor(nil, window))
	assert.Equal(t, models.ActivityFlags{}, ActivityFlagsFor(day("2023-02-01"), models.CohortWindow{}))
}

func TestLoadLinksPaddedLookupValues(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle")
	store := openTestStore(t, cfg)

	raw := &models.RawTable{
		Columns: exportColumns,
		Records: []models.RawRecord{
			{
				"id": "7", "host_id": "70", "host_response_time": " within a day ", "price": "$120.00",
				"first_review": "2022-08-01", "last_review": "2023-01-10", "minimum_nights": "2",
				"property_type": "Entire home ", "room_type": "\tPrivate room", CityColumn: "Seattle",
			},
			{
				"id": "8", "host_id": "80", "host_response_time": "within a day", "price": "$80.00",
				"first_review": "2022-09-01", "last_review": "2023-02-10", "minimum_nights": "2",
				"property_type": "Entire home", "room_type": "  ", CityColumn: "Seattle",
			},
		},
	}
	ds, err := NewDataCleaner(cfg, utils.NewNopLogger()).Clean(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Entire home"}, ds.Lookups["property_type"])
	assert.Equal(t, []string{"Private room"}, ds.Lookups["room_type"])
	assert.Equal(t, []string{"within a day"}, ds.Lookups["host_response_time"])

	res, err := NewLoader(store, cfg, utils.NewNopLogger()).Load(ctx, ds, windowOf(ds))
	require.NoError(t, err)

	for _, phase := range []string{PhaseHosts, PhaseListings} {
		p, ok := res.Report.Phase(phase)
		require.True(t, ok, phase)
		assert.Equal(t, models.PhaseOK, p.Status, phase)
		assert.Zero(t, p.Skipped, "%s: every lookup reference resolves", phase)
	}
	for table, want := range map[string]int{"PropertyTypes": 1, "RoomTypes": 1, "HostResponseTimes": 1} {
		n, err := store.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}

	facts, err := store.LoadListingFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	require.NotNil(t, facts[0].RoomType)
	assert.Equal(t, "Private room", *facts[0].RoomType)
	assert.Nil(t, facts[1].RoomType)
}
