package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-insights/models"
	"rental-insights/utils"
)

const exportHeader = "id,host_id,host_is_superhost,host_since,host_response_time,host_response_rate,price," +
	"first_review,last_review,minimum_nights,neighbourhood_cleansed,property_type,room_type," +
	"review_scores_rating,number_of_reviews,amenities\n"

func writeMarketExports(t *testing.T, dataDir, sourceFile string) {
	t.Helper()
	writeExport(t, dataDir, "Seattle", sourceFile, exportHeader+
		`1,11,t,2020-01-01,within an hour,100%,$200.00,2022-02-01,2023-02-10,2,Ballard,House,Entire home/apt,4.9,10,"[""Wifi"", ""Pool""]"`+"\n"+
		`2,12,f,2021-06-01,within a day,90%,$100.00,2023-01-15,2023-03-01,1,Ballard,Apartment,Private room,4.5,3,"[""Wifi""]"`+"\n")
	writeExport(t, dataDir, "Oakland", sourceFile, exportHeader+
		`3,13,f,2022-02-01,,50%,$150.00,2021-11-01,2022-03-01,3,Downtown,House,Entire home/apt,4.0,20,"[""Pool"", ""Wifi""]"`+"\n"+
		`4,11,t,2020-01-01,within an hour,100%,$50.00,2022-05-01,2023-01-20,2,,House,Private room,,1,"[""Wifi""]"`+"\n")
}

func TestPipelineBuild(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle", "Oakland")
	writeMarketExports(t, cfg.DataDir, cfg.SourceFileName)

	report, err := NewPipeline(cfg, utils.NewNopLogger()).Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, report.RawRecords)
	assert.Equal(t, 4, report.CleanListings)
	assert.Equal(t, 3, report.CleanHosts)
	assert.Equal(t, models.Quarter{Year: 2023, Quarter: 1}, report.Window.Current)
	assert.False(t, report.Load.Failed())
	assert.False(t, report.FinishedAt.IsZero())

	require.Len(t, report.Impacts, 1)
	assert.Equal(t, models.ImpactSummary{Amenity: "Pool", MedianPriceDifference: 100, AmenityCount: 2}, report.Impacts[0])

	all := report.Metrics[models.AllCities]
	require.NotNil(t, all)
	assert.Equal(t, 3, all.ActiveListings)
	assert.Equal(t, 1, all.ListingsGained)
	assert.Equal(t, 1, report.Metrics["Oakland"].ActiveListings)

	for _, path := range []string{cfg.DatabaseURL, cfg.MetricsPath, cfg.ChartsPath, cfg.CleanCSVPath} {
		assert.FileExists(t, path)
	}
	leftovers, err := filepath.Glob(cfg.DatabaseURL + ".build-*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	data, err := os.ReadFile(cfg.MetricsPath)
	require.NoError(t, err)
	var published models.MetricsArtifact
	require.NoError(t, json.Unmarshal(data, &published))
	assert.Equal(t, report.Metrics[models.AllCities], published[models.AllCities])
}

func TestPipelineRecomputesFromPublishedDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle", "Oakland")
	writeMarketExports(t, cfg.DataDir, cfg.SourceFileName)
	p := NewPipeline(cfg, utils.NewNopLogger())

	built, err := p.Build(ctx)
	require.NoError(t, err)
	require.NoError(t, os.Remove(cfg.MetricsPath))

	recomputed, err := p.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, built.Metrics, recomputed.Metrics)
	assert.FileExists(t, cfg.MetricsPath)

	impacts, err := p.Impacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, built.Impacts, impacts.Impacts)
}

func TestPipelineBuildFailureKeepsPublishedState(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle", "Oakland")

	_, err := NewPipeline(cfg, utils.NewNopLogger()).Build(ctx)
	require.Error(t, err)
	assert.NoFileExists(t, cfg.DatabaseURL)
	assert.NoFileExists(t, cfg.MetricsPath)

	_, err = NewPipeline(cfg, utils.NewNopLogger()).Metrics(ctx)
	assert.Error(t, err, "nothing to recompute from")
}

func TestRolledBackListingsAreNotPublishable(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "Seattle", "Oakland")
	store := openTestStore(t, cfg)
	loader := NewLoader(store, cfg, utils.NewNopLogger())

	res, err := loader.Load(ctx, sampleDataset(), windowOf(sampleDataset()))
	require.NoError(t, err)
	assert.NoError(t, checkPublishable(&res.Report))

	require.NoError(t, store.Reset(ctx))
	ds := sampleDataset()
	ds.Listings[2].ListingID = ds.Listings[0].ListingID
	res, err = loader.Load(ctx, ds, windowOf(ds))
	require.NoError(t, err)

	listings, ok := res.Report.Phase(PhaseListings)
	require.True(t, ok)
	require.Equal(t, models.PhaseSkipped, listings.Status)
	assert.ErrorIs(t, checkPublishable(&res.Report), ErrListingsRolledBack)

	skippedVocabulary := &models.LoadReport{}
	skippedVocabulary.Add(models.PhaseResult{Phase: PhaseAmenityVocabulary, Status: models.PhaseSkipped})
	skippedVocabulary.Add(models.PhaseResult{Phase: PhaseListings, Status: models.PhaseOK})
	assert.NoError(t, checkPublishable(skippedVocabulary))
}
