package storage

import (
	"context"

	"rental-insights/models"
)

// FactSource is the read side consumed by the metrics, impact and chart engines
type FactSource interface {
	LoadListingFacts(ctx context.Context) ([]models.ListingFact, error)
	LoadAmenityListings(ctx context.Context) (map[int64]map[int64]struct{}, error)
	ListRefs(ctx context.Context, lk Lookup) ([]models.NamedRef, error)
}

// ImpactSink stores the derived amenity impact table
type ImpactSink interface {
	ClearImpacts(ctx context.Context) error
	WriteImpacts(ctx context.Context, rows []models.AmenityPriceImpact) error
}

// SnapshotWriter stores the cleaned dataset outside the database
type SnapshotWriter interface {
	WriteClean(ds *models.CleanDataset) error
}

var (
	_ FactSource     = (*Store)(nil)
	_ ImpactSink     = (*Store)(nil)
	_ SnapshotWriter = (*CSVWriter)(nil)
)
