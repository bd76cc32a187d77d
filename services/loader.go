package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"rental-insights/config"
	"rental-insights/models"
	"rental-insights/storage"
	"rental-insights/utils"
)

// Load phases, in foreign-key dependency order
const (
	PhaseFlatLookups       = "flat_lookups"
	PhaseGeography         = "cities_neighborhoods"
	PhaseHostResponseTimes = "host_response_times"
	PhaseHosts             = "hosts"
	PhaseAmenityVocabulary = "amenity_vocabulary"
	PhaseListings          = "listings"
	PhaseListingAmenities  = "listing_amenities"
)

// LoadResult is what a loader run produced
type LoadResult struct {
	Report     models.LoadReport
	Unresolved []UnresolvedAmenityWarning
}

// Loader populates the normalized schema from a cleaned dataset.
// Every phase commits on its own; a phase that hits an integrity violation
// is rolled back and reported as skipped while the next phase still runs.
type Loader struct {
	store  *storage.Store
	cfg    *config.Config
	logger *utils.Logger
}

// NewLoader creates a new Loader
func NewLoader(store *storage.Store, cfg *config.Config, logger *utils.Logger) *Loader {
	return &Loader{store: store, cfg: cfg, logger: logger}
}

type phaseFunc func(ctx context.Context, b *storage.Batch) (rows, skipped int, err error)

// Load runs all phases against an empty schema. window drives the persisted
// activity flags. It returns an error only for failures other than integrity
// violations.
func (l *Loader) Load(ctx context.Context, ds *models.CleanDataset, window models.CohortWindow) (*LoadResult, error) {
	res := &LoadResult{}

	steps := []struct {
		name string
		run  func(context.Context) models.PhaseResult
	}{
		{PhaseFlatLookups, func(ctx context.Context) models.PhaseResult {
			return l.loadLookups(ctx, PhaseFlatLookups, ds, func(table string) bool { return table != storage.HostResponseTimes.Table })
		}},
		{PhaseGeography, func(ctx context.Context) models.PhaseResult { return l.loadGeography(ctx, ds) }},
		{PhaseHostResponseTimes, func(ctx context.Context) models.PhaseResult {
			return l.loadLookups(ctx, PhaseHostResponseTimes, ds, func(table string) bool { return table == storage.HostResponseTimes.Table })
		}},
		{PhaseHosts, func(ctx context.Context) models.PhaseResult { return l.loadHosts(ctx, ds) }},
		{PhaseAmenityVocabulary, l.loadVocabulary},
		{PhaseListings, func(ctx context.Context) models.PhaseResult { return l.loadListings(ctx, ds, window) }},
		{PhaseListingAmenities, func(ctx context.Context) models.PhaseResult {
			pr, unresolved := l.loadListingAmenities(ctx, ds)
			res.Unresolved = unresolved
			return pr
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		pr := step.run(ctx)
		res.Report.Add(pr)
		if pr.Status == models.PhaseFailed {
			return res, fmt.Errorf("load phase %s failed: %w", step.name, pr.Err)
		}
	}
	return res, nil
}

// runPhase executes fn inside one transaction and turns the outcome into a PhaseResult
func (l *Loader) runPhase(ctx context.Context, name string, fn phaseFunc) models.PhaseResult {
	log := l.logger.With("phase", name)
	start := time.Now()
	pr := models.PhaseResult{Phase: name}

	b, err := l.store.Begin(ctx)
	if err != nil {
		pr.Status, pr.Err, pr.Reason = models.PhaseFailed, err, err.Error()
		return pr
	}

	rows, skipped, err := fn(ctx, b)
	if err == nil {
		err = b.Commit()
	} else {
		b.Rollback()
	}
	pr.Rows, pr.Skipped, pr.Elapsed = rows, skipped, time.Since(start)

	var iv *storage.IntegrityViolation
	switch {
	case err == nil:
		pr.Status = models.PhaseOK
		log.Info("Loaded %d rows (%d skipped) in %v", rows, skipped, pr.Elapsed.Round(time.Millisecond))
	case errors.As(err, &iv) || storage.IsConstraintError(err):
		pr.Status, pr.Err, pr.Reason = models.PhaseSkipped, err, err.Error()
		pr.Rows = 0
		log.Warn("Phase rolled back after integrity violation: %v", err)
	default:
		pr.Status, pr.Err, pr.Reason = models.PhaseFailed, err, err.Error()
		pr.Rows = 0
		log.Error("Phase failed: %v", err)
	}
	return pr
}

func failedPhase(name string, err error) models.PhaseResult {
	return models.PhaseResult{Phase: name, Status: models.PhaseFailed, Err: err, Reason: err.Error()}
}

// loadLookups fills the flat lookup tables selected by include from their configured source columns
func (l *Loader) loadLookups(ctx context.Context, phase string, ds *models.CleanDataset, include func(table string) bool) models.PhaseResult {
	tables := make([]string, 0, len(l.cfg.LookupColumns))
	for table := range l.cfg.LookupColumns {
		if include(table) {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)

	return l.runPhase(ctx, phase, func(ctx context.Context, b *storage.Batch) (int, int, error) {
		rows := 0
		for _, table := range tables {
			lk, ok := storage.FlatLookups[table]
			if !ok {
				return rows, 0, &ConfigError{Field: "lookup_columns." + table, Reason: "not a flat lookup table"}
			}
			for _, v := range ds.Lookups[l.cfg.LookupColumns[table]] {
				if _, err := b.GetOrCreate(ctx, lk, v, 0); err != nil {
					return rows, 0, err
				}
				rows++
			}
		}
		return rows, 0, nil
	})
}

// loadGeography creates every city, then each (city, neighborhood) pair under its city
func (l *Loader) loadGeography(ctx context.Context, ds *models.CleanDataset) models.PhaseResult {
	return l.runPhase(ctx, PhaseGeography, func(ctx context.Context, b *storage.Batch) (int, int, error) {
		cities := make(map[string]int64)
		seen := make(map[storage.IndexKey]bool)
		rows := 0
		for _, ls := range ds.Listings {
			cityID, ok := cities[ls.City]
			if !ok {
				id, err := b.GetOrCreate(ctx, storage.Cities, ls.City, 0)
				if err != nil {
					return rows, 0, err
				}
				cityID, cities[ls.City] = id, id
				rows++
			}
			if ls.Neighborhood == nil {
				continue
			}
			key := storage.IndexKey{Parent: cityID, Name: *ls.Neighborhood}
			if seen[key] {
				continue
			}
			if _, err := b.GetOrCreate(ctx, storage.Neighborhoods, *ls.Neighborhood, cityID); err != nil {
				return rows, 0, err
			}
			seen[key] = true
			rows++
		}
		return rows, 0, nil
	})
}

func (l *Loader) loadHosts(ctx context.Context, ds *models.CleanDataset) models.PhaseResult {
	responseTimes, err := l.store.LoadIndex(ctx, storage.HostResponseTimes)
	if err != nil {
		return failedPhase(PhaseHosts, err)
	}

	return l.runPhase(ctx, PhaseHosts, func(ctx context.Context, b *storage.Batch) (int, int, error) {
		rows, skipped := 0, 0
		for _, h := range ds.Hosts {
			var rt *int64
			if h.HostResponseTime != nil {
				if id, ok := responseTimes.Get(*h.HostResponseTime); ok {
					rt = &id
				} else {
					skipped++
				}
			}
			if err := b.InsertHost(ctx, h, rt); err != nil {
				return rows, skipped, err
			}
			rows++
		}
		return rows, skipped, nil
	})
}

// loadVocabulary writes the predefined category -> amenity mapping
func (l *Loader) loadVocabulary(ctx context.Context) models.PhaseResult {
	return l.runPhase(ctx, PhaseAmenityVocabulary, func(ctx context.Context, b *storage.Batch) (int, int, error) {
		rows := 0
		for _, cat := range l.cfg.AmenityVocabulary {
			catID, err := b.GetOrCreate(ctx, storage.AmenityCategories, cat.Name, 0)
			if err != nil {
				return rows, 0, err
			}
			rows++
			for _, name := range cat.Amenities {
				if _, err := b.GetOrCreate(ctx, storage.Amenities, name, catID); err != nil {
					return rows, 0, err
				}
				rows++
			}
		}
		return rows, 0, nil
	})
}

// loadListings writes ListingsCore and its extensions. Foreign keys come from
// in-memory indexes built before the pass; a reference that did not survive
// an earlier phase is stored as NULL and counted as skipped.
func (l *Loader) loadListings(ctx context.Context, ds *models.CleanDataset, window models.CohortWindow) models.PhaseResult {
	propertyTypes, err := l.store.LoadIndex(ctx, storage.PropertyTypes)
	if err != nil {
		return failedPhase(PhaseListings, err)
	}
	roomTypes, err := l.store.LoadIndex(ctx, storage.RoomTypes)
	if err != nil {
		return failedPhase(PhaseListings, err)
	}
	cities, err := l.store.LoadIndex(ctx, storage.Cities)
	if err != nil {
		return failedPhase(PhaseListings, err)
	}
	neighborhoods, err := l.store.LoadIndex(ctx, storage.Neighborhoods)
	if err != nil {
		return failedPhase(PhaseListings, err)
	}
	hosts, err := l.store.IDSet(ctx, "Hosts", "host_id")
	if err != nil {
		return failedPhase(PhaseListings, err)
	}

	lookup := func(ix storage.LookupIndex, name *string, skipped *int) *int64 {
		if name == nil {
			return nil
		}
		id, ok := ix.Get(*name)
		if !ok {
			*skipped++
			return nil
		}
		return &id
	}

	return l.runPhase(ctx, PhaseListings, func(ctx context.Context, b *storage.Batch) (int, int, error) {
		rows, skipped := 0, 0
		for _, ls := range ds.Listings {
			cityID, ok := cities.Get(ls.City)
			if !ok {
				skipped++
				continue
			}
			refs := storage.ListingRefs{
				PropertyTypeID: lookup(propertyTypes, ls.PropertyType, &skipped),
				RoomTypeID:     lookup(roomTypes, ls.RoomType, &skipped),
				CityID:         cityID,
			}
			if ls.HostID != 0 {
				if _, ok := hosts[ls.HostID]; ok {
					hostID := ls.HostID
					refs.HostID = &hostID
				} else {
					skipped++
				}
			}
			if ls.Neighborhood != nil {
				if id, ok := neighborhoods[storage.IndexKey{Parent: cityID, Name: *ls.Neighborhood}]; ok {
					refs.NeighborhoodID = &id
				} else {
					skipped++
				}
			}

			flags := ActivityFlagsFor(ls.LastReview, window)
			if err := b.InsertListingCore(ctx, ls, refs, flags); err != nil {
				return rows, skipped, err
			}
			if err := b.InsertLocation(ctx, ls.ListingID, refs); err != nil {
				return rows, skipped, err
			}
			if err := b.InsertReviewsSummary(ctx, ls); err != nil {
				return rows, skipped, err
			}
			if err := b.InsertAvailability(ctx, ls); err != nil {
				return rows, skipped, err
			}
			rows++
		}
		return rows, skipped, nil
	})
}

// loadListingAmenities resolves every listing's amenity list and fills the junction table
func (l *Loader) loadListingAmenities(ctx context.Context, ds *models.CleanDataset) (models.PhaseResult, []UnresolvedAmenityWarning) {
	amenities, err := l.store.ListRefs(ctx, storage.Amenities)
	if err != nil {
		return failedPhase(PhaseListingAmenities, err), nil
	}
	listings, err := l.store.IDSet(ctx, "ListingsCore", "listing_id")
	if err != nil {
		return failedPhase(PhaseListingAmenities, err), nil
	}

	resolver := NewAmenityResolver(amenities, l.cfg.FuzzyMatchThreshold)
	pr := l.runPhase(ctx, PhaseListingAmenities, func(ctx context.Context, b *storage.Batch) (int, int, error) {
		rows, skipped := 0, 0
		for _, ls := range ds.Listings {
			if _, ok := listings[ls.ListingID]; !ok {
				continue
			}
			for _, amenityID := range resolver.ResolveAll(ls.Amenities) {
				inserted, err := b.InsertListingAmenity(ctx, ls.ListingID, amenityID)
				if err != nil {
					return rows, skipped, err
				}
				if inserted {
					rows++
				} else {
					skipped++
				}
			}
		}
		return rows, skipped, nil
	})

	unresolved := resolver.Unresolved()
	if len(unresolved) > 0 {
		total := 0
		for _, w := range unresolved {
			total += w.Occurrences
		}
		l.logger.Warn("Dropped %d unresolved amenity names (%d occurrences)", len(unresolved), total)
		for i, w := range unresolved {
			if i == 5 {
				break
			}
			l.logger.Debug("  %s", w)
		}
	}
	return pr, unresolved
}

// ActivityFlagsFor evaluates the persisted cohort flags with the same
// predicate the metrics engine applies: last review inside the quarter.
func ActivityFlagsFor(lastReview *time.Time, window models.CohortWindow) models.ActivityFlags {
	if window.Current.IsZero() {
		return models.ActivityFlags{}
	}
	return models.ActivityFlags{
		MostRecentQuarter: window.Current.Contains(lastReview),
		FourQuartersPrior: window.Baseline.Contains(lastReview),
	}
}
