package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rental-insights/config"
	"rental-insights/models"
	"rental-insights/storage"
	"rental-insights/utils"
)

// topImpacts is the number of overall impacts shown in the run report
const topImpacts = 10

// Pipeline wires the reader, cleaner, loader and engines into one run
type Pipeline struct {
	cfg    *config.Config
	logger *utils.Logger
}

// NewPipeline creates a new Pipeline
func NewPipeline(cfg *config.Config, logger *utils.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger}
}

// Build runs the full rebuild: read, clean, load into a fresh database,
// derive impacts and metrics, then publish. Nothing is published unless
// every step succeeds.
func (p *Pipeline) Build(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := p.logger.With("run_id", report.RunID)

	// ================== Read & Clean ====================
	raw, err := NewRawReader(p.cfg, log).Read()
	if err != nil {
		return report, err
	}
	report.RawRecords = len(raw.Records)

	ds, err := NewDataCleaner(p.cfg, log).Clean(raw)
	if err != nil {
		return report, err
	}
	report.CleanListings, report.CleanHosts = len(ds.Listings), len(ds.Hosts)

	if p.cfg.CleanCSVPath != "" {
		if err := storage.NewCSVWriter(p.cfg.CleanCSVPath, log).WriteClean(ds); err != nil {
			// Non-fatal: the snapshot is an audit copy
			log.Error("Failed to write clean snapshot: %v", err)
		}
	}

	firstReviews := make([]*time.Time, len(ds.Listings))
	for i, l := range ds.Listings {
		firstReviews[i] = l.FirstReview
	}
	window, ok := CohortWindowFor(firstReviews, p.cfg.BaselineQuarterOffset)
	if !ok {
		log.Warn("No listing has a first review; activity flags will all be false")
	}
	report.Window = window

	// =================== Load ========================================
	store, err := storage.OpenBuild(ctx, p.cfg.DatabaseURL, report.RunID, log)
	if err != nil {
		return report, err
	}
	published := false
	defer func() {
		if !published {
			store.Abandon()
		}
	}()

	if err := store.Reset(ctx); err != nil {
		return report, err
	}

	res, err := NewLoader(store, p.cfg, log).Load(ctx, ds, window)
	if res != nil {
		report.Load = res.Report
		report.UnresolvedNames = len(res.Unresolved)
	}
	if err != nil {
		return report, err
	}
	if err := checkPublishable(&report.Load); err != nil {
		return report, err
	}

	// ============== Derived tables & artifacts ===================
	if _, err := NewImpactEngine(store, store, p.cfg, log).Run(ctx); err != nil {
		return report, fmt.Errorf("amenity impacts failed: %w", err)
	}
	if report.Impacts, err = store.TopImpacts(ctx, topImpacts); err != nil {
		return report, err
	}

	metrics, charts, err := p.derive(ctx, store, log)
	if err != nil {
		return report, err
	}
	report.Metrics = metrics

	// ========= Publish ===========================
	if err := store.Promote(); err != nil {
		return report, err
	}
	published = true

	if err := p.publish(metrics, charts, log); err != nil {
		return report, err
	}
	report.FinishedAt = time.Now()
	return report, nil
}

// Metrics recomputes the JSON artifacts from the published database
func (p *Pipeline) Metrics(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := p.logger.With("run_id", report.RunID)

	store, err := storage.Open(ctx, p.cfg.DatabaseURL, log)
	if err != nil {
		return report, err
	}
	defer store.Close()

	metrics, charts, err := p.derive(ctx, store, log)
	if err != nil {
		return report, err
	}
	report.Metrics = metrics
	if err := p.publish(metrics, charts, log); err != nil {
		return report, err
	}
	report.FinishedAt = time.Now()
	return report, nil
}

// Impacts regenerates the amenity impact table of the published database in place
func (p *Pipeline) Impacts(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := p.logger.With("run_id", report.RunID)

	store, err := storage.Open(ctx, p.cfg.DatabaseURL, log)
	if err != nil {
		return report, err
	}
	defer store.Close()

	if _, err := NewImpactEngine(store, store, p.cfg, log).Run(ctx); err != nil {
		return report, fmt.Errorf("amenity impacts failed: %w", err)
	}
	if report.Impacts, err = store.TopImpacts(ctx, topImpacts); err != nil {
		return report, err
	}
	report.FinishedAt = time.Now()
	return report, nil
}

// checkPublishable refuses a load whose listings never reached the database.
// Other skipped phases only degrade the derived data.
func checkPublishable(load *models.LoadReport) error {
	if lp, ok := load.Phase(PhaseListings); ok && lp.Status == models.PhaseSkipped {
		return fmt.Errorf("%w: %s", ErrListingsRolledBack, lp.Reason)
	}
	return nil
}

func (p *Pipeline) derive(ctx context.Context, source storage.FactSource, log *utils.Logger) (models.MetricsArtifact, models.ChartArtifact, error) {
	facts, err := source.LoadListingFacts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load listing facts: %w", err)
	}
	engine := NewMetricsEngine(source, p.cfg, log)
	window := engine.Window(facts)
	return engine.Compute(facts, window), BuildCharts(facts, p.cfg.Cities, window), nil
}

func (p *Pipeline) publish(metrics models.MetricsArtifact, charts models.ChartArtifact, log *utils.Logger) error {
	if err := SaveMetricsJSON(metrics, p.cfg.MetricsPath); err != nil {
		return err
	}
	log.Info("Metrics written to: %s (%d scopes)", p.cfg.MetricsPath, len(metrics))

	if err := SaveChartsJSON(charts, p.cfg.ChartsPath); err != nil {
		return err
	}
	log.Info("Chart data written to: %s (%d series)", p.cfg.ChartsPath, len(charts))
	return nil
}
