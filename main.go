package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rental-insights/config"
	"rental-insights/models"
	"rental-insights/scraper/insideairbnb"
	"rental-insights/services"
	"rental-insights/storage"
	"rental-insights/utils"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "rental-insights",
	Short:         "Short-term rental ETL, quarterly metrics and amenity price impacts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the newest listing export of every configured city",
	RunE: withRuntime(func(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
		paths, err := insideairbnb.NewFetcher(cfg, logger).Fetch(ctx)
		if err != nil {
			return err
		}
		fmt.Printf(" Done! %d exports saved under %s\n", len(paths), cfg.DataDir)
		return nil
	}),
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the database, amenity impacts, metrics and chart data from the exports on disk",
	RunE: withRuntime(func(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
		report, err := services.NewPipeline(cfg, logger).Build(ctx)
		printReport(report, cfg)
		if err != nil {
			return err
		}
		fmt.Println(" Done! Database →", storage.Redact(cfg.DatabaseURL))
		fmt.Println(" Metrics →", cfg.MetricsPath, "| Charts →", cfg.ChartsPath)
		return nil
	}),
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Recompute metrics and chart data from the published database",
	RunE: withRuntime(func(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
		report, err := services.NewPipeline(cfg, logger).Metrics(ctx)
		printReport(report, cfg)
		return err
	}),
}

var impactsCmd = &cobra.Command{
	Use:   "impacts",
	Short: "Regenerate the amenity price impact table of the published database",
	RunE: withRuntime(func(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
		report, err := services.NewPipeline(cfg, logger).Impacts(ctx)
		printReport(report, cfg)
		return err
	}),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the exports, then build",
	RunE: withRuntime(func(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
		if _, err := insideairbnb.NewFetcher(cfg, logger).Fetch(ctx); err != nil {
			return err
		}
		report, err := services.NewPipeline(cfg, logger).Build(ctx)
		printReport(report, cfg)
		return err
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults to $STR_CONFIG_FILE)")
	rootCmd.AddCommand(fetchCmd, buildCmd, metricsCmd, impactsCmd, runCmd)
}

// withRuntime loads configuration and logging, then runs fn until it
// returns or the process is interrupted
func withRuntime(fn func(ctx context.Context, cfg *config.Config, logger *utils.Logger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		// ================== Bootstrap ====================
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := utils.NewLogger(cfg.LogMode)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()

		logger.Info("Short-Term Rental Insights: %s", cmd.Name())
		logger.Info("Cities: %d | Database: %s | Baseline offset: %d quarters",
			len(cfg.Cities), storage.Redact(cfg.DatabaseURL), cfg.BaselineQuarterOffset)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := fn(ctx, cfg, logger); err != nil {
			logger.Error("%s failed: %v", cmd.Name(), err)
			return err
		}
		return nil
	}
}

func printReport(report *models.RunReport, cfg *config.Config) {
	if report != nil {
		services.PrintRunReport(os.Stdout, report, cfg.Cities)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
