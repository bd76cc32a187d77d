package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rental-insights/models"
)

// SaveMetricsJSON publishes the metrics artifact: scope name -> metric record
func SaveMetricsJSON(artifact models.MetricsArtifact, outputPath string) error {
	return writeJSONAtomic(artifact, outputPath)
}

// SaveChartsJSON publishes the chart data artifact
func SaveChartsJSON(charts models.ChartArtifact, outputPath string) error {
	return writeJSONAtomic(charts, outputPath)
}

// writeJSONAtomic encodes v next to outputPath and renames it into place,
// so readers see either the previous artifact or the complete new one.
func writeJSONAtomic(v any, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(outputPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := file.Name()
	defer os.Remove(tmp)

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return fmt.Errorf("failed to publish %s: %w", outputPath, err)
	}
	return nil
}
