package services

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rental-insights/utils"
)

func writeExport(t *testing.T, dir, city, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, city, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeGzipExport(t *testing.T, dir, city, name, content string) {
	t.Helper()
	path := filepath.Join(dir, city, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestReadMergesCities(t *testing.T) {
	cfg := testConfig(t, "Oakland", "Seattle", "Chicago")
	writeExport(t, cfg.DataDir, "Oakland", cfg.SourceFileName,
		"\ufeffid,price,license\n1,$100.00,N/A\n2,$120.00,STR-1\n")
	writeGzipExport(t, cfg.DataDir, "Seattle", cfg.SourceFileName+".gz",
		"id,price,bedrooms\n3,$80.00,NaN\n")

	table, err := NewRawReader(cfg, utils.NewNopLogger()).Read()
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "price", "license", CityColumn, "bedrooms"}, table.Columns)
	require.Len(t, table.Records, 3)

	assert.Equal(t, "Oakland", table.Records[0][CityColumn])
	assert.Equal(t, "1", table.Records[0]["id"])
	_, hasLicense := table.Records[0]["license"]
	assert.False(t, hasLicense, "NA tokens are read as missing")
	assert.Equal(t, "STR-1", table.Records[1]["license"])

	assert.Equal(t, "Seattle", table.Records[2][CityColumn])
	_, hasBedrooms := table.Records[2]["bedrooms"]
	assert.False(t, hasBedrooms)
}

func TestReadSpreadsheetExport(t *testing.T) {
	cfg := testConfig(t, "Cambridge")
	path := filepath.Join(cfg.DataDir, "Cambridge", "listings_detailed.xlsx")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"id", "price"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"7", "$65.00"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := NewRawReader(cfg, utils.NewNopLogger()).Read()
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "$65.00", table.Records[0]["price"])
	assert.Equal(t, "Cambridge", table.Records[0][CityColumn])
}

func TestReadWithoutExports(t *testing.T) {
	cfg := testConfig(t, "Oakland")
	_, err := NewRawReader(cfg, utils.NewNopLogger()).Read()
	assert.Error(t, err)
}

func TestReadEmptyFile(t *testing.T) {
	cfg := testConfig(t, "Oakland")
	writeExport(t, cfg.DataDir, "Oakland", cfg.SourceFileName, "")
	_, err := NewRawReader(cfg, utils.NewNopLogger()).Read()
	assert.ErrorContains(t, err, "empty file")
}
