package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/ifu-extract/internal/product"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()

	c := NewConfig()
	c.Settings.Workers = 2
	c.Catalog.Path = filepath.Join(dir, "catalog.sqlite")
	c.Output.Directory = filepath.Join(dir, "output")
	c.Output.Models = true
	return c
}

func TestRunExtraction_WritesProducts(t *testing.T) {
	catalog, targets := simulatedCatalog(t)
	config := testConfig(t)

	var out bytes.Buffer
	require.NoError(t, runExtraction(context.Background(), catalog, config, &out, discard))

	dir := config.Output.Directory
	for _, name := range []string{
		"cube_0.fits",
		"model_0.fits",
		"diag_0.png",
		product.SpectraFileName,
		product.ErrorsFileName,
		product.TableFileName,
	} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}

	// Skipped targets produce nothing of their own.
	assert.NoFileExists(t, filepath.Join(dir, "cube_2.fits"))
	assert.NoFileExists(t, filepath.Join(dir, "diag_2.png"))

	records, err := parquet.ReadFile[product.SpectrumRecord](filepath.Join(dir, product.TableFileName))
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Less(t, len(records), len(targets))
	assert.Equal(t, targets[0].StarID, records[0].StarID)
	assert.Contains(t, out.String(), "run "+records[0].RunID+":")
}

func TestRunExtraction_ProductsDisabled(t *testing.T) {
	catalog, _ := simulatedCatalog(t)
	config := testConfig(t)
	config.Cube.Enabled = false
	config.Output.Models = false
	config.Output.Diagnostics = false
	config.Output.Table = false

	var out bytes.Buffer
	require.NoError(t, runExtraction(context.Background(), catalog, config, &out, discard))

	entries, err := os.ReadDir(config.Output.Directory)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{product.SpectraFileName, product.ErrorsFileName}, names)
}

func TestSimulateThenRun(t *testing.T) {
	config := testConfig(t)
	ctx := context.Background()

	require.NoError(t, Simulate(ctx, config, false, discard))
	assert.FileExists(t, config.Catalog.Path)

	err := Simulate(ctx, config, false, discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, Simulate(ctx, config, true, discard))

	var out bytes.Buffer
	require.NoError(t, Run(ctx, config, &out, discard))
	assert.Contains(t, out.String(), "1001")
	assert.FileExists(t, filepath.Join(config.Output.Directory, product.SpectraFileName))
}

func TestRun_MissingCatalog(t *testing.T) {
	config := testConfig(t)

	err := Run(context.Background(), config, io.Discard, discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening catalog")
}
