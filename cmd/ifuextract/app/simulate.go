package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/ifu-extract/internal/simulate"
	"github.com/roman-kulish/ifu-extract/internal/storage"
	"github.com/roman-kulish/ifu-extract/internal/wave"
)

// Simulate generates the configured synthetic field and writes it to the
// catalog. An existing catalog is replaced only when overwrite is set.
func Simulate(ctx context.Context, config *Config, overwrite bool, logger *slog.Logger) error {
	path := config.Catalog.Path

	switch _, err := os.Stat(path); {
	case err == nil && !overwrite:
		return fmt.Errorf("catalog '%s' already exists", path)
	case err == nil:
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err = os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("removing catalog: %w", err)
			}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking catalog: %w", err)
	}

	obs, err := simulate.Generate(config.Simulation, wave.Grid())
	if err != nil {
		return fmt.Errorf("generating observation: %w", err)
	}

	store := storage.NewSqliteStore(path)
	defer store.Close()

	shot := fmt.Sprintf("sim%06d", config.Simulation.Seed)
	ids, err := store.StoreFibers(ctx, shot, obs.Fibers)
	if err != nil {
		return fmt.Errorf("storing fibers: %w", err)
	}
	if err = store.StoreTargets(ctx, obs.Targets); err != nil {
		return fmt.Errorf("storing targets: %w", err)
	}

	logger.Info("catalog simulated",
		slog.String("path", path),
		slog.String("shot", shot),
		slog.String("fibers", humanize.Comma(int64(len(ids)))),
		slog.String("targets", humanize.Comma(int64(len(obs.Targets)))),
		slog.Int("exposures", len(config.Simulation.Dithers)))

	if info, err := os.Stat(path); err == nil {
		logger.Debug("catalog size", slog.String("size", humanize.Bytes(uint64(info.Size()))))
	}
	return nil
}
