package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/chenyuyou/shifting-work-hours/internal/batch"
	"github.com/chenyuyou/shifting-work-hours/internal/grid"
	"github.com/chenyuyou/shifting-work-hours/internal/region"
)

// Mask voids every index cell outside the region geometry, so that the
// report stage's regional means only see cells that actually belong to the
// study area. Masks are rasterized once per grid shape and shared across
// workers through the cache.
type Mask struct {
	inputRoot  string
	outputRoot string
	cache      *region.MaskCache
}

func NewMask(inputRoot, outputRoot string, cache *region.MaskCache) *Mask {
	return &Mask{
		inputRoot:  inputRoot,
		outputRoot: outputRoot,
		cache:      cache,
	}
}

func (m *Mask) Name() string { return "mask" }

func (m *Mask) Enumerate(ctx context.Context) ([]batch.Unit, error) {
	files, err := walkTree(m.inputRoot)
	if err != nil {
		return nil, err
	}

	units := make([]batch.Unit, 0, len(files))
	for _, f := range files {
		units = append(units, batch.Unit{
			ID:     f.Rel,
			Source: f.Path,
			Target: filepath.Join(m.outputRoot, f.Rel),
		})
	}
	return units, nil
}

func (m *Mask) Process(ctx context.Context, unit batch.Unit) error {
	d, err := grid.ReadFile(unit.Source)
	if err != nil {
		return fmt.Errorf("read %s: %w", unit.ID, err)
	}

	keep, err := m.cache.Get(d)
	if err != nil {
		return fmt.Errorf("rasterize mask for %s: %w", unit.ID, err)
	}
	if err := d.ApplyMask(keep); err != nil {
		return fmt.Errorf("mask %s: %w", unit.ID, err)
	}

	return grid.WriteFile(unit.Target, d)
}
