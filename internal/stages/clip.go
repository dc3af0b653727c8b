package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/chenyuyou/shifting-work-hours/internal/batch"
	"github.com/chenyuyou/shifting-work-hours/internal/grid"
	"github.com/chenyuyou/shifting-work-hours/internal/region"
)

// Clip cuts every downloaded file down to the configured lat/lon window.
// Working on the clipped subset keeps every later stage's memory and CPU
// proportional to the study region instead of the globe.
type Clip struct {
	inputRoot  string
	outputRoot string
	bounds     region.Bounds
}

func NewClip(inputRoot, outputRoot string, bounds region.Bounds) *Clip {
	return &Clip{
		inputRoot:  inputRoot,
		outputRoot: outputRoot,
		bounds:     bounds,
	}
}

func (c *Clip) Name() string { return "clip" }

func (c *Clip) Enumerate(ctx context.Context) ([]batch.Unit, error) {
	files, err := walkTree(c.inputRoot)
	if err != nil {
		return nil, err
	}

	units := make([]batch.Unit, 0, len(files))
	for _, f := range files {
		units = append(units, batch.Unit{
			ID:     f.Rel,
			Source: f.Path,
			Target: filepath.Join(c.outputRoot, f.Rel),
		})
	}
	return units, nil
}

func (c *Clip) Process(ctx context.Context, unit batch.Unit) error {
	d, err := grid.ReadFile(unit.Source)
	if err != nil {
		return fmt.Errorf("read %s: %w", unit.ID, err)
	}

	clipped, err := d.Sel(c.bounds.LatMin, c.bounds.LatMax, c.bounds.LonMin, c.bounds.LonMax)
	if err != nil {
		return fmt.Errorf("clip %s: %w", unit.ID, err)
	}

	return grid.WriteFile(unit.Target, clipped)
}
