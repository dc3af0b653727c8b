package stages

import (
	"context"
	"fmt"

	"github.com/chenyuyou/shifting-work-hours/internal/batch"
	"github.com/chenyuyou/shifting-work-hours/internal/catalog"
	"github.com/chenyuyou/shifting-work-hours/internal/transfer"
)

// Download fetches every catalog entry into the local data tree. Unit ids
// are catalog-relative paths, so the same catalog always enumerates the
// same unit set regardless of what is on disk.
type Download struct {
	entries []catalog.Entry
	agent   *transfer.Agent

	byID map[string]catalog.Entry
}

func NewDownload(entries []catalog.Entry, agent *transfer.Agent) *Download {
	byID := make(map[string]catalog.Entry, len(entries))
	for _, e := range entries {
		byID[e.RelPath()] = e
	}
	return &Download{
		entries: entries,
		agent:   agent,
		byID:    byID,
	}
}

func (d *Download) Name() string { return "download" }

func (d *Download) Enumerate(ctx context.Context) ([]batch.Unit, error) {
	units := make([]batch.Unit, 0, len(d.entries))
	for _, e := range d.entries {
		units = append(units, batch.Unit{
			ID:     e.RelPath(),
			Source: e.DownloadURL,
			Meta: map[string]string{
				"model":    e.Model,
				"scenario": e.Scenario,
				"variable": e.Variable,
			},
		})
	}
	return units, nil
}

func (d *Download) Process(ctx context.Context, unit batch.Unit) error {
	entry, ok := d.byID[unit.ID]
	if !ok {
		return fmt.Errorf("unit %s not in catalog", unit.ID)
	}
	return d.agent.Fetch(ctx, entry)
}
