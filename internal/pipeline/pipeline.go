// Package pipeline wires the processing stages into checkpointed runs.
// Every stage follows the same shape: enumerate the canonical unit set,
// subtract what the status store already marks succeeded, and hand the
// residual to the worker pool. Killing a run at any point and relaunching
// it continues from the residual.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chenyuyou/shifting-work-hours/internal/batch"
	"github.com/chenyuyou/shifting-work-hours/internal/catalog"
	"github.com/chenyuyou/shifting-work-hours/internal/checkpoint"
	"github.com/chenyuyou/shifting-work-hours/internal/config"
	"github.com/chenyuyou/shifting-work-hours/internal/region"
	"github.com/chenyuyou/shifting-work-hours/internal/stages"
	"github.com/chenyuyou/shifting-work-hours/internal/transfer"
	"github.com/chenyuyou/shifting-work-hours/pkg/log"
)

// Exit codes for the run as a whole.
const (
	ExitOK = 0
	// ExitFatal covers structural and persistence failures that abort a run.
	ExitFatal = 1
	// ExitResidual means the run completed but some units remain failed.
	ExitResidual = 2
)

// Pipeline owns the stage list and the status store configuration for one
// deployment.
type Pipeline struct {
	cfg    *config.Config
	stages []stages.Stage
}

// New builds the stage list from configuration. The catalog and the region
// geometry load concurrently; both must parse before any stage runs.
func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	var (
		entries []catalog.Entry
		polys   []region.Polygon
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = catalog.Load(cfg.Catalog.Path)
		return err
	})
	if cfg.Region.File != "" {
		g.Go(func() error {
			var err error
			polys, err = region.LoadPolygons(cfg.Region.File)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	client := transfer.NewClient(transfer.Options{
		Timeout:       cfg.TransferTimeout(),
		RetryAttempts: cfg.Transfer.Retries,
	})
	agent := transfer.NewAgent(client, cfg.Paths.DataDir, cfg.Catalog.TolerancePercent)

	clippedRoot := filepath.Join(cfg.Paths.OutputDir, "clipped")
	wbgtRoot := filepath.Join(cfg.Paths.OutputDir, "wbgt")
	maskedRoot := filepath.Join(cfg.Paths.OutputDir, "masked")
	reportRoot := filepath.Join(cfg.Paths.OutputDir, "reports")

	list := []stages.Stage{
		stages.NewDownload(entries, agent),
		stages.NewClip(cfg.Paths.DataDir, clippedRoot, cfg.Region.Bounds),
		stages.NewIndex(clippedRoot, wbgtRoot),
	}

	reportInput := wbgtRoot
	if len(polys) > 0 {
		list = append(list, stages.NewMask(wbgtRoot, maskedRoot, region.NewMaskCache(polys)))
		reportInput = maskedRoot
	}
	list = append(list, stages.NewReport(reportInput, reportRoot, cfg.Region.SunriseHour))

	return &Pipeline{cfg: cfg, stages: list}, nil
}

// StageNames lists the configured stages in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Outcome is the aggregate of one run across its stages.
type Outcome struct {
	RunID   string
	Results map[string]batch.Result

	// FailedRemaining counts units still marked failed across the stage
	// ledgers after the run.
	FailedRemaining int
}

func (o *Outcome) ExitCode() int {
	if o.FailedRemaining > 0 {
		return ExitResidual
	}
	return ExitOK
}

// Run executes the named stages in pipeline order; an empty selection means
// all of them. Stage unit failures are isolated and reported through the
// outcome; structural and persistence failures abort immediately.
func (p *Pipeline) Run(ctx context.Context, selected []string) (*Outcome, error) {
	want := make(map[string]bool, len(selected))
	for _, name := range selected {
		want[name] = true
	}
	for name := range want {
		if !p.hasStage(name) {
			return nil, fmt.Errorf("unknown stage %q (have %v)", name, p.StageNames())
		}
	}

	outcome := &Outcome{
		RunID:   uuid.NewString(),
		Results: make(map[string]batch.Result),
	}
	log.Info("run %s starting (stages: %v)", outcome.RunID, p.StageNames())
	start := time.Now()

	for _, stage := range p.stages {
		if len(want) > 0 && !want[stage.Name()] {
			continue
		}
		if err := p.runStage(ctx, stage, outcome); err != nil {
			return outcome, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
	}

	log.Info("run %s finished in %s: %d units still failed",
		outcome.RunID, time.Since(start).Round(time.Second), outcome.FailedRemaining)
	return outcome, nil
}

func (p *Pipeline) hasStage(name string) bool {
	for _, s := range p.stages {
		if s.Name() == name {
			return true
		}
	}
	return false
}

func (p *Pipeline) runStage(ctx context.Context, stage stages.Stage, outcome *Outcome) error {
	// Each stage keeps its own log file next to the artifacts, so a long
	// run can be diagnosed per stage after the fact.
	flog, err := log.NewFileLogger(
		filepath.Join(p.cfg.Paths.OutputDir, "logs", stage.Name()+".log"), log.LevelInfo)
	if err != nil {
		return fmt.Errorf("open stage log: %w", err)
	}
	defer flog.Close()

	store, err := p.openStore(stage.Name())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load status store: %w", err)
	}

	units, err := stage.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerate: %w", err)
	}

	residual := batch.Plan(units, store)
	log.Info("stage %s: %d units total, %d residual", stage.Name(), len(units), len(residual))
	flog.Info("stage %s: %d units total, %d residual", stage.Name(), len(units), len(residual))
	if len(residual) == 0 {
		outcome.Results[stage.Name()] = batch.Result{}
		outcome.FailedRemaining += store.Summary().Failed
		return nil
	}

	progress := batch.NewProgress(batch.ProgressOptions{
		Stage: stage.Name(),
		Total: len(residual),
	})
	progress.Start()
	defer progress.Stop()

	pool := batch.Pool{
		Concurrency: p.cfg.Pool.Concurrency,
		BatchSize:   p.cfg.Pool.BatchSize,
	}
	result, err := pool.Run(ctx, residual, stage.Process, store, progress)
	outcome.Results[stage.Name()] = result
	if err != nil {
		flog.Error("stage %s aborted: %v", stage.Name(), err)
		return err
	}

	for _, rec := range store.Failed() {
		flog.Warn("unit %s failed: %s", rec.UnitID, rec.Detail)
	}
	flog.Info("stage %s done: %d processed, %d succeeded, %d failed",
		stage.Name(), result.Processed, result.Succeeded, result.Failed)

	outcome.FailedRemaining += store.Summary().Failed
	return nil
}

// openStore creates the status store for one stage according to the
// configured backend. File ledgers live one per stage; the sqlite backend
// keeps every stage in one database scoped by stage name.
func (p *Pipeline) openStore(stage string) (checkpoint.Store, error) {
	switch p.cfg.Store.Backend {
	case "sqlite":
		return checkpoint.NewSQLiteStore(filepath.Join(p.cfg.Store.Dir, "status.db"), stage)
	default:
		return checkpoint.NewFileStore(filepath.Join(p.cfg.Store.Dir, stage+".json"))
	}
}

// RebuildLedger reconciles the download ledger with the files actually on
// disk. This is the one explicit exception to the rule that the ledger is
// authoritative over filesystem state.
func (p *Pipeline) RebuildLedger(ctx context.Context) error {
	entries, err := catalog.Load(p.cfg.Catalog.Path)
	if err != nil {
		return err
	}

	store, err := p.openStore("download")
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load status store: %w", err)
	}
	return transfer.Rebuild(ctx, entries, p.cfg.Paths.DataDir, store, p.cfg.Catalog.TolerancePercent)
}
