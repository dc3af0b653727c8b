package pipeline

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/chenyuyou/shifting-work-hours/pkg/icron"
	"github.com/chenyuyou/shifting-work-hours/pkg/log"
)

// Scheduler re-runs the full pipeline on a cron expression. New scenario
// years appear in the catalog over time; a scheduled run picks up whatever
// is new while resumability makes the already-done part a cheap no-op.
type Scheduler struct {
	pipeline *Pipeline
	cronExpr string
	cron     *cron.Cron

	// group collapses overlapping triggers of this scheduler; each
	// scheduler guards only its own pipeline.
	group singleflight.Group
}

// NewScheduler wraps a pipeline for cron-driven runs. cronExpr uses the
// six-field form with seconds; the cron engine must be built with
// cron.WithSeconds.
func NewScheduler(p *Pipeline, cronExpr string, c *cron.Cron) *Scheduler {
	return &Scheduler{
		pipeline: p,
		cronExpr: cronExpr,
		cron:     c,
	}
}

// Schedule registers the pipeline run on the cron engine. Overlapping
// triggers collapse into the run already in flight; a run that outlives its
// interval is never doubled up.
func (s *Scheduler) Schedule(ctx context.Context) error {
	info, err := icron.GetTriggerInfo(s.cronExpr, time.Now())
	if err != nil {
		return err
	}
	log.Info("scheduled runs with %q, next trigger in %s", s.cronExpr, info.TimeUntilNext.Round(time.Second))

	_, err = s.cron.AddFunc(s.cronExpr, func() { s.runOnce(ctx) })
	return err
}

func (s *Scheduler) runOnce(ctx context.Context) {
	_, _, _ = s.group.Do("run", func() (any, error) {
		outcome, err := s.pipeline.Run(ctx, nil)
		if err != nil {
			log.Error("scheduled run failed: %v", err)
			return nil, err
		}
		log.Info("scheduled run %s done, %d units still failed", outcome.RunID, outcome.FailedRemaining)
		return nil, nil
	})
}
