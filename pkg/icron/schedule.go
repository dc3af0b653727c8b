// Package icron introspects the cron expressions that drive scheduled
// pipeline runs. Expressions use the six-field form with a leading
// seconds field, matching the engine the scheduler is built with.
package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerInfo places a cron expression around a reference time: the
// trigger before it and the trigger after it.
type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// GetTriggerInfo parses a six-field cron expression and locates the
// triggers surrounding refTime. Expressions that fire less often than
// yearly report a zero Last.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       lastTrigger(schedule, refTime),
	}
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	info.TimeUntilNext = info.Next.Sub(refTime)

	return info, nil
}

// lastTrigger scans backwards hour by hour, up to a year, for the most
// recent trigger at or before refTime. Schedule only exposes Next, so
// the previous trigger has to be bracketed from below.
func lastTrigger(schedule cron.Schedule, refTime time.Time) time.Time {
	searchStart := refTime.Add(-time.Minute)
	for i := 0; i < 366*24; i++ {
		candidate := schedule.Next(searchStart.Add(-time.Duration(i) * time.Hour))
		if !candidate.After(refTime) {
			return candidate
		}
	}
	return time.Time{}
}
