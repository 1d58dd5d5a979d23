// Package schedule decides whether an AppMapping is inside one of its
// configured cron windows at a given instant.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"acaqueue/pkg/models"
)

// Evaluator parses and evaluates cron windows. It holds no per-app state and
// is safe for concurrent use; a single Evaluator is shared by every
// Monitoring Worker tick.
type Evaluator struct {
	secondsParser cron.Parser
	standardParser cron.Parser
}

// NewEvaluator builds an Evaluator. Cron strings are parsed in UTC; a
// 6-field expression (seconds precision) is tried first, falling back to
// the standard 5-field dialect, per the teacher's
// pkg/scheduler/core.go parser construction.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		secondsParser:  cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		standardParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

func (e *Evaluator) parse(expr string) (cron.Schedule, error) {
	sched, err := e.secondsParser.Parse(expr)
	if err == nil {
		return sched, nil
	}
	return e.standardParser.Parse(expr)
}

// IsInActiveWindow returns whether now falls inside one of the mapping's
// schedule windows, in list order, first match wins. now and all cron
// evaluation happen in UTC.
func (e *Evaluator) IsInActiveWindow(mapping *models.AppMapping, now time.Time) (active bool, desiredReplicas int, window *models.ScheduleWindow, fireAndDuration time.Time) {
	now = now.UTC()
	desiredReplicas = mapping.DesiredReplicas

	for i := range mapping.Schedules {
		w := mapping.Schedules[i]
		if w.Cron == "" {
			continue
		}
		sched, err := e.parse(w.Cron)
		if err != nil {
			continue
		}
		duration := time.Duration(w.DurationMinutes) * time.Minute
		if duration <= 0 {
			continue
		}

		fire := latestFireAtOrBefore(sched, now, duration)
		if fire.IsZero() {
			continue
		}
		windowEnd := fire.Add(duration)
		if now.After(windowEnd) {
			continue
		}

		return true, w.DesiredReplicas, &mapping.Schedules[i], windowEnd
	}

	return false, desiredReplicas, nil, time.Time{}
}

// latestFireAtOrBefore finds the most recent firing time at or before now
// that is no older than lookback. cron.Schedule only exposes Next, so the
// search starts just before now-lookback and walks Next forward.
func latestFireAtOrBefore(sched cron.Schedule, now time.Time, lookback time.Duration) time.Time {
	// Start far enough back that at least one firing is guaranteed to exist
	// in [start, now], then walk Next() forward collecting the last firing
	// that is <= now.
	start := now.Add(-lookback - time.Minute)
	var last time.Time
	t := sched.Next(start)
	for !t.After(now) {
		if t.IsZero() {
			break
		}
		last = t
		next := sched.Next(t)
		if !next.After(t) {
			break
		}
		t = next
	}
	if last.IsZero() {
		return time.Time{}
	}
	if now.Sub(last) > lookback {
		return time.Time{}
	}
	return last
}
