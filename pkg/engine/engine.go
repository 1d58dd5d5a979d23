// Package engine implements the Decision Engine: a pure function over
// (mapping, queue snapshots, runtime state, now) that decides whether an
// app should be started, stopped, or restarted. It performs no I/O and
// holds no state of its own — every input it needs is passed in, and the
// same inputs always produce the same outputs.
package engine

import (
	"time"

	"acaqueue/pkg/models"
)

// Config is the subset of the global configuration surface the engine
// needs (§6 pollIntervalSeconds/cooldownMinutes are executor/worker
// concerns; these five are the engine's own knobs).
type Config struct {
	IdleTimeoutMinutes               int
	RestartVerificationTimeoutMinutes int
	FirstAlertMinutes                int
	FollowupIntervalMinutes          int
	MaxAlerts                        int
}

// Input bundles everything the engine reads for one app in one tick.
// Queues must be in mapping order, one entry per mapping.Queues name;
// Unknown is set for any queue whose probe failed this tick. State must
// already reflect this tick's per-queue timestamp updates (the Monitoring
// Worker applies those before calling Evaluate) — the engine itself never
// mutates State.
type Input struct {
	Mapping       *models.AppMapping
	Queues        []models.QueueSnapshot
	State         models.RuntimeState
	Now           time.Time
	CurrentStatus models.CurrentStatus

	ScheduleActive          bool
	ScheduleDesiredReplicas int
	ScheduleWindow          *models.ScheduleWindow
	ScheduleWindowEnd       time.Time
}

// Evaluate runs the decision table (spec §4.2) and returns the action to
// take plus any message-processing-too-long alerts to forward, independent
// of the action decision.
func Evaluate(cfg Config, in Input) (models.Decision, []models.ProcessingAlert) {
	known := knownQueues(in.Queues)

	anyPending := false
	for _, q := range known {
		if q.PendingMessages > 0 {
			anyPending = true
			break
		}
	}

	allConsumersPresent := true
	anyConsumerPresent := false
	for _, q := range known {
		if q.ActiveConsumers > 0 {
			anyConsumerPresent = true
		} else {
			allConsumersPresent = false
		}
	}

	inactiveReplicas := in.CurrentStatus.MinReplicas == 0

	idleTimeout := time.Duration(cfg.IdleTimeoutMinutes) * time.Minute
	allIdle := len(in.Queues) == len(known) // any Unknown queue blocks Stop entirely
	for _, q := range known {
		qs := in.State.QueueConsumerStatus[q.QueueName]
		lastActivity := latestOf(qs.LastMessageSeen, qs.LastConsumerSeen)
		idleFor := in.Now.Sub(lastActivity)
		if q.PendingMessages != 0 || q.ActiveConsumers != 0 || idleFor < idleTimeout {
			allIdle = false
		}
	}

	stuckQueue, stuck := findStuckQueue(in, known)

	inPostRestartVerification := inVerificationWindow(cfg, in)

	// Rule 1: schedule override start.
	if in.ScheduleActive && inactiveReplicas {
		return models.Decision{
			Action:            models.ActionStart,
			DesiredReplicas:   in.ScheduleDesiredReplicas,
			ReasonCode:        models.ReasonScheduleStart,
			ScheduleWindowEnd: in.ScheduleWindowEnd,
		}, alerts(cfg, in)
	}

	// Rule 2: cooldown block.
	if in.Now.Before(in.State.CooldownUntil) {
		return models.Decision{Action: models.ActionNone, ReasonCode: models.ReasonCooldown}, alerts(cfg, in)
	}

	// Rule 3: retry budget exhausted.
	if in.State.RestartAttemptCount >= in.Mapping.MaxRestartAttempts {
		window := time.Duration(in.Mapping.RestartCooldownMinutes*in.Mapping.MaxRestartAttempts) * time.Minute
		if in.Now.Sub(in.State.LastRestartTime) <= window {
			return models.Decision{Action: models.ActionNone, ReasonCode: models.ReasonMaxAttemptsReached}, alerts(cfg, in)
		}
	}

	if inPostRestartVerification {
		return models.Decision{Action: models.ActionNone, ReasonCode: models.ReasonNone}, alerts(cfg, in)
	}

	// Rule 4: multi-queue conflict — only relevant when rule 5 would fire.
	if stuck && anyConsumerPresent && !allConsumersPresent {
		return models.Decision{Action: models.ActionNone, Conflict: true, ReasonCode: models.ReasonStuckQueue}, alerts(cfg, in)
	}

	// Rule 5: restart on stuck work.
	if stuck {
		_ = stuckQueue
		return models.Decision{
			Action:          models.ActionRestart,
			DesiredReplicas: in.Mapping.DesiredReplicas,
			ReasonCode:      models.ReasonStuckQueue,
		}, alerts(cfg, in)
	}

	// Rule 6: start on demand.
	if anyPending && inactiveReplicas {
		return models.Decision{
			Action:          models.ActionStart,
			DesiredReplicas: in.Mapping.DesiredReplicas,
			ReasonCode:      models.ReasonDemandArrived,
		}, alerts(cfg, in)
	}

	// Rule 7: stop on idle.
	if !in.ScheduleActive && allIdle && !inactiveReplicas {
		return models.Decision{Action: models.ActionStop, ReasonCode: models.ReasonIdleTimeout}, alerts(cfg, in)
	}

	// Rule 8: otherwise, no action.
	return models.Decision{Action: models.ActionNone, ReasonCode: models.ReasonNone}, alerts(cfg, in)
}

// ShouldResetRestartCount is the trigger for zeroing RestartAttemptCount. It
// reports true when every mapped queue was probed successfully this tick,
// currently has active consumers (snapshot and HasActiveConsumers), and has a
// LastConsumerSeen no older than mapping.StartupGracePeriodMinutes. How long
// the consumers have been present without interruption is not checked: the
// state keeps no start time for a consumer run, so the first tick on which
// every queue has consumers already returns true.
func ShouldResetRestartCount(in Input) bool {
	known := knownQueues(in.Queues)
	if len(known) == 0 || len(known) != len(in.Queues) {
		return false
	}
	grace := time.Duration(in.Mapping.StartupGracePeriodMinutes) * time.Minute
	for _, q := range known {
		if q.ActiveConsumers <= 0 {
			return false
		}
		qs := in.State.QueueConsumerStatus[q.QueueName]
		if qs.LastConsumerSeen.IsZero() {
			return false
		}
		// HasActiveConsumers is the worker's record of the latest observation;
		// it says nothing about earlier ticks.
		if !qs.HasActiveConsumers {
			return false
		}
		if in.Now.Sub(qs.LastConsumerSeen) > grace {
			// Consumers have not been observed within the grace period.
			return false
		}
	}
	return true
}

func knownQueues(queues []models.QueueSnapshot) []models.QueueSnapshot {
	known := make([]models.QueueSnapshot, 0, len(queues))
	for _, q := range queues {
		if !q.Unknown {
			known = append(known, q)
		}
	}
	return known
}

func findStuckQueue(in Input, known []models.QueueSnapshot) (string, bool) {
	timeout := time.Duration(in.Mapping.ConsumerTimeoutMinutes) * time.Minute
	for _, q := range known {
		if q.PendingMessages <= 0 || q.ActiveConsumers > 0 {
			continue
		}
		qs := in.State.QueueConsumerStatus[q.QueueName]
		if qs.FirstMessageSeenAt.IsZero() {
			continue
		}
		if in.Now.Sub(qs.FirstMessageSeenAt) > timeout {
			return q.QueueName, true
		}
	}
	return "", false
}

func inVerificationWindow(cfg Config, in Input) bool {
	if cfg.RestartVerificationTimeoutMinutes <= 0 || in.State.LastRestart.IsZero() {
		return false
	}
	until := in.State.LastRestart.Add(time.Duration(cfg.RestartVerificationTimeoutMinutes) * time.Minute)
	return in.Now.Before(until)
}

func latestOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// alerts computes the message-processing-too-long alert cadence,
// independent of the action decision (§4.2 Alert side-signal).
func alerts(cfg Config, in Input) []models.ProcessingAlert {
	if cfg.FirstAlertMinutes <= 0 || cfg.MaxAlerts <= 0 {
		return nil
	}
	var out []models.ProcessingAlert
	for _, q := range in.Queues {
		if q.Unknown {
			continue
		}
		qs := in.State.QueueConsumerStatus[q.QueueName]
		if qs.FirstMessageSeenAt.IsZero() {
			continue
		}
		if qs.ProcessingAlertCount >= cfg.MaxAlerts {
			continue
		}
		elapsed := in.Now.Sub(qs.FirstMessageSeenAt)
		first := time.Duration(cfg.FirstAlertMinutes) * time.Minute
		if elapsed < first {
			continue
		}
		if qs.ProcessingAlertCount == 0 {
			out = append(out, models.ProcessingAlert{QueueName: q.QueueName, IdleDuration: elapsed, AlertNumber: 1})
			continue
		}
		followup := time.Duration(cfg.FollowupIntervalMinutes) * time.Minute
		if followup <= 0 {
			continue
		}
		if in.Now.Sub(qs.LastProcessingAlert) >= followup {
			out = append(out, models.ProcessingAlert{QueueName: q.QueueName, IdleDuration: elapsed, AlertNumber: qs.ProcessingAlertCount + 1})
		}
	}
	return out
}
