// Package executor applies a Decision Engine decision through the
// Container-App Driver, serialized per app by a non-blocking per-app mutex,
// grounded on the teacher's worker-pool/heartbeat Executor in structure
// (named component holding its collaborators, TryLock-style gating) even
// though the domain it drives is entirely different.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"acaqueue/pkg/audit"
	"acaqueue/pkg/containerapp"
	"acaqueue/pkg/logger"
	"acaqueue/pkg/metrics"
	"acaqueue/pkg/models"
	"acaqueue/pkg/notify"
	"acaqueue/pkg/resilience"
)

// Config is the Action Executor's slice of the global configuration.
type Config struct {
	CooldownMinutes int
}

// Executor owns the per-app mutex map (§5: "protected by a short-lived
// coarse lock during insertion") and drives one decision at a time per app.
type Executor struct {
	driver  containerapp.Driver
	notify  notify.Sink
	audit   audit.Trail
	breaker *resilience.CircuitBreaker
	cfg     Config

	mapMu sync.Mutex
	locks map[string]*sync.Mutex
}

func New(driver containerapp.Driver, notifySink notify.Sink, trail audit.Trail, cfg Config) *Executor {
	return &Executor{
		driver:  driver,
		notify:  notifySink,
		audit:   trail,
		breaker: resilience.NewCircuitBreaker("containerapp-driver", resilience.DefaultCircuitBreakerConfig()),
		cfg:     cfg,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (e *Executor) lockFor(containerApp string) *sync.Mutex {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	l, ok := e.locks[containerApp]
	if !ok {
		l = &sync.Mutex{}
		e.locks[containerApp] = l
	}
	return l
}

// TryLock attempts to acquire the per-app mutex without blocking. When it
// fails, the caller must skip this app for the current tick (§5: consecutive
// ticks interleave only at the probe boundary).
func (e *Executor) TryLock(containerApp string) (unlock func(), ok bool) {
	l := e.lockFor(containerApp)
	if !l.TryLock() {
		return nil, false
	}
	return l.Unlock, true
}

// Apply runs the §4.3 action sequence, mutating state in place. The caller
// (Monitoring Worker) is responsible for the single authoritative
// store.Save of the mutated state — Apply itself never touches the store,
// only the driver, the notification sink, and the audit trail.
func (e *Executor) Apply(ctx context.Context, mapping *models.AppMapping, decision models.Decision, state *models.RuntimeState, now time.Time) {
	log := logger.Get().With(zap.String("container_app", mapping.ContainerApp), zap.String("action", string(decision.Action)))

	// Step 1: conflict is handled with no driver call.
	if decision.Action == models.ActionNone && decision.Conflict {
		if err := e.notify.NotifyConflict(ctx, mapping); err != nil {
			log.Warn("conflict notification failed", zap.Error(err))
		}
		e.recordAudit(ctx, mapping, decision, "Conflict", now)
		return
	}

	// Rule 3's retry-budget-exhausted notification is one-shot: fire it
	// only on the transition into this state, detected via
	// LastActionResult, so it doesn't resend every tick the budget stays
	// exhausted.
	if decision.Action == models.ActionNone && decision.ReasonCode == models.ReasonMaxAttemptsReached {
		const failedResult = "Failed: " + models.ReasonMaxAttemptsReached
		if state.LastActionResult != failedResult {
			state.LastActionResult = failedResult
			if err := e.notify.NotifyActionFailure(ctx, mapping, models.ActionRestart, models.ReasonMaxAttemptsReached, *state); err != nil {
				log.Warn("max-attempts notification failed", zap.Error(err))
			}
			e.recordAudit(ctx, mapping, decision, failedResult, now)
		}
		return
	}

	if decision.Action == models.ActionNone {
		return
	}

	// Step 2: cooldown gate, enforced again here as the last line of
	// defense regardless of which rule produced the decision.
	if now.Before(state.CooldownUntil) {
		log.Debug("action suppressed by cooldown")
		return
	}

	start := time.Now()
	err := e.invokeDriver(ctx, mapping, decision)
	duration := time.Since(start).Seconds()

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.RecordAction(string(decision.Action), result, duration)

	if decision.Action == models.ActionRestart {
		state.RestartAttemptCount++
		state.LastRestartTime = now
		metrics.RestartAttemptsTotal.WithLabelValues(mapping.ContainerApp).Inc()
	}

	state.LastAction = string(decision.Action)

	if err != nil {
		e.onFailure(ctx, mapping, decision, state, now, err, log)
		return
	}
	e.onSuccess(ctx, mapping, decision, state, now, log)
}

func (e *Executor) invokeDriver(ctx context.Context, mapping *models.AppMapping, decision models.Decision) error {
	return e.breaker.Execute(ctx, func() error {
		switch decision.Action {
		case models.ActionStart:
			return e.driver.Start(ctx, mapping.ResourceGroup, mapping.ContainerApp, decision.DesiredReplicas)
		case models.ActionStop:
			return e.driver.Stop(ctx, mapping.ResourceGroup, mapping.ContainerApp)
		case models.ActionRestart:
			return e.driver.Restart(ctx, mapping.ResourceGroup, mapping.ContainerApp, decision.DesiredReplicas)
		default:
			return fmt.Errorf("executor: unknown action %q", decision.Action)
		}
	})
}

func (e *Executor) onSuccess(ctx context.Context, mapping *models.AppMapping, decision models.Decision, state *models.RuntimeState, now time.Time, log *zap.Logger) {
	switch decision.Action {
	case models.ActionStart:
		state.LastStart = now
	case models.ActionStop:
		state.LastStop = now
	case models.ActionRestart:
		state.LastRestart = now
		state.AppendRestartAttempt(models.RestartAttempt{
			Timestamp:     now,
			Reason:        decision.ReasonCode,
			AttemptNumber: state.RestartAttemptCount,
			Success:       true,
		})
	}
	if decision.ReasonCode == models.ReasonScheduleStart {
		state.LastScheduleStart = now
		state.ScheduleActiveUntil = decision.ScheduleWindowEnd
	}

	state.LastActionResult = "Success"
	state.CooldownUntil = now.Add(time.Duration(e.cfg.CooldownMinutes) * time.Minute)

	if err := e.notify.NotifyActionSuccess(ctx, mapping, decision.Action, *state); err != nil {
		log.Warn("success notification failed", zap.Error(err))
	}
	e.recordAudit(ctx, mapping, decision, "Success", now)
	log.Info("action applied")
}

func (e *Executor) onFailure(ctx context.Context, mapping *models.AppMapping, decision models.Decision, state *models.RuntimeState, now time.Time, err error, log *zap.Logger) {
	kind := failureKind(err)
	state.LastActionResult = "Failed: " + kind

	if decision.Action == models.ActionRestart {
		state.AppendRestartAttempt(models.RestartAttempt{
			Timestamp:     now,
			Reason:        decision.ReasonCode,
			AttemptNumber: state.RestartAttemptCount,
			Success:       false,
		})
	}

	// Cooldown is deliberately left untouched: a failed action must not
	// extend the window during which the next attempt is blocked.

	if notifyErr := e.notify.NotifyActionFailure(ctx, mapping, decision.Action, kind, *state); notifyErr != nil {
		log.Warn("failure notification failed", zap.Error(notifyErr))
	}
	e.recordAudit(ctx, mapping, decision, "Failed: "+kind, now)
	log.Error("action failed", zap.Error(err))
}

func (e *Executor) recordAudit(ctx context.Context, mapping *models.AppMapping, decision models.Decision, result string, now time.Time) {
	rec := audit.Record{
		Timestamp:       now,
		ContainerApp:    mapping.ContainerApp,
		ResourceGroup:   mapping.ResourceGroup,
		Action:          decision.Action,
		ReasonCode:      decision.ReasonCode,
		Conflict:        decision.Conflict,
		DesiredReplicas: decision.DesiredReplicas,
		ActionResult:    result,
	}
	if err := e.audit.Record(ctx, rec); err != nil {
		logger.Get().Warn("audit record failed", zap.String("container_app", mapping.ContainerApp), zap.Error(err))
	}
}

// failureKind maps a driver error to the error-kind vocabulary of §7;
// cancellation must be reported distinctly since it is never retried.
func failureKind(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Canceled"
	}
	return "CloudDriverFailed"
}
