// Package worker implements the Monitoring Worker: the single long-lived
// tick loop that, while leader, probes every configured app's queues,
// consults the Schedule Evaluator and Decision Engine, and hands the result
// to the Action Executor — grounded on the teacher's scheduler.Core.Run
// ticker loop and per-job worker-pool dispatch pattern (pkg/scheduler/core.go),
// generalized from a job dispatch queue to a fixed set of monitored apps.
package worker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"acaqueue/pkg/broker"
	"acaqueue/pkg/coordination"
	"acaqueue/pkg/engine"
	"acaqueue/pkg/executor"
	"acaqueue/pkg/logger"
	"acaqueue/pkg/metrics"
	"acaqueue/pkg/models"
	"acaqueue/pkg/notify"
	"acaqueue/pkg/observability/tracing"
	"acaqueue/pkg/schedule"
	"acaqueue/pkg/store"
)

// Config bundles the poll cadence and the engine's own knobs (§6).
type Config struct {
	PollInterval time.Duration
	EngineConfig engine.Config
	AlertEmails  []string
	ProbeTimeout time.Duration
}

// Worker ties every collaborator together for one tick cycle.
type Worker struct {
	mappings  []*models.AppMapping
	prober    broker.Prober
	evaluator *schedule.Evaluator
	exec      *executor.Executor
	st        store.Store
	notify    notify.Sink
	driver    statusGetter
	election  coordination.Election
	cfg       Config
	tracer    trace.Tracer

	wg sync.WaitGroup
}

// statusGetter is the subset of containerapp.Driver the worker needs
// directly (GetStatus); kept narrow so tests can fake just this.
type statusGetter interface {
	GetStatus(ctx context.Context, resourceGroup, app string) (models.CurrentStatus, error)
}

func New(mappings []*models.AppMapping, prober broker.Prober, evaluator *schedule.Evaluator, exec *executor.Executor, st store.Store, notifySink notify.Sink, driver statusGetter, election coordination.Election, tracerProvider *tracing.Provider, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = cfg.PollInterval
	}
	var tracer trace.Tracer
	if tracerProvider != nil {
		tracer = tracerProvider.Tracer()
	}
	return &Worker{
		mappings:  mappings,
		prober:    prober,
		evaluator: evaluator,
		exec:      exec,
		st:        st,
		notify:    notifySink,
		driver:    driver,
		election:  election,
		cfg:       cfg,
		tracer:    tracer,
	}
}

// Run is the top-level loop (§4.7). It blocks until ctx is canceled, then
// awaits in-flight per-app ticks up to 2*pollInterval before returning.
func (w *Worker) Run(ctx context.Context) {
	log := logger.Get()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	renewTicker := time.NewTicker(10 * time.Second)
	defer renewTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring worker shutting down, awaiting in-flight ticks")
			w.awaitDrain(2 * w.cfg.PollInterval)
			w.election.Release(context.Background())
			return

		case <-renewTicker.C:
			w.renewLeadership(ctx)

		case <-ticker.C:
			if !w.election.IsLeader() {
				continue
			}
			w.tick(ctx)
		}
	}
}

func (w *Worker) awaitDrain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Get().Warn("timed out waiting for in-flight ticks to drain")
	}
}

func (w *Worker) renewLeadership(ctx context.Context) {
	log := logger.Get()
	if w.election.IsLeader() {
		if err := w.election.Renew(ctx); err != nil {
			log.Warn("leadership renewal failed, standing down", zap.Error(err))
		}
		metrics.IsLeader.Set(boolToFloat(w.election.IsLeader()))
		return
	}
	acquired, err := w.election.TryAcquire(ctx, 30)
	if err != nil {
		log.Warn("leadership acquisition attempt failed", zap.Error(err))
	}
	if acquired {
		log.Info("acquired leadership")
	}
	metrics.IsLeader.Set(boolToFloat(w.election.IsLeader()))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// tick dispatches one goroutine per AppMapping, per §4.7.2.
func (w *Worker) tick(ctx context.Context) {
	metrics.TicksTotal.Inc()
	for _, m := range w.mappings {
		mapping := m
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.tickApp(ctx, mapping)
		}()
	}
}

func (w *Worker) tickApp(ctx context.Context, mapping *models.AppMapping) {
	if w.tracer != nil {
		var span trace.Span
		ctx, span = w.tracer.Start(ctx, "worker.tickApp", trace.WithAttributes(
			attribute.String("container_app", mapping.ContainerApp),
		))
		defer span.End()
	}

	unlock, ok := w.exec.TryLock(mapping.ContainerApp)
	if !ok {
		metrics.AppTickSkipped.WithLabelValues(mapping.ContainerApp).Inc()
		return
	}
	defer unlock()

	metrics.AppsEvaluated.Inc()
	now := time.Now().UTC()
	log := logger.Get().With(zap.String("container_app", mapping.ContainerApp))

	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	queues := w.probeQueues(probeCtx, mapping)
	cancel()

	state, err := w.st.Load(ctx, mapping.ContainerApp)
	if err != nil {
		log.Warn("state load failed, using fresh state", zap.Error(err))
		state = models.NewRuntimeState(mapping.ContainerApp)
	}
	state.PruneStaleQueues(mapping.Queues)

	updateQueueTimestamps(&state, queues, now)

	status, err := w.driver.GetStatus(ctx, mapping.ResourceGroup, mapping.ContainerApp)
	if err != nil {
		log.Warn("get status failed", zap.Error(err))
	}

	active, desired, window, windowEnd := w.evaluator.IsInActiveWindow(mapping, now)

	in := engine.Input{
		Mapping:                 mapping,
		Queues:                  queues,
		State:                   state,
		Now:                     now,
		CurrentStatus:           status,
		ScheduleActive:          active,
		ScheduleDesiredReplicas: desired,
		ScheduleWindow:          window,
		ScheduleWindowEnd:       windowEnd,
	}

	decision, alerts := engine.Evaluate(w.cfg.EngineConfig, in)
	metrics.RecordDecision(string(decision.Action), decision.ReasonCode)

	if engine.ShouldResetRestartCount(in) {
		state.RestartAttemptCount = 0
	}

	w.emitAlerts(ctx, mapping, &state, alerts, now)

	w.exec.Apply(ctx, mapping, decision, &state, now)

	if err := w.st.Save(ctx, state); err != nil {
		log.Warn("state save failed", zap.Error(err))
	}
}

func (w *Worker) probeQueues(ctx context.Context, mapping *models.AppMapping) []models.QueueSnapshot {
	results := make([]models.QueueSnapshot, len(mapping.Queues))
	var wg sync.WaitGroup
	for i, q := range mapping.Queues {
		i, q := i, q
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := w.prober.Probe(ctx, q)
			if err != nil {
				metrics.ProbeFailuresTotal.WithLabelValues(mapping.ContainerApp, q).Inc()
			} else {
				metrics.QueueDepth.WithLabelValues(mapping.ContainerApp, q).Set(float64(snap.PendingMessages))
				metrics.QueueActiveConsumers.WithLabelValues(mapping.ContainerApp, q).Set(float64(snap.ActiveConsumers))
			}
			results[i] = snap
		}()
	}
	wg.Wait()
	return results
}

func (w *Worker) emitAlerts(ctx context.Context, mapping *models.AppMapping, state *models.RuntimeState, alerts []models.ProcessingAlert, now time.Time) {
	for _, a := range alerts {
		qs := state.QueueConsumerStatus[a.QueueName]
		qs.ProcessingAlertCount = a.AlertNumber
		qs.LastProcessingAlert = now
		state.QueueConsumerStatus[a.QueueName] = qs

		metrics.ProcessingAlertsTotal.WithLabelValues(mapping.ContainerApp, a.QueueName).Inc()
		if err := w.notify.NotifyProcessingAlert(ctx, mapping, w.cfg.AlertEmails, a); err != nil {
			logger.Get().Warn("processing alert notification failed", zap.String("container_app", mapping.ContainerApp), zap.Error(err))
		}
	}
}

// updateQueueTimestamps applies one tick's probe results to the persisted
// per-queue state (§4.7.2.b). Unknown queues are left untouched entirely —
// a probe failure must never advance lastMessageSeen/lastConsumerSeen nor
// trigger a Stop (§4.4, §7 BrokerProbeFailed).
func updateQueueTimestamps(state *models.RuntimeState, queues []models.QueueSnapshot, now time.Time) {
	if state.QueueConsumerStatus == nil {
		state.QueueConsumerStatus = make(map[string]models.QueueConsumerState)
	}
	for _, q := range queues {
		if q.Unknown {
			continue
		}
		qs := state.QueueConsumerStatus[q.QueueName]

		if q.PendingMessages > 0 {
			qs.LastMessageSeen = now
			qs.MessageCount++
			if qs.FirstMessageSeenAt.IsZero() {
				qs.FirstMessageSeenAt = now
			}
		} else {
			qs.FirstMessageSeenAt = time.Time{}
			qs.ProcessingAlertCount = 0
		}

		if q.ActiveConsumers > 0 {
			qs.LastConsumerSeen = now
			qs.HasActiveConsumers = true
		} else {
			qs.HasActiveConsumers = false
		}

		state.QueueConsumerStatus[q.QueueName] = qs
	}
}
