package engine

import (
	"testing"
	"time"

	"acaqueue/pkg/models"
)

func baseMapping() *models.AppMapping {
	m := &models.AppMapping{
		ResourceGroup:   "rg1",
		ContainerApp:    "worker-app",
		DesiredReplicas: 3,
		Queues:          []string{"orders"},
	}
	m.ApplyDefaults()
	return m
}

func baseConfig() Config {
	return Config{
		IdleTimeoutMinutes:                10,
		RestartVerificationTimeoutMinutes: 5,
		FirstAlertMinutes:                 20,
		FollowupIntervalMinutes:           5,
		MaxAlerts:                         6,
	}
}

func freshState() models.RuntimeState {
	return models.NewRuntimeState("worker-app")
}

func TestEvaluate_DemandStartsStoppedApp(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 10, ActiveConsumers: 0}},
		State:         freshState(),
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 0},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionStart || decision.ReasonCode != models.ReasonDemandArrived {
		t.Fatalf("got %+v, want Start/DemandArrived", decision)
	}
	if decision.DesiredReplicas != mapping.DesiredReplicas {
		t.Errorf("desiredReplicas = %d, want %d", decision.DesiredReplicas, mapping.DesiredReplicas)
	}
}

func TestEvaluate_IdleStopsRunningApp(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		LastMessageSeen:  now.Add(-20 * time.Minute),
		LastConsumerSeen: now.Add(-20 * time.Minute),
	}
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 0, ActiveConsumers: 0}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionStop || decision.ReasonCode != models.ReasonIdleTimeout {
		t.Fatalf("got %+v, want Stop/IdleTimeout", decision)
	}
}

func TestEvaluate_RecentActivityBlocksIdleStop(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		LastMessageSeen:  now.Add(-1 * time.Minute),
		LastConsumerSeen: now.Add(-1 * time.Minute),
	}
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 0, ActiveConsumers: 0}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionNone {
		t.Fatalf("got %+v, want None before idle timeout elapses", decision)
	}
}

func TestEvaluate_StuckQueueRestarts(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		FirstMessageSeenAt: now.Add(-time.Duration(mapping.ConsumerTimeoutMinutes+1) * time.Minute),
	}
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 5, ActiveConsumers: 0}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionRestart || decision.ReasonCode != models.ReasonStuckQueue {
		t.Fatalf("got %+v, want Restart/StuckQueue", decision)
	}
}

func TestEvaluate_MultiQueueConflictSuppressesRestart(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	mapping.Queues = []string{"orders", "refunds"}
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		FirstMessageSeenAt: now.Add(-time.Duration(mapping.ConsumerTimeoutMinutes+1) * time.Minute),
	}
	in := Input{
		Mapping: mapping,
		Queues: []models.QueueSnapshot{
			{QueueName: "orders", PendingMessages: 5, ActiveConsumers: 0},
			{QueueName: "refunds", PendingMessages: 0, ActiveConsumers: 2},
		},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionNone || !decision.Conflict || decision.ReasonCode != models.ReasonStuckQueue {
		t.Fatalf("got %+v, want None/Conflict/StuckQueue", decision)
	}
}

func TestEvaluate_CooldownBlocksAction(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.CooldownUntil = now.Add(2 * time.Minute)
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 10, ActiveConsumers: 0}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 0},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionNone || decision.ReasonCode != models.ReasonCooldown {
		t.Fatalf("got %+v, want None/Cooldown", decision)
	}
}

func TestEvaluate_ScheduleOverrideStartsEvenWhenIdle(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	in := Input{
		Mapping:                 mapping,
		Queues:                  []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 0, ActiveConsumers: 0}},
		State:                   freshState(),
		Now:                     now,
		CurrentStatus:           models.CurrentStatus{MinReplicas: 0},
		ScheduleActive:          true,
		ScheduleDesiredReplicas: 8,
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionStart || decision.ReasonCode != models.ReasonScheduleStart || decision.DesiredReplicas != 8 {
		t.Fatalf("got %+v, want Start/ScheduleStart with 8 replicas", decision)
	}
}

func TestEvaluate_ScheduleOverrideStillBlockedByCooldown(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.CooldownUntil = now.Add(2 * time.Minute)
	in := Input{
		Mapping:                 mapping,
		Queues:                  []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 0, ActiveConsumers: 0}},
		State:                   state,
		Now:                     now,
		CurrentStatus:           models.CurrentStatus{MinReplicas: 0},
		ScheduleActive:          true,
		ScheduleDesiredReplicas: 8,
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionStart || decision.ReasonCode != models.ReasonScheduleStart {
		t.Fatalf("Engine's own decision should still report ScheduleStart: got %+v", decision)
	}
	// Note: this decision's reason code is ScheduleStart, but the Action
	// Executor's own cooldown gate still suppresses it before any driver
	// call — see TestApply_CooldownSuppressesScheduleStart.
}

func TestEvaluate_RetryBudgetExhausted(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.RestartAttemptCount = mapping.MaxRestartAttempts
	state.LastRestartTime = now.Add(-1 * time.Minute)
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 5, ActiveConsumers: 0}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionNone || decision.ReasonCode != models.ReasonMaxAttemptsReached {
		t.Fatalf("got %+v, want None/MaxAttemptsReached", decision)
	}
}

func TestEvaluate_PostRestartVerificationSuppressesFurtherAction(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.LastRestart = now.Add(-1 * time.Minute)
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 5, ActiveConsumers: 0}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionNone || decision.ReasonCode != models.ReasonNone {
		t.Fatalf("got %+v, want a suppressed None/NoOp during the verification window", decision)
	}
}

func TestEvaluate_UnknownQueueBlocksIdleStop(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		LastMessageSeen:  now.Add(-20 * time.Minute),
		LastConsumerSeen: now.Add(-20 * time.Minute),
	}
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", Unknown: true}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	decision, _ := Evaluate(baseConfig(), in)
	if decision.Action != models.ActionNone {
		t.Fatalf("got %+v, a failed probe must never trigger Stop", decision)
	}
}

func TestEvaluate_AlertCadence(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		FirstMessageSeenAt: now.Add(-25 * time.Minute),
	}
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 5, ActiveConsumers: 1}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	_, alertsOut := Evaluate(baseConfig(), in)
	if len(alertsOut) != 1 || alertsOut[0].AlertNumber != 1 {
		t.Fatalf("got %+v, want one first alert after firstAlertMinutes elapses", alertsOut)
	}
}

func TestEvaluate_AlertCadenceFollowup(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		FirstMessageSeenAt:   now.Add(-40 * time.Minute),
		ProcessingAlertCount: 1,
		LastProcessingAlert:  now.Add(-6 * time.Minute),
	}
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 5, ActiveConsumers: 1}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	_, alertsOut := Evaluate(baseConfig(), in)
	if len(alertsOut) != 1 || alertsOut[0].AlertNumber != 2 {
		t.Fatalf("got %+v, want a second alert once the followup interval elapses", alertsOut)
	}
}

func TestEvaluate_AlertCadenceCapsAtMaxAlerts(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	cfg := baseConfig()
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		FirstMessageSeenAt:   now.Add(-time.Hour),
		ProcessingAlertCount: cfg.MaxAlerts,
		LastProcessingAlert:  now.Add(-10 * time.Minute),
	}
	in := Input{
		Mapping:       mapping,
		Queues:        []models.QueueSnapshot{{QueueName: "orders", PendingMessages: 5, ActiveConsumers: 1}},
		State:         state,
		Now:           now,
		CurrentStatus: models.CurrentStatus{MinReplicas: 3},
	}
	_, alertsOut := Evaluate(cfg, in)
	if len(alertsOut) != 0 {
		t.Fatalf("got %+v, want no further alerts once maxAlerts is reached", alertsOut)
	}
}

func TestShouldResetRestartCount_TrueWhenEveryQueueHasConsumers(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	state := freshState()
	state.QueueConsumerStatus["orders"] = models.QueueConsumerState{
		LastConsumerSeen:   now,
		HasActiveConsumers: true,
	}
	in := Input{
		Mapping: mapping,
		Queues:  []models.QueueSnapshot{{QueueName: "orders", ActiveConsumers: 1}},
		State:   state,
		Now:     now,
	}
	if !ShouldResetRestartCount(in) {
		t.Fatal("expected restart count reset when the only queue currently has an active consumer")
	}
}

func TestShouldResetRestartCount_FalseWhenAnyQueueUnknown(t *testing.T) {
	now := time.Now().UTC()
	mapping := baseMapping()
	in := Input{
		Mapping: mapping,
		Queues:  []models.QueueSnapshot{{QueueName: "orders", Unknown: true}},
		State:   freshState(),
		Now:     now,
	}
	if ShouldResetRestartCount(in) {
		t.Fatal("expected false when a queue's consumer presence could not be observed this tick")
	}
}
