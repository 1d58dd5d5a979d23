package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"acaqueue/pkg/audit"
	"acaqueue/pkg/containerapp"
	"acaqueue/pkg/models"
	"acaqueue/pkg/notify"
)

func testMapping() *models.AppMapping {
	m := &models.AppMapping{ResourceGroup: "rg1", ContainerApp: "worker-app", DesiredReplicas: 3, Queues: []string{"orders"}}
	m.ApplyDefaults()
	return m
}

func TestApply_StartSuccessSetsCooldownAndNotifies(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	sink := notify.NewFakeSink()
	trail := audit.NewFakeTrail()
	e := New(driver, sink, trail, Config{CooldownMinutes: 5})

	mapping := testMapping()
	state := models.NewRuntimeState(mapping.ContainerApp)
	now := time.Now().UTC()

	decision := models.Decision{Action: models.ActionStart, DesiredReplicas: 3, ReasonCode: models.ReasonDemandArrived}
	e.Apply(context.Background(), mapping, decision, &state, now)

	if len(driver.Calls) != 1 || driver.Calls[0] != "Start:rg1/worker-app" {
		t.Fatalf("driver calls = %v", driver.Calls)
	}
	if state.LastActionResult != "Success" {
		t.Errorf("LastActionResult = %q, want Success", state.LastActionResult)
	}
	if !state.CooldownUntil.After(now) {
		t.Error("expected CooldownUntil to be pushed into the future")
	}
	if len(sink.Sent) != 1 || sink.Sent[0].Kind != "success" {
		t.Errorf("Sent = %+v, want one success notification", sink.Sent)
	}
	if len(trail.Records) != 1 || trail.Records[0].ActionResult != "Success" {
		t.Errorf("Records = %+v, want one Success record", trail.Records)
	}
}

func TestApply_DriverFailureRecordsFailureWithoutExtendingCooldown(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	driver.FailNext("rg1", "worker-app", errors.New("swarm unavailable"))
	sink := notify.NewFakeSink()
	trail := audit.NewFakeTrail()
	e := New(driver, sink, trail, Config{CooldownMinutes: 5})

	mapping := testMapping()
	state := models.NewRuntimeState(mapping.ContainerApp)
	now := time.Now().UTC()

	decision := models.Decision{Action: models.ActionStart, DesiredReplicas: 3, ReasonCode: models.ReasonDemandArrived}
	e.Apply(context.Background(), mapping, decision, &state, now)

	if state.LastActionResult != "Failed: CloudDriverFailed" {
		t.Errorf("LastActionResult = %q", state.LastActionResult)
	}
	if !state.CooldownUntil.IsZero() {
		t.Error("a failed action must not set a cooldown")
	}
	if len(sink.Sent) != 1 || sink.Sent[0].Kind != "failure" {
		t.Errorf("Sent = %+v, want one failure notification", sink.Sent)
	}
}

func TestApply_CooldownSuppressesScheduleStart(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	sink := notify.NewFakeSink()
	trail := audit.NewFakeTrail()
	e := New(driver, sink, trail, Config{CooldownMinutes: 5})

	mapping := testMapping()
	state := models.NewRuntimeState(mapping.ContainerApp)
	now := time.Now().UTC()
	state.CooldownUntil = now.Add(2 * time.Minute)

	decision := models.Decision{Action: models.ActionStart, DesiredReplicas: 3, ReasonCode: models.ReasonScheduleStart}
	e.Apply(context.Background(), mapping, decision, &state, now)

	if len(driver.Calls) != 0 {
		t.Fatalf("driver calls = %v, want none while cooldown is active even for a schedule-triggered start", driver.Calls)
	}
}

func TestApply_ConflictNotifiesWithoutDriverCall(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	sink := notify.NewFakeSink()
	trail := audit.NewFakeTrail()
	e := New(driver, sink, trail, Config{CooldownMinutes: 5})

	mapping := testMapping()
	state := models.NewRuntimeState(mapping.ContainerApp)

	decision := models.Decision{Action: models.ActionNone, Conflict: true, ReasonCode: models.ReasonStuckQueue}
	e.Apply(context.Background(), mapping, decision, &state, time.Now().UTC())

	if len(driver.Calls) != 0 {
		t.Fatalf("driver calls = %v, want none for a conflict", driver.Calls)
	}
	if len(sink.Sent) != 1 || sink.Sent[0].Kind != "conflict" {
		t.Errorf("Sent = %+v, want one conflict notification", sink.Sent)
	}
}

func TestApply_NoneIsANoop(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	sink := notify.NewFakeSink()
	trail := audit.NewFakeTrail()
	e := New(driver, sink, trail, Config{CooldownMinutes: 5})

	mapping := testMapping()
	state := models.NewRuntimeState(mapping.ContainerApp)

	e.Apply(context.Background(), mapping, models.Decision{Action: models.ActionNone}, &state, time.Now().UTC())

	if len(driver.Calls) != 0 || len(sink.Sent) != 0 || len(trail.Records) != 0 {
		t.Fatalf("expected no side effects for a None decision")
	}
}

func TestTryLock_SerializesPerApp(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	e := New(driver, notify.NewFakeSink(), audit.NewFakeTrail(), Config{})

	unlock, ok := e.TryLock("worker-app")
	if !ok {
		t.Fatal("expected first TryLock to succeed")
	}
	if _, ok := e.TryLock("worker-app"); ok {
		t.Fatal("expected a second concurrent TryLock on the same app to fail")
	}
	unlock()
	if _, ok := e.TryLock("worker-app"); !ok {
		t.Fatal("expected TryLock to succeed again after unlock")
	}
}

func TestApply_ScheduleStartSuccessSetsScheduleActiveUntil(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	sink := notify.NewFakeSink()
	trail := audit.NewFakeTrail()
	e := New(driver, sink, trail, Config{CooldownMinutes: 5})

	mapping := testMapping()
	state := models.NewRuntimeState(mapping.ContainerApp)
	now := time.Now().UTC()
	windowEnd := now.Add(30 * time.Minute)

	decision := models.Decision{Action: models.ActionStart, DesiredReplicas: 3, ReasonCode: models.ReasonScheduleStart, ScheduleWindowEnd: windowEnd}
	e.Apply(context.Background(), mapping, decision, &state, now)

	if !state.ScheduleActiveUntil.Equal(windowEnd) {
		t.Errorf("ScheduleActiveUntil = %v, want %v", state.ScheduleActiveUntil, windowEnd)
	}
	if state.LastScheduleStart.IsZero() {
		t.Error("expected LastScheduleStart to be set")
	}
}

func TestApply_MaxAttemptsReachedNotifiesOnce(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	sink := notify.NewFakeSink()
	trail := audit.NewFakeTrail()
	e := New(driver, sink, trail, Config{CooldownMinutes: 5})

	mapping := testMapping()
	state := models.NewRuntimeState(mapping.ContainerApp)
	now := time.Now().UTC()

	decision := models.Decision{Action: models.ActionNone, ReasonCode: models.ReasonMaxAttemptsReached}
	e.Apply(context.Background(), mapping, decision, &state, now)

	if len(driver.Calls) != 0 {
		t.Fatalf("driver calls = %v, want none for MaxAttemptsReached", driver.Calls)
	}
	if len(sink.Sent) != 1 || sink.Sent[0].Kind != "failure" {
		t.Fatalf("Sent = %+v, want one failure notification", sink.Sent)
	}
	if state.LastActionResult != "Failed: MaxAttemptsReached" {
		t.Errorf("LastActionResult = %q", state.LastActionResult)
	}

	// A second tick with the same decision must not re-notify: the
	// transition already happened.
	e.Apply(context.Background(), mapping, decision, &state, now.Add(time.Minute))
	if len(sink.Sent) != 1 {
		t.Fatalf("Sent = %+v, want still exactly one notification after a repeat tick", sink.Sent)
	}
}

func TestRestartAppendsHistoryOnSuccessAndFailure(t *testing.T) {
	driver := containerapp.NewFakeDriver()
	e := New(driver, notify.NewFakeSink(), audit.NewFakeTrail(), Config{CooldownMinutes: 1})

	mapping := testMapping()
	state := models.NewRuntimeState(mapping.ContainerApp)
	now := time.Now().UTC()

	decision := models.Decision{Action: models.ActionRestart, DesiredReplicas: 3, ReasonCode: models.ReasonStuckQueue}
	e.Apply(context.Background(), mapping, decision, &state, now)

	if state.RestartAttemptCount != 1 {
		t.Fatalf("RestartAttemptCount = %d, want 1", state.RestartAttemptCount)
	}
	if len(state.RestartHistory) != 1 || !state.RestartHistory[0].Success {
		t.Fatalf("RestartHistory = %+v, want one successful entry", state.RestartHistory)
	}

	driver.FailNext("rg1", "worker-app", errors.New("swarm unavailable"))
	e.Apply(context.Background(), mapping, decision, &state, now.Add(2*time.Minute))

	if state.RestartAttemptCount != 2 {
		t.Fatalf("RestartAttemptCount = %d, want 2 after the failed restart", state.RestartAttemptCount)
	}
	if len(state.RestartHistory) != 2 || state.RestartHistory[1].Success {
		t.Fatalf("RestartHistory = %+v, want a second, failed entry", state.RestartHistory)
	}
}
