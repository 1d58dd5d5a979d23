package models

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	s := NewRuntimeState("worker-app")
	s.AppendRestartAttempt(RestartAttempt{Timestamp: now, Reason: ReasonStuckQueue, AttemptNumber: 1, Success: true})
	s.QueueConsumerStatus["orders"] = QueueConsumerState{
		LastConsumerSeen:   now,
		HasActiveConsumers: true,
		MessageCount:       4,
	}

	s.EncodeForStorage()

	// Simulate a round-trip through the database: only the JSON columns
	// survive, the decoded view must be rebuilt from them.
	roundTripped := RuntimeState{
		PartitionKey:            s.PartitionKey,
		ContainerApp:            s.ContainerApp,
		RestartHistoryJSON:      s.RestartHistoryJSON,
		QueueConsumerStatusJSON: s.QueueConsumerStatusJSON,
	}
	roundTripped.DecodeFromStorage()

	if len(roundTripped.RestartHistory) != 1 || roundTripped.RestartHistory[0].Reason != ReasonStuckQueue {
		t.Fatalf("RestartHistory = %+v", roundTripped.RestartHistory)
	}
	qs, ok := roundTripped.QueueConsumerStatus["orders"]
	if !ok || qs.MessageCount != 4 || !qs.HasActiveConsumers {
		t.Fatalf("QueueConsumerStatus[orders] = %+v", qs)
	}
}

func TestAppendRestartAttemptBoundsHistory(t *testing.T) {
	s := NewRuntimeState("worker-app")
	now := time.Now().UTC()
	for i := 0; i < MaxRestartHistory+5; i++ {
		s.AppendRestartAttempt(RestartAttempt{Timestamp: now, AttemptNumber: i})
	}
	if len(s.RestartHistory) != MaxRestartHistory {
		t.Fatalf("len(RestartHistory) = %d, want %d", len(s.RestartHistory), MaxRestartHistory)
	}
	if s.RestartHistory[len(s.RestartHistory)-1].AttemptNumber != MaxRestartHistory+4 {
		t.Error("expected the bounded history to keep the most recent entries")
	}
}

func TestPruneStaleQueuesRemovesDroppedQueues(t *testing.T) {
	s := NewRuntimeState("worker-app")
	s.QueueConsumerStatus["orders"] = QueueConsumerState{MessageCount: 1}
	s.QueueConsumerStatus["stale"] = QueueConsumerState{MessageCount: 2}

	s.PruneStaleQueues([]string{"orders"})

	if _, ok := s.QueueConsumerStatus["stale"]; ok {
		t.Error("expected stale queue entry to be pruned")
	}
	if _, ok := s.QueueConsumerStatus["orders"]; !ok {
		t.Error("expected current queue entry to survive pruning")
	}
}

func TestLastNRestarts(t *testing.T) {
	s := NewRuntimeState("worker-app")
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		s.AppendRestartAttempt(RestartAttempt{Timestamp: now, AttemptNumber: i})
	}
	last := s.LastNRestarts(2)
	if len(last) != 2 || last[0].AttemptNumber != 1 || last[1].AttemptNumber != 2 {
		t.Fatalf("LastNRestarts(2) = %+v", last)
	}
}
