package notify

import (
	"context"
	"sync"

	"acaqueue/pkg/models"
)

// Sent records one fake notification call for test assertions.
type Sent struct {
	Kind         string
	ContainerApp string
	Action       models.Action
	FailureKind  string
	Queue        string
}

// FakeSink collects calls in memory instead of sending mail.
type FakeSink struct {
	mu   sync.Mutex
	Sent []Sent
}

func NewFakeSink() *FakeSink { return &FakeSink{} }

func (f *FakeSink) NotifyActionSuccess(ctx context.Context, mapping *models.AppMapping, action models.Action, state models.RuntimeState) error {
	f.record(Sent{Kind: "success", ContainerApp: mapping.ContainerApp, Action: action})
	return nil
}

func (f *FakeSink) NotifyActionFailure(ctx context.Context, mapping *models.AppMapping, action models.Action, failureKind string, state models.RuntimeState) error {
	f.record(Sent{Kind: "failure", ContainerApp: mapping.ContainerApp, Action: action, FailureKind: failureKind})
	return nil
}

func (f *FakeSink) NotifyConflict(ctx context.Context, mapping *models.AppMapping) error {
	f.record(Sent{Kind: "conflict", ContainerApp: mapping.ContainerApp})
	return nil
}

func (f *FakeSink) NotifyProcessingAlert(ctx context.Context, mapping *models.AppMapping, alertEmails []string, alert models.ProcessingAlert) error {
	f.record(Sent{Kind: "processing_alert", ContainerApp: mapping.ContainerApp, Queue: alert.QueueName})
	return nil
}

func (f *FakeSink) record(s Sent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, s)
}
