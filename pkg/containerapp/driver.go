// Package containerapp drives the cloud container-app control plane: the
// only mutating interface the Action Executor ever calls.
package containerapp

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"

	"acaqueue/pkg/models"
)

// QuiescenceDelay is the pause between scaling to 0 and back up during a
// Restart, giving the platform time to propagate the downscale.
const QuiescenceDelay = 5 * time.Second

// Driver is the contract the Action Executor uses. All operations are
// idempotent with respect to the target replica count.
type Driver interface {
	Start(ctx context.Context, resourceGroup, app string, replicas int) error
	Stop(ctx context.Context, resourceGroup, app string) error
	Restart(ctx context.Context, resourceGroup, app string, replicas int) error
	GetStatus(ctx context.Context, resourceGroup, app string) (models.CurrentStatus, error)
}

// SwarmDriver implements Driver against Docker Swarm services, generalizing
// single-container Start/Stop/Restart (MikeSquared-Agency-Warren's
// internal/container/manager.go) to replicated-service scaling: a Swarm
// service's replica count is the closest open-source analogue to a cloud
// container app's minReplicas.
type SwarmDriver struct {
	docker *client.Client
	// resourceGroup is folded into the Swarm service name as a namespace
	// prefix, since Swarm has no resource-group concept of its own.
}

// NewSwarmDriver builds a client from the ambient Docker host environment.
func NewSwarmDriver() (*SwarmDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("containerapp: failed to build docker client: %w", err)
	}
	return &SwarmDriver{docker: cli}, nil
}

func serviceName(resourceGroup, app string) string {
	return resourceGroup + "_" + app
}

func (d *SwarmDriver) scale(ctx context.Context, resourceGroup, app string, replicas int) error {
	name := serviceName(resourceGroup, app)

	svc, _, err := d.docker.ServiceInspectWithRaw(ctx, name, types.ServiceInspectOptions{})
	if err != nil {
		return fmt.Errorf("containerapp: inspect service %q: %w", name, err)
	}

	n := uint64(replicas)
	spec := svc.Spec
	if spec.Mode.Replicated == nil {
		spec.Mode.Replicated = &swarm.ReplicatedService{}
	}
	spec.Mode.Replicated.Replicas = &n

	_, err = d.docker.ServiceUpdate(ctx, svc.ID, svc.Version, spec, types.ServiceUpdateOptions{})
	if err != nil {
		return fmt.Errorf("containerapp: scale service %q to %d: %w", name, replicas, err)
	}
	return nil
}

// Start scales minReplicas up to N.
func (d *SwarmDriver) Start(ctx context.Context, resourceGroup, app string, replicas int) error {
	return d.scale(ctx, resourceGroup, app, replicas)
}

// Stop scales minReplicas to 0.
func (d *SwarmDriver) Stop(ctx context.Context, resourceGroup, app string) error {
	return d.scale(ctx, resourceGroup, app, 0)
}

// Restart scales to 0, waits for the quiescence delay, then scales back up
// to N, honoring cancellation during the wait.
func (d *SwarmDriver) Restart(ctx context.Context, resourceGroup, app string, replicas int) error {
	if err := d.scale(ctx, resourceGroup, app, 0); err != nil {
		return err
	}

	select {
	case <-time.After(QuiescenceDelay):
	case <-ctx.Done():
		return fmt.Errorf("containerapp: restart %q canceled during quiescence: %w", serviceName(resourceGroup, app), ctx.Err())
	}

	return d.scale(ctx, resourceGroup, app, replicas)
}

// GetStatus returns the service's current replica count.
func (d *SwarmDriver) GetStatus(ctx context.Context, resourceGroup, app string) (models.CurrentStatus, error) {
	name := serviceName(resourceGroup, app)
	svc, _, err := d.docker.ServiceInspectWithRaw(ctx, name, types.ServiceInspectOptions{})
	if err != nil {
		return models.CurrentStatus{}, fmt.Errorf("containerapp: get status %q: %w", name, err)
	}
	if svc.Spec.Mode.Replicated == nil || svc.Spec.Mode.Replicated.Replicas == nil {
		return models.CurrentStatus{MinReplicas: 0}, nil
	}
	return models.CurrentStatus{MinReplicas: int(*svc.Spec.Mode.Replicated.Replicas)}, nil
}

func (d *SwarmDriver) Close() error {
	return d.docker.Close()
}
