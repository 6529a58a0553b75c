// Package registry supplies the current set of backend descriptors for the
// generic routing path. The routing layer treats every lookup as a
// point-in-time snapshot; registries may refresh underneath it.
package registry

import (
	"context"

	"github.com/agentlane/relay"
)

// Registry provides snapshots of the available routing backends.
type Registry interface {
	Snapshot(ctx context.Context) ([]*relay.BackendDescriptor, error)
}

// Static serves a fixed descriptor set, typically loaded from configuration.
type Static struct {
	backends []*relay.BackendDescriptor
}

// NewStatic creates a registry over a fixed descriptor set. Invalid
// descriptors are dropped.
func NewStatic(backends []*relay.BackendDescriptor) *Static {
	kept := make([]*relay.BackendDescriptor, 0, len(backends))
	for _, backend := range backends {
		if backend != nil && backend.Validate() == nil {
			kept = append(kept, backend)
		}
	}
	return &Static{backends: kept}
}

// Snapshot returns a copy of the descriptor set.
func (s *Static) Snapshot(ctx context.Context) ([]*relay.BackendDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snapshot := make([]*relay.BackendDescriptor, len(s.backends))
	copy(snapshot, s.backends)
	return snapshot, nil
}

// Composite merges snapshots from multiple registries, in order.
type Composite struct {
	registries []Registry
}

// NewComposite creates a registry that concatenates the snapshots of its
// members.
func NewComposite(registries ...Registry) *Composite {
	return &Composite{registries: registries}
}

// Snapshot concatenates member snapshots. A failing member fails the whole
// snapshot; callers decide whether a stale candidate set is acceptable.
func (c *Composite) Snapshot(ctx context.Context) ([]*relay.BackendDescriptor, error) {
	var merged []*relay.BackendDescriptor
	for _, registry := range c.registries {
		backends, err := registry.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		merged = append(merged, backends...)
	}
	return merged, nil
}
