package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Hooks adapts a pair of functions to Component. Either may be nil.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

func (h Hooks) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

func (h Hooks) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}

type named struct {
	name string
	Component
}

type Runtime struct {
	components  []named
	stopTimeout time.Duration
}

func NewRuntime(stopTimeout time.Duration) *Runtime {
	return &Runtime{stopTimeout: stopTimeout}
}

// Register appends a component; components start in registration order and
// stop in reverse.
func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, named{name: name, Component: component})
}

func (r *Runtime) Start(ctx context.Context) error {
	started := make([]named, 0, len(r.components))
	for _, component := range r.components {
		if err := component.Start(ctx); err != nil {
			_ = stopComponents(ctx, started)
			return fmt.Errorf("start %s: %w", component.name, err)
		}
		log.WithField("context", "lifecycle").WithField("component", component.name).Debug("started")
		started = append(started, component)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	return stopComponents(ctx, r.components)
}

// Run starts every component, blocks until ctx is done and stops them with a
// fresh context bounded by the stop timeout.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.stopTimeout)
	defer cancel()
	return r.Stop(stopCtx)
}

func stopComponents(ctx context.Context, components []named) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		if err := component.Stop(ctx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("stop %s: %w", component.name, err))
			continue
		}
		log.WithField("context", "lifecycle").WithField("component", component.name).Debug("stopped")
	}
	return stopErr
}
