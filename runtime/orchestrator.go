// Package runtime holds the live state of the relay: open connections, rooms
// and the background workers keeping them company.
// It orchestrates the system without containing transport logic.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"
)

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       *ConnectionRegistry
	router         *Router
	metrics        *observability.Metrics
	bus            contract.MessageBus
	instanceID     string
	metricInterval time.Duration
	extra          []contract.Worker
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewOrchestrator wires the registry and router to the supervised workers.
// bus may be nil when the relay runs alone.
func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry *ConnectionRegistry, router *Router, metrics *observability.Metrics,
	bus contract.MessageBus, instanceID string, metricInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		router:         router,
		metrics:        metrics,
		bus:            bus,
		instanceID:     instanceID,
		metricInterval: metricInterval,
	}
}

// Add registers extra workers (e.g. the gRPC health server) started along with the others.
func (o *Orchestrator) Add(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, w...)
}

// Start hands every worker to the supervisor and returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	// 1. Preparation phase (No Lock)
	telemetry := workers.NewTelemetryWorker(o.log, o.metrics, o.registry, o.router, o.metricInterval)
	var subscriber contract.Worker
	if o.bus != nil {
		subscriber = workers.NewBusSubscriberWorker(o.log, o.bus, o.router, o.metrics, o.instanceID)
	}

	// 2. Critical Section (Short Lock)
	o.mu.Lock()
	o.supervisor.Add(telemetry)
	if subscriber != nil {
		o.supervisor.Add(subscriber)
	}
	o.supervisor.Add(o.extra...)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	o.mu.Unlock()

	// 3. Execution phase (No Lock)
	o.log.Info("Starting orchestrator and all supervised workers", "instance", o.instanceID)
	go func() {
		defer close(done)
		o.supervisor.Run(ctx)
	}()
}

// Stop cancels every supervised worker and waits for them to return.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()

	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	o.log.Debug("All supervised workers stopped")
}
