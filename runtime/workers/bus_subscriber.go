package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
)

var _ contract.Worker = (*BusSubscriberWorker)(nil)

// BusSubscriberWorker delivers messages published by other relay instances to
// the local members of their room. Messages this instance published itself are
// skipped, they were already delivered locally.
type BusSubscriberWorker struct {
	log        *slog.Logger
	bus        contract.MessageBus
	router     contract.IRouter
	metrics    *observability.Metrics
	instanceID string
}

func NewBusSubscriberWorker(log *slog.Logger, bus contract.MessageBus,
	router contract.IRouter, metrics *observability.Metrics, instanceID string) *BusSubscriberWorker {
	return &BusSubscriberWorker{log: log, bus: bus, router: router, metrics: metrics, instanceID: instanceID}
}

// Run blocks until the subscription ends. An error makes the supervisor resubscribe.
func (w *BusSubscriberWorker) Run(ctx context.Context) error {
	w.log.Info("Subscribing to relay bus", "instance", w.instanceID)
	return w.bus.Subscribe(ctx, func(msg contract.BusMessage) {
		w.Deliver(ctx, msg)
	})
}

func (w *BusSubscriberWorker) Deliver(ctx context.Context, msg contract.BusMessage) {
	if msg.Origin == w.instanceID {
		w.metrics.BusMessages.WithLabelValues("skipped").Inc()
		return
	}
	w.metrics.BusMessages.WithLabelValues("received").Inc()

	delivery, err := w.router.Broadcast(ctx, msg.Message.RoomID, msg.Message)
	if err != nil {
		w.log.Warn("Failed to broadcast remote message",
			"origin", msg.Origin,
			"room_id", msg.Message.RoomID,
			"error", err)
		return
	}
	w.log.Debug("Remote message delivered",
		"origin", msg.Origin,
		"room_id", delivery.Room,
		"recipients", delivery.Recipients)
}
