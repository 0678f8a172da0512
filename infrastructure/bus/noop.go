package bus

import (
	"chat-relay/contract"
	"context"
)

var _ contract.MessageBus = Noop{}

// Noop is used when the relay runs alone: nothing is published and the
// subscription simply waits for shutdown.
type Noop struct{}

func (Noop) Publish(context.Context, contract.BusMessage) error { return nil }

func (Noop) Subscribe(ctx context.Context, _ func(contract.BusMessage)) error {
	<-ctx.Done()
	return nil
}

func (Noop) Close() error { return nil }
