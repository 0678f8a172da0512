//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is the transport handle the relay writes to.
// The relay never owns it: opening and closing belong to the transport.
type Connection interface {
	ID() string
	IsOpen() bool
	Send(data []byte) error
	Close() error
}

type IConnectionRegistry interface {
	Connect(conn Connection)
	Disconnect(conn Connection, reason string) bool
	Contains(connID string) bool
	Len() int
}

type IRouter interface {
	Join(roomID domain.RoomID, conn Connection) bool
	Leave(roomID domain.RoomID, conn Connection) bool
	LeaveAll(conn Connection) []domain.RoomID
	Broadcast(ctx context.Context, roomID domain.RoomID, msg domain.ChatMessage) (domain.Delivery, error)
	HandleMessage(ctx context.Context, conn Connection, msg domain.ChatMessage) (domain.Delivery, error)
}

// BusMessage travels between relay instances sharing the same rooms.
type BusMessage struct {
	Origin  string             `json:"origin"`
	Message domain.ChatMessage `json:"message"`
}

type MessageBus interface {
	Publish(ctx context.Context, msg BusMessage) error
	Subscribe(ctx context.Context, fn func(BusMessage)) error
	Close() error
}

type Censor interface {
	Censor(original string) (string, []string)
}
