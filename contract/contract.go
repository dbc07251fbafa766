//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain/chat"
	"context"
	"reflect"

	"github.com/google/uuid"
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

// Connection is a routable handle on one live client connection.
// Push must never block: it either enqueues the push or fails immediately.
type Connection interface {
	ID() uuid.UUID
	Push(p chat.Push) error
}

// IPresenceRegistry maps a user to its single live connection.
type IPresenceRegistry interface {
	Bind(userID string, conn Connection) (Connection, bool)
	Lookup(userID string) (Connection, bool)
	Unbind(userID string, conn Connection) bool
	Count() int
}

// IRouter persists a send request and fans the confirmed message out.
type IRouter interface {
	Send(ctx context.Context, senderID string, req chat.SendRequest) (chat.Message, error)
}

// ChannelDirectory is the read side of the channel collaborator.
type ChannelDirectory interface {
	GetChannel(ctx context.Context, channelID string) (chat.Channel, error)
}

// MessageSink is notified of every message once it is durably stored.
type MessageSink interface {
	Consume(ctx context.Context, message chat.Message) error
}

// Transport is the wire side of a session.
// ReadEvent blocks until a frame arrives; errors wrapping ErrMalformedMessage
// mean the frame was unreadable but the transport is still usable.
type Transport interface {
	ReadEvent() (chat.InboundEvent, error)
	Write(ctx context.Context, out chat.Outbound) error
	Close() error
}
