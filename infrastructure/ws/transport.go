package ws

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

const maxFrameBytes = 128 << 10

// Transport adapts a websocket connection to a session.
// ReadEvent must be called from a single goroutine, and so must Write.
type Transport struct {
	conn *websocket.Conn
}

func NewTransport(conn *websocket.Conn) *Transport {
	conn.SetReadLimit(maxFrameBytes)
	return &Transport{conn: conn}
}

func (t *Transport) ReadEvent() (chat.InboundEvent, error) {
	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		return chat.InboundEvent{}, err
	}
	if messageType != websocket.TextMessage {
		return chat.InboundEvent{}, fmt.Errorf("%w: binary frames are not supported", errors.ErrMalformedMessage)
	}
	return DecodeEvent(data)
}

// Write sends one frame, bounded by the deadline of ctx when it has one.
func (t *Transport) Write(ctx context.Context, out chat.Outbound) error {
	data, err := EncodeOutbound(out)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) Close() error {
	return t.conn.Close()
}
