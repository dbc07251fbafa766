// Package ws is the websocket side of a session: frame decoding, encoding and the transport itself.
package ws

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// Frame is the envelope of every websocket message, in both directions.
type Frame struct {
	Event chat.EventName `json:"event"`
	Data  any            `json:"data"`
}

// MessagePayload is the client view of a stored message.
type MessagePayload struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Body          string `json:"body,omitempty"`
	AttachmentRef string `json:"attachmentRef,omitempty"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient,omitempty"`
	ChannelID     string `json:"channelId,omitempty"`
	CreatedAt     string `json:"createdAt"`
	TempID        string `json:"tempClientMessageId,omitempty"`
}

type failurePayload struct {
	TempID string `json:"tempClientMessageId,omitempty"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func NewMessagePayload(message chat.Message, tempID string) MessagePayload {
	payload := MessagePayload{
		ID:            message.ID.String(),
		Kind:          string(message.Kind),
		Body:          message.Body,
		AttachmentRef: message.AttachmentRef,
		Sender:        message.Sender,
		CreatedAt:     message.CreatedAt.UTC().Format(time.RFC3339Nano),
		TempID:        tempID,
	}
	switch dst := message.Destination.(type) {
	case chat.Direct:
		payload.Recipient = dst.Recipient
	case chat.Group:
		payload.ChannelID = dst.ChannelID
	}
	return payload
}

// DecodeEvent parses an inbound frame:
//
//	{"event":"send-direct","data":{"kind":"text","body":"hi","recipient":"bob","tempClientMessageId":"t1"}}
//
// Errors wrap ErrMalformedMessage or ErrUnknownEvent. The returned event still
// carries whatever temporary id could be read so the failure can be correlated.
func DecodeEvent(data []byte) (chat.InboundEvent, error) {
	parser := parserPool.Get()
	defer parserPool.Put(parser)

	v, err := parser.ParseBytes(data)
	if err != nil {
		return chat.InboundEvent{}, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	if v.Type() != fastjson.TypeObject {
		return chat.InboundEvent{}, fmt.Errorf("%w: frame must be an object", errors.ErrMalformedMessage)
	}

	payload := v.Get("data")
	event := chat.InboundEvent{
		Name: chat.EventName(v.GetStringBytes("event")),
		Send: chat.SendRequest{
			Kind:          chat.Kind(payload.GetStringBytes("kind")),
			Body:          string(payload.GetStringBytes("body")),
			AttachmentRef: string(payload.GetStringBytes("attachmentRef")),
			Recipient:     string(payload.GetStringBytes("recipient")),
			ChannelID:     string(payload.GetStringBytes("channelId")),
			TempID:        string(payload.GetStringBytes("tempClientMessageId")),
		},
	}

	switch event.Name {
	case chat.EventSendDirect, chat.EventSendGroup:
	default:
		return event, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, event.Name)
	}
	if payload == nil || payload.Type() != fastjson.TypeObject {
		return event, fmt.Errorf("%w: data must be an object", errors.ErrMalformedMessage)
	}
	for _, field := range []string{"kind", "body", "attachmentRef", "recipient", "channelId", "tempClientMessageId"} {
		if f := payload.Get(field); f != nil && f.Type() != fastjson.TypeString && f.Type() != fastjson.TypeNull {
			return event, fmt.Errorf("%w: %s must be a string", errors.ErrMalformedMessage, field)
		}
	}
	return event, nil
}

// EncodeOutbound renders a push or a failure as a frame.
func EncodeOutbound(out chat.Outbound) ([]byte, error) {
	var data any
	switch o := out.(type) {
	case chat.Push:
		data = NewMessagePayload(o.Message, o.TempID)
	case chat.SendFailure:
		data = failurePayload{TempID: o.TempID, Code: o.Code, Reason: o.Reason}
	default:
		return nil, fmt.Errorf("unsupported outbound %T", out)
	}
	return json.Marshal(Frame{Event: out.EventName(), Data: data})
}
