package ws

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		expected chat.InboundEvent
		err      error
	}{
		{
			name:  "direct text",
			frame: `{"event":"send-direct","data":{"kind":"text","body":"hi","recipient":"bob","tempClientMessageId":"t1"}}`,
			expected: chat.InboundEvent{Name: chat.EventSendDirect, Send: chat.SendRequest{
				Kind: chat.KindText, Body: "hi", Recipient: "bob", TempID: "t1",
			}},
		},
		{
			name:  "group file",
			frame: `{"event":"send-group","data":{"kind":"file","attachmentRef":"up/1.png","channelId":"c1","tempClientMessageId":"t2"}}`,
			expected: chat.InboundEvent{Name: chat.EventSendGroup, Send: chat.SendRequest{
				Kind: chat.KindFile, AttachmentRef: "up/1.png", ChannelID: "c1", TempID: "t2",
			}},
		},
		{
			name:     "unknown event keeps temporary id",
			frame:    `{"event":"typing","data":{"tempClientMessageId":"t3"}}`,
			expected: chat.InboundEvent{Name: "typing", Send: chat.SendRequest{TempID: "t3"}},
			err:      errors.ErrUnknownEvent,
		},
		{
			name:     "not json",
			frame:    `hello`,
			expected: chat.InboundEvent{},
			err:      errors.ErrMalformedMessage,
		},
		{
			name:     "missing data",
			frame:    `{"event":"send-direct"}`,
			expected: chat.InboundEvent{Name: chat.EventSendDirect},
			err:      errors.ErrMalformedMessage,
		},
		{
			name:  "wrong field type",
			frame: `{"event":"send-direct","data":{"kind":"text","body":42,"recipient":"bob","tempClientMessageId":"t4"}}`,
			expected: chat.InboundEvent{Name: chat.EventSendDirect, Send: chat.SendRequest{
				Kind: chat.KindText, Recipient: "bob", TempID: "t4",
			}},
			err: errors.ErrMalformedMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			event, err := DecodeEvent([]byte(tt.frame))
			if tt.err != nil {
				req.ErrorIs(err, tt.err)
			} else {
				req.NoError(err)
			}
			req.Equal(tt.expected, event)
		})
	}
}

func TestEncodeOutbound_Push(t *testing.T) {
	req := require.New(t)
	id := uuid.New()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	data, err := EncodeOutbound(chat.Push{
		Message: chat.Message{
			ID: id, Kind: chat.KindText, Body: "hello", Sender: "alice",
			Destination: chat.Group{ChannelID: "c1"}, CreatedAt: at,
		},
		TempID: "t1",
	})
	req.NoError(err)

	v, err := fastjson.ParseBytes(data)
	req.NoError(err)
	req.Equal("receive-group", string(v.GetStringBytes("event")))
	req.Equal(id.String(), string(v.GetStringBytes("data", "id")))
	req.Equal("c1", string(v.GetStringBytes("data", "channelId")))
	req.Equal("t1", string(v.GetStringBytes("data", "tempClientMessageId")))
	req.Equal("2024-05-01T10:00:00Z", string(v.GetStringBytes("data", "createdAt")))
	req.False(v.Exists("data", "recipient"))
	req.False(v.Exists("data", "attachmentRef"))
}

func TestEncodeOutbound_Failure(t *testing.T) {
	req := require.New(t)

	data, err := EncodeOutbound(chat.SendFailure{TempID: "t9", Code: "CHANNEL_NOT_FOUND", Reason: "channel not found"})
	req.NoError(err)

	v, err := fastjson.ParseBytes(data)
	req.NoError(err)
	req.Equal("send-failed", string(v.GetStringBytes("event")))
	req.Equal("t9", string(v.GetStringBytes("data", "tempClientMessageId")))
	req.Equal("CHANNEL_NOT_FOUND", string(v.GetStringBytes("data", "code")))
}
