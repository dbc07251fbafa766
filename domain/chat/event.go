package chat

type EventName string

const (
	EventSendDirect    EventName = "send-direct"
	EventSendGroup     EventName = "send-group"
	EventReceiveDirect EventName = "receive-direct"
	EventReceiveGroup  EventName = "receive-group"
	EventSendFailed    EventName = "send-failed"
)

// InboundEvent is a decoded client frame.
type InboundEvent struct {
	Name EventName
	Send SendRequest
}

// Outbound is anything a session writes back to its transport.
type Outbound interface {
	EventName() EventName
}

// Push is the confirmed message sent to every present recipient, the sender included.
// TempID echoes the sender's correlation id; only the sender can match it.
type Push struct {
	Message Message
	TempID  string
}

func (p Push) EventName() EventName {
	switch p.Message.Destination.(type) {
	case Group:
		return EventReceiveGroup
	default:
		return EventReceiveDirect
	}
}

// SendFailure reports a rejected send to the originating session only.
type SendFailure struct {
	TempID string
	Code   string
	Reason string
}

func (SendFailure) EventName() EventName {
	return EventSendFailed
}
