// Package chat contains the core concepts of the messaging system.
// Messages are immutable once built and validated here.
package chat

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Message is the durable unit of communication.
// ID is zero until the message has been appended to the log.
type Message struct {
	ID            uuid.UUID
	Kind          Kind
	Body          string
	AttachmentRef string
	Sender        string
	Destination   Destination
	CreatedAt     time.Time
}

// NewMessage builds a validated message. Text bodies are trimmed.
func NewMessage(sender string, kind Kind, body, attachmentRef string, destination Destination, at time.Time) (Message, error) {
	message := Message{
		Kind:          kind,
		Body:          strings.TrimSpace(body),
		AttachmentRef: attachmentRef,
		Sender:        sender,
		Destination:   destination,
		CreatedAt:     at,
	}
	if err := message.Validate(); err != nil {
		return Message{}, err
	}
	return message, nil
}

// Validate checks every structural invariant of a message.
func (m Message) Validate() error {
	if m.Sender == "" {
		return fmt.Errorf("%w: sender is required", errors.ErrMalformedMessage)
	}
	if err := validateDestination(m.Destination); err != nil {
		return err
	}
	if !utf8.ValidString(m.Sender) || !utf8.ValidString(m.Body) || !utf8.ValidString(m.AttachmentRef) {
		return fmt.Errorf("%w: text is not valid UTF-8", errors.ErrMalformedMessage)
	}
	switch m.Kind {
	case KindText:
		if m.Body == "" {
			return fmt.Errorf("%w: text message requires a body", errors.ErrMalformedMessage)
		}
		if m.AttachmentRef != "" {
			return fmt.Errorf("%w: text message cannot carry an attachment", errors.ErrMalformedMessage)
		}
	case KindFile:
		if m.AttachmentRef == "" {
			return fmt.Errorf("%w: file message requires an attachment reference", errors.ErrMalformedMessage)
		}
		if m.Body != "" {
			return fmt.Errorf("%w: file message cannot carry a body", errors.ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", errors.ErrMalformedMessage, m.Kind)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("%w: creation time is required", errors.ErrMalformedMessage)
	}
	return nil
}

// ConversationKey identifies the log a message belongs to.
func (m Message) ConversationKey() string {
	return ConversationKey(m.Sender, m.Destination)
}
