package chat

import (
	"chat-relay/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SendRequest is the inbound send event once decoded from the transport.
// Exactly one of Recipient and ChannelID must be set.
type SendRequest struct {
	Kind          Kind   `validate:"required,oneof=text file"`
	Body          string `validate:"omitempty,max=65536"`
	AttachmentRef string `validate:"omitempty,max=2048"`
	Recipient     string `validate:"omitempty,max=256"`
	ChannelID     string `validate:"omitempty,max=256"`
	TempID        string `validate:"omitempty,max=256"`
}

// Validate checks the request shape before any domain rule is applied.
func (r SendRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	return nil
}

// Destination resolves the tagged destination of the request.
func (r SendRequest) Destination() (Destination, error) {
	return NewDestination(r.Recipient, r.ChannelID)
}

type DirectHistoryCommand struct {
	UserID string
	PeerID string
}

type ChannelHistoryCommand struct {
	UserID    string
	ChannelID string
}

type CreateChannelCommand struct {
	Admin   string   `validate:"required"`
	Name    string   `validate:"required,max=128"`
	Members []string `validate:"dive,required"`
}

func (c CreateChannelCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidChannel, err)
	}
	return nil
}

type SearchCommand struct {
	UserID   string
	Terms    string
	Language string
	Limit    int
}
