package chat

import (
	"chat-relay/errors"
	"fmt"
	"net/url"
	"unicode/utf8"
)

// Destination is either Direct or Group, never both.
// The interface is sealed: only this package can add arms.
type Destination interface {
	isDestination()
}

type Direct struct {
	Recipient string
}

type Group struct {
	ChannelID string
}

func (Direct) isDestination() {}
func (Group) isDestination()  {}

// NewDestination builds the destination from the two optional fields of a send request.
func NewDestination(recipient, channelID string) (Destination, error) {
	switch {
	case recipient != "" && channelID != "":
		return nil, fmt.Errorf("%w: both recipient and channel are set", errors.ErrMalformedMessage)
	case recipient != "":
		return Direct{Recipient: recipient}, nil
	case channelID != "":
		return Group{ChannelID: channelID}, nil
	default:
		return nil, fmt.Errorf("%w: a recipient or a channel is required", errors.ErrMalformedMessage)
	}
}

func validateDestination(d Destination) error {
	switch dst := d.(type) {
	case Direct:
		if dst.Recipient == "" {
			return fmt.Errorf("%w: empty recipient", errors.ErrMalformedMessage)
		}
		if !utf8.ValidString(dst.Recipient) {
			return fmt.Errorf("%w: recipient is not valid UTF-8", errors.ErrMalformedMessage)
		}
	case Group:
		if dst.ChannelID == "" {
			return fmt.Errorf("%w: empty channel", errors.ErrMalformedMessage)
		}
		if !utf8.ValidString(dst.ChannelID) {
			return fmt.Errorf("%w: channel is not valid UTF-8", errors.ErrMalformedMessage)
		}
	case nil:
		return fmt.Errorf("%w: missing destination", errors.ErrMalformedMessage)
	default:
		return fmt.Errorf("%w: unsupported destination %T", errors.ErrMalformedMessage, d)
	}
	return nil
}

// ConversationKey is symmetric for direct messages so that A->B and B->A share one log.
// Identifiers are query-escaped so they never contain the key separators.
func ConversationKey(sender string, d Destination) string {
	switch dst := d.(type) {
	case Direct:
		return DirectKey(sender, dst.Recipient)
	case Group:
		return ChannelKey(dst.ChannelID)
	default:
		return ""
	}
}

func DirectKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("dm:%s|%s", url.QueryEscape(userA), url.QueryEscape(userB))
}

func ChannelKey(channelID string) string {
	return "ch:" + url.QueryEscape(channelID)
}
