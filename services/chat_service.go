//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/infrastructure/storage"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

type IChatService interface {
	DirectHistory(ctx context.Context, cmd chat.DirectHistoryCommand) ([]chat.Message, error)
	ChannelHistory(ctx context.Context, cmd chat.ChannelHistoryCommand) ([]chat.Message, error)
	CreateChannel(ctx context.Context, cmd chat.CreateChannelCommand) (chat.Channel, error)
	UserChannels(ctx context.Context, userID string) ([]chat.Channel, error)
	Contacts(ctx context.Context, userID string) ([]chat.Contact, error)
	Search(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error)
}

// ChatService serves the request/response side of the relay.
// Real-time sends never go through here.
type ChatService struct {
	log         *slog.Logger
	messages    storage.IMessageRepository
	channels    storage.IChannelRepository
	search      storage.ISearchIndex
	searchLimit int
}

func NewChatService(log *slog.Logger, messages storage.IMessageRepository, channels storage.IChannelRepository,
	search storage.ISearchIndex, searchLimit int) *ChatService {
	return &ChatService{log: log, messages: messages, channels: channels, search: search, searchLimit: searchLimit}
}

// DirectHistory returns the conversation between the caller and a peer, oldest first.
func (s *ChatService) DirectHistory(ctx context.Context, cmd chat.DirectHistoryCommand) ([]chat.Message, error) {
	if cmd.PeerID == "" {
		return nil, fmt.Errorf("%w: peer is required", errors.ErrMalformedMessage)
	}
	return s.messages.QueryDirect(ctx, cmd.UserID, cmd.PeerID)
}

// ChannelHistory returns the messages of an existing channel, oldest first.
func (s *ChatService) ChannelHistory(ctx context.Context, cmd chat.ChannelHistoryCommand) ([]chat.Message, error) {
	if _, err := s.channels.GetChannel(ctx, cmd.ChannelID); err != nil {
		return nil, err
	}
	return s.messages.QueryChannel(ctx, cmd.ChannelID)
}

func (s *ChatService) CreateChannel(ctx context.Context, cmd chat.CreateChannelCommand) (chat.Channel, error) {
	channel, err := s.channels.CreateChannel(ctx, cmd)
	if err != nil {
		return chat.Channel{}, err
	}
	s.log.Info("Channel created", "channel", channel.ID, "admin", channel.Admin, "members", len(channel.Members))
	return channel, nil
}

func (s *ChatService) UserChannels(ctx context.Context, userID string) ([]chat.Channel, error) {
	return s.channels.GetUserChannels(ctx, userID)
}

// Contacts lists the peers the caller has direct conversations with, most recent first.
func (s *ChatService) Contacts(ctx context.Context, userID string) ([]chat.Contact, error) {
	return s.messages.QueryContacts(ctx, userID)
}

// Search looks for text messages in the caller's direct conversations and channels.
// Hits are resolved against the message log, in relevance order.
func (s *ChatService) Search(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error) {
	cmd.Terms = strings.TrimSpace(cmd.Terms)
	if cmd.Terms == "" {
		return nil, fmt.Errorf("%w: search terms are required", errors.ErrMalformedMessage)
	}
	if cmd.Limit <= 0 || cmd.Limit > s.searchLimit {
		cmd.Limit = s.searchLimit
	}

	channels, err := s.channels.GetUserChannels(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	ids, err := s.search.Search(ctx, cmd, lo.Map(channels, func(c chat.Channel, _ int) string { return c.ID }))
	if err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		message, err := s.messages.GetMessage(ctx, id)
		if stderrors.Is(err, errors.ErrMessageNotFound) {
			s.log.Warn("Indexed message missing from log", "message_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}
