//go:generate go run go.uber.org/mock/mockgen -source=channel_repository.go -destination=../../mocks/mock_channel_repository.go -package=mocks
package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChannelRepository interface {
	CreateChannel(ctx context.Context, cmd chat.CreateChannelCommand) (chat.Channel, error)
	GetChannel(ctx context.Context, channelID string) (chat.Channel, error)
	GetUserChannels(ctx context.Context, userID string) ([]chat.Channel, error)
}

// ChannelRepository stands in for the channel management collaborator.
// Channels are written once and never updated here.
type ChannelRepository struct {
	db *badger.DB
}

func NewChannelRepository(db *badger.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// CreateChannel stores the channel and one "member:{user}:{channel}" key per member
// (the admin included) so that a user's channels are a single prefix scan.
func (c *ChannelRepository) CreateChannel(_ context.Context, cmd chat.CreateChannelCommand) (chat.Channel, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if err := cmd.Validate(); err != nil {
		return chat.Channel{}, err
	}
	channel := chat.Channel{
		ID:        uuid.NewString(),
		Name:      cmd.Name,
		Admin:     cmd.Admin,
		Members:   lo.Uniq(lo.Compact(cmd.Members)),
		CreatedAt: time.Now().UTC(),
	}
	data, err := encodeChannel(channel)
	if err != nil {
		return chat.Channel{}, err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(channelKey(channel.ID), data); err != nil {
			return err
		}
		for _, userID := range channel.Recipients() {
			if err := txn.Set(memberKey(userID, channel.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chat.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	return channel, nil
}

func (c *ChannelRepository) GetChannel(_ context.Context, channelID string) (chat.Channel, error) {
	var channel chat.Channel
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		channel, err = getChannel(txn, channelID)
		return err
	})
	return channel, err
}

// GetUserChannels lists the channels where the user is admin or member, sorted by name.
func (c *ChannelRepository) GetUserChannels(_ context.Context, userID string) ([]chat.Channel, error) {
	var channels []chat.Channel
	prefix := []byte(fmt.Sprintf("member:%s:", url.QueryEscape(userID)))

	err := c.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		for _, id := range ids {
			channel, err := getChannel(txn, id)
			if err != nil {
				return err
			}
			channels = append(channels, channel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(channels, func(a, b chat.Channel) int {
		return strings.Compare(a.Name, b.Name)
	})
	return channels, nil
}

func getChannel(txn *badger.Txn, channelID string) (chat.Channel, error) {
	item, err := txn.Get(channelKey(channelID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Channel{}, fmt.Errorf("%w: %s", errors.ErrChannelNotFound, channelID)
	}
	if err != nil {
		return chat.Channel{}, err
	}
	var channel chat.Channel
	err = item.Value(func(v []byte) error {
		channel, err = decodeChannel(v)
		return err
	})
	return channel, err
}

func channelKey(channelID string) []byte {
	return []byte("channel:" + channelID)
}

func memberKey(userID, channelID string) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", url.QueryEscape(userID), channelID))
}
