package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestChannelRepository_Create_And_Get(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewChannelRepository(db)

	// Given a channel with a duplicated member
	created, err := repository.CreateChannel(ctx, chat.CreateChannelCommand{
		Admin:   "alice",
		Name:    "  general ",
		Members: []string{"bob", "carol", "bob"},
	})
	req.NoError(err)

	// When it is read back
	channel, err := repository.GetChannel(ctx, created.ID)

	// Then the name is trimmed and members are unique
	req.NoError(err)
	req.Equal("general", channel.Name)
	req.Equal("alice", channel.Admin)
	req.Equal([]string{"bob", "carol"}, channel.Members)
	req.ElementsMatch([]string{"alice", "bob", "carol"}, channel.Recipients())
}

func TestChannelRepository_Create_Invalid(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewChannelRepository(db)

	_, err := repository.CreateChannel(context.Background(), chat.CreateChannelCommand{Admin: "alice", Name: "   "})
	req.ErrorIs(err, errors.ErrInvalidChannel)
}

func TestChannelRepository_GetChannel_NotFound(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewChannelRepository(db)

	_, err := repository.GetChannel(context.Background(), "missing")
	req.ErrorIs(err, errors.ErrChannelNotFound)
}

func TestChannelRepository_GetUserChannels(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewChannelRepository(db)

	_, err := repository.CreateChannel(ctx, chat.CreateChannelCommand{Admin: "alice", Name: "zeta", Members: []string{"bob"}})
	req.NoError(err)
	_, err = repository.CreateChannel(ctx, chat.CreateChannelCommand{Admin: "bob", Name: "alpha", Members: []string{"carol"}})
	req.NoError(err)
	_, err = repository.CreateChannel(ctx, chat.CreateChannelCommand{Admin: "carol", Name: "private"})
	req.NoError(err)

	// Bob is admin of one and member of another
	channels, err := repository.GetUserChannels(ctx, "bob")
	req.NoError(err)
	req.Equal([]string{"alpha", "zeta"}, lo.Map(channels, func(c chat.Channel, _ int) string { return c.Name }))

	// Nobody named "bo" shares a prefix with bob
	channels, err = repository.GetUserChannels(ctx, "bo")
	req.NoError(err)
	req.Empty(channels)
}
