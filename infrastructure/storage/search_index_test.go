package storage

import (
	"chat-relay/domain/chat"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestSearchIndex(t *testing.T) *SearchIndex {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewSearchIndex(writer, slog.Default())
}

func indexed(t *testing.T, index *SearchIndex, sender, body string, destination chat.Destination) chat.Message {
	message := textMessage(t, sender, body, destination, time.Now().UTC())
	message.ID = uuid.Must(uuid.NewV7())
	require.NoError(t, index.Consume(context.Background(), message))
	return message
}

func TestSearchIndex_Search_ScopedToUser(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newTestSearchIndex(t)

	// Given messages in a direct conversation, a joined channel and a foreign channel
	direct := indexed(t, index, "bob", "the deployment is done", chat.Direct{Recipient: "alice"})
	joined := indexed(t, index, "carol", "deployment postponed to friday", chat.Group{ChannelID: "ops"})
	indexed(t, index, "dave", "secret deployment plan", chat.Group{ChannelID: "board"})
	indexed(t, index, "bob", "deployment between bob and carol", chat.Direct{Recipient: "carol"})

	// When alice searches
	ids, err := index.Search(ctx, chat.SearchCommand{UserID: "alice", Terms: "deployment", Limit: 10}, []string{"ops"})

	// Then only what she can read is returned
	req.NoError(err)
	req.ElementsMatch([]uuid.UUID{direct.ID, joined.ID}, ids)
}

func TestSearchIndex_Search_NoMatch(t *testing.T) {
	req := require.New(t)
	index := newTestSearchIndex(t)
	indexed(t, index, "bob", "hello there", chat.Direct{Recipient: "alice"})

	ids, err := index.Search(context.Background(), chat.SearchCommand{UserID: "alice", Terms: "nonexistent", Limit: 10}, nil)
	req.NoError(err)
	req.Empty(ids)
}

func TestSearchIndex_Consume_SkipsFiles(t *testing.T) {
	req := require.New(t)
	index := newTestSearchIndex(t)

	message, err := chat.NewMessage("bob", chat.KindFile, "", "report.pdf", chat.Direct{Recipient: "alice"}, time.Now())
	req.NoError(err)
	message.ID = uuid.New()
	req.NoError(index.Consume(context.Background(), message))

	ids, err := index.Search(context.Background(), chat.SearchCommand{UserID: "alice", Terms: "report", Limit: 10}, nil)
	req.NoError(err)
	req.Empty(ids)
}
