package runtime

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/observability"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	router     *Router
	registry   *Registry
	messages   *mocks.MockIMessageRepository
	channels   *mocks.MockChannelDirectory
	monitoring *observability.MonitoringManager
}

func newRouterFixture(t *testing.T) routerFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	messages := mocks.NewMockIMessageRepository(ctrl)
	channels := mocks.NewMockChannelDirectory(ctrl)
	monitoring := observability.NewMonitoringManager(log)
	return routerFixture{
		router:     NewRouter(log, registry, messages, channels, monitoring, 500),
		registry:   registry,
		messages:   messages,
		channels:   channels,
		monitoring: monitoring,
	}
}

// expectAppend makes the log accept messages and assign them an id.
func (f routerFixture) expectAppend(times int) {
	f.messages.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, message chat.Message) (chat.Message, error) {
			message.ID = uuid.New()
			return message, nil
		}).
		Times(times)
}

func (f routerFixture) connect(userID string) *fakeConnection {
	conn := newFakeConnection()
	f.registry.Bind(userID, conn)
	return conn
}

func TestRouter_Send_Direct_PushesRecipientAndSender(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")
	f.expectAppend(1)

	// When alice sends a direct message to bob
	stored, err := f.router.Send(context.Background(), "alice", chat.SendRequest{
		Kind: chat.KindText, Body: "  hi  ", Recipient: "bob", TempID: "tmp-1",
	})

	// Then both receive exactly one push with the durable id and the temporary id
	req.NoError(err)
	req.Equal("hi", stored.Body)
	for _, conn := range []*fakeConnection{alice, bob} {
		pushes := conn.received()
		req.Len(pushes, 1)
		req.Equal(stored.ID, pushes[0].Message.ID)
		req.Equal("tmp-1", pushes[0].TempID)
		req.Equal(chat.EventReceiveDirect, pushes[0].EventName())
	}
}

func TestRouter_Send_DirectToSelf_PushedOnce(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.connect("alice")
	f.expectAppend(1)

	_, err := f.router.Send(context.Background(), "alice", chat.SendRequest{
		Kind: chat.KindText, Body: "note to self", Recipient: "alice", TempID: "tmp-1",
	})

	req.NoError(err)
	req.Len(alice.received(), 1)
}

func TestRouter_Send_OfflineRecipient_IsSilent(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.connect("alice")
	f.expectAppend(1)

	// Given bob is not connected
	stored, err := f.router.Send(context.Background(), "alice", chat.SendRequest{
		Kind: chat.KindFile, AttachmentRef: "uploads/cat.png", Recipient: "bob", TempID: "tmp-1",
	})

	// Then the send succeeds and only the sender gets its copy
	req.NoError(err)
	req.NotEqual(uuid.Nil, stored.ID)
	req.Len(alice.received(), 1)
}

func TestRouter_Send_Group_ReachesMembersAndAdmin(t *testing.T) {
	tests := []struct {
		name    string
		members []string
	}{
		{name: "admin missing from members", members: []string{"x", "y"}},
		{name: "admin also listed in members", members: []string{"x", "y", "z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newRouterFixture(t)
			x, y, z := f.connect("x"), f.connect("y"), f.connect("z")
			outsider := f.connect("outsider")
			f.channels.EXPECT().
				GetChannel(gomock.Any(), "c1").
				Return(chat.Channel{ID: "c1", Name: "general", Admin: "z", Members: tt.members}, nil)
			f.expectAppend(1)

			stored, err := f.router.Send(context.Background(), "x", chat.SendRequest{
				Kind: chat.KindText, Body: "hello all", ChannelID: "c1", TempID: "tmp-9",
			})

			req.NoError(err)
			for _, conn := range []*fakeConnection{x, y, z} {
				pushes := conn.received()
				req.Len(pushes, 1)
				req.Equal(stored.ID, pushes[0].Message.ID)
				req.Equal("tmp-9", pushes[0].TempID)
				req.Equal(chat.EventReceiveGroup, pushes[0].EventName())
			}
			req.Empty(outsider.received())
		})
	}
}

func TestRouter_Send_PartialPushFailure_IsIsolated(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	x := f.connect("x")
	y := f.connect("y")
	y.err = errors.ErrOutboxFull
	f.channels.EXPECT().
		GetChannel(gomock.Any(), "c1").
		Return(chat.Channel{ID: "c1", Admin: "x", Members: []string{"y"}}, nil)
	f.expectAppend(1)

	_, err := f.router.Send(context.Background(), "x", chat.SendRequest{
		Kind: chat.KindText, Body: "still delivered", ChannelID: "c1", TempID: "tmp-1",
	})

	req.NoError(err)
	req.Len(x.received(), 1)
	req.Empty(y.received())
	stats := f.monitoring.Refresh()
	req.Equal(uint64(1), stats.PushesDelivered)
	req.Equal(uint64(1), stats.DeliveryFailures)
}

func TestRouter_Send_UnknownChannel_NothingPersisted(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.connect("alice")
	f.channels.EXPECT().
		GetChannel(gomock.Any(), "ghost").
		Return(chat.Channel{}, fmt.Errorf("%w: ghost", errors.ErrChannelNotFound))

	// Append has no expectation: any call fails the test
	_, err := f.router.Send(context.Background(), "alice", chat.SendRequest{
		Kind: chat.KindText, Body: "anyone?", ChannelID: "ghost", TempID: "tmp-1",
	})

	req.ErrorIs(err, errors.ErrChannelNotFound)
	req.Empty(alice.received())
}

func TestRouter_Send_PersistenceFailure_NoPush(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")
	f.messages.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(chat.Message{}, stderrors.New("disk full"))

	_, err := f.router.Send(context.Background(), "alice", chat.SendRequest{
		Kind: chat.KindText, Body: "lost", Recipient: "bob", TempID: "tmp-1",
	})

	req.ErrorIs(err, errors.ErrPersistenceFailure)
	req.Equal("PERSISTENCE_FAILURE", errors.Code(err))
	req.Empty(alice.received())
	req.Empty(bob.received())
}

func TestRouter_Send_Malformed_Rejected(t *testing.T) {
	tests := []struct {
		name string
		req  chat.SendRequest
	}{
		{name: "both destinations", req: chat.SendRequest{Kind: chat.KindText, Body: "x", Recipient: "bob", ChannelID: "c1"}},
		{name: "no destination", req: chat.SendRequest{Kind: chat.KindText, Body: "x"}},
		{name: "blank text", req: chat.SendRequest{Kind: chat.KindText, Body: "   ", Recipient: "bob"}},
		{name: "file with body", req: chat.SendRequest{Kind: chat.KindFile, Body: "x", AttachmentRef: "a", Recipient: "bob"}},
		{name: "unknown kind", req: chat.SendRequest{Kind: "audio", Body: "x", Recipient: "bob"}},
		{name: "too long", req: chat.SendRequest{Kind: chat.KindText, Body: strings.Repeat("a", 501), Recipient: "bob"}},
		{name: "invalid UTF-8 body", req: chat.SendRequest{Kind: chat.KindText, Body: "a scam \xff", Recipient: "bob"}},
		{name: "invalid UTF-8 recipient", req: chat.SendRequest{Kind: chat.KindText, Body: "x", Recipient: "b\xffb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newRouterFixture(t)
			bob := f.connect("bob")
			moderator, err := moderation.NewModerator([]string{"scam"}, '*')
			req.NoError(err)
			f.router.WithModerator(moderator)

			_, err = f.router.Send(context.Background(), "alice", tt.req)

			req.ErrorIs(err, errors.ErrMalformedMessage)
			req.Empty(bob.received())
		})
	}
}

func TestRouter_Send_ModeratesAndFeedsSinks(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockMessageSink(ctrl)
	moderator, err := moderation.NewModerator([]string{"scam"}, '*')
	req.NoError(err)
	f.router.WithModerator(moderator).Add(sink)
	f.expectAppend(1)

	var consumed chat.Message
	sink.EXPECT().
		Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, message chat.Message) error {
			consumed = message
			return stderrors.New("index unavailable")
		})

	stored, err := f.router.Send(context.Background(), "alice", chat.SendRequest{
		Kind: chat.KindText, Body: "this is a scam", Recipient: "bob",
	})

	// A failing sink does not fail the send
	req.NoError(err)
	req.Equal("this is a ****", stored.Body)
	req.Equal(stored.ID, consumed.ID)
}

func TestRouter_Send_SameSender_KeepsOrder(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	bob := f.connect("bob")
	f.expectAppend(20)

	for i := 0; i < 20; i++ {
		_, err := f.router.Send(context.Background(), "alice", chat.SendRequest{
			Kind: chat.KindText, Body: fmt.Sprintf("m%d", i), Recipient: "bob",
		})
		req.NoError(err)
	}

	pushes := bob.received()
	req.Len(pushes, 20)
	for i, p := range pushes {
		req.Equal(fmt.Sprintf("m%d", i), p.Message.Body)
	}
}
