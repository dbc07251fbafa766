package runtime

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type inboundFrame struct {
	event chat.InboundEvent
	err   error
}

type fakeTransport struct {
	inbound   chan inboundFrame
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	written   []chat.Outbound
	writeErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan inboundFrame, 10), closed: make(chan struct{})}
}

func (f *fakeTransport) ReadEvent() (chat.InboundEvent, error) {
	select {
	case frame, ok := <-f.inbound:
		if !ok {
			return chat.InboundEvent{}, io.EOF
		}
		return frame.event, frame.err
	case <-f.closed:
		return chat.InboundEvent{}, net.ErrClosed
	}
}

func (f *fakeTransport) Write(_ context.Context, out chat.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, out)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) outputs() []chat.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Outbound(nil), f.written...)
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type sessionFixture struct {
	registry   *Registry
	router     *mocks.MockIRouter
	monitoring *observability.MonitoringManager
	log        *slog.Logger
}

func newSessionFixture(t *testing.T) sessionFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return sessionFixture{
		registry:   NewRegistry(),
		router:     mocks.NewMockIRouter(gomock.NewController(t)),
		monitoring: observability.NewMonitoringManager(log),
		log:        log,
	}
}

func (f sessionFixture) newSession(userID string, transport *fakeTransport) *Session {
	return NewSession(userID, transport, f.registry, f.router, f.monitoring, f.log, 8, time.Second)
}

// start runs the session in the background and returns a channel receiving Run's result.
func start(s *Session) chan error {
	result := make(chan error, 1)
	go func() { result <- s.Run(context.Background()) }()
	return result
}

func waitFor(t *testing.T, condition func() bool) {
	require.Eventually(t, condition, time.Second, 5*time.Millisecond)
}

func TestSession_Bound_RoutesSendEvents(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	transport := newFakeTransport()
	session := f.newSession("alice", transport)
	send := chat.SendRequest{Kind: chat.KindText, Body: "hi", Recipient: "bob", TempID: "tmp-1"}

	routed := make(chan struct{})
	f.router.EXPECT().
		Send(gomock.Any(), "alice", send).
		DoAndReturn(func(_ context.Context, _ string, _ chat.SendRequest) (chat.Message, error) {
			close(routed)
			return chat.Message{ID: uuid.New()}, nil
		})

	result := start(session)
	waitFor(t, func() bool { return session.State() == StateBound })
	conn, ok := f.registry.Lookup("alice")
	req.True(ok)
	req.Equal(session.ID(), conn.ID())

	transport.inbound <- inboundFrame{event: chat.InboundEvent{Name: chat.EventSendDirect, Send: send}}
	<-routed

	// When the transport drops
	close(transport.inbound)

	// Then the session closes and alice is no longer present
	req.ErrorIs(<-result, io.EOF)
	req.Equal(StateClosed, session.State())
	_, ok = f.registry.Lookup("alice")
	req.False(ok)
}

func TestSession_RouterError_ReportsSendFailed(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	transport := newFakeTransport()
	session := f.newSession("alice", transport)
	f.router.EXPECT().
		Send(gomock.Any(), "alice", gomock.Any()).
		Return(chat.Message{}, fmt.Errorf("%w: ghost", errors.ErrChannelNotFound))

	result := start(session)
	transport.inbound <- inboundFrame{event: chat.InboundEvent{
		Name: chat.EventSendGroup,
		Send: chat.SendRequest{Kind: chat.KindText, Body: "hi", ChannelID: "ghost", TempID: "tmp-7"},
	}}

	waitFor(t, func() bool { return len(transport.outputs()) == 1 })
	failure, ok := transport.outputs()[0].(chat.SendFailure)
	req.True(ok)
	req.Equal("tmp-7", failure.TempID)
	req.Equal("CHANNEL_NOT_FOUND", failure.Code)

	close(transport.inbound)
	<-result
}

func TestSession_MalformedFrame_KeepsServing(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	transport := newFakeTransport()
	session := f.newSession("alice", transport)

	result := start(session)
	waitFor(t, func() bool { return session.State() == StateBound })

	// An unreadable frame and an event whose name disagrees with its destination
	transport.inbound <- inboundFrame{
		event: chat.InboundEvent{Send: chat.SendRequest{TempID: "tmp-1"}},
		err:   fmt.Errorf("%w: not json", errors.ErrMalformedMessage),
	}
	transport.inbound <- inboundFrame{event: chat.InboundEvent{
		Name: chat.EventSendDirect,
		Send: chat.SendRequest{Kind: chat.KindText, Body: "hi", ChannelID: "c1", TempID: "tmp-2"},
	}}

	waitFor(t, func() bool { return len(transport.outputs()) == 2 })
	for i, out := range transport.outputs() {
		failure := out.(chat.SendFailure)
		req.Equal(fmt.Sprintf("tmp-%d", i+1), failure.TempID)
		req.Equal("MALFORMED_MESSAGE", failure.Code)
	}
	req.Equal(StateBound, session.State())

	close(transport.inbound)
	<-result
}

func TestSession_WithoutIdentity_IsInert(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	transport := newFakeTransport()
	session := f.newSession("", transport)

	// Router has no expectation: any call fails the test
	result := start(session)
	transport.inbound <- inboundFrame{event: chat.InboundEvent{
		Name: chat.EventSendDirect,
		Send: chat.SendRequest{Kind: chat.KindText, Body: "hi", Recipient: "bob"},
	}}

	// The transport stays open and nothing is registered
	time.Sleep(20 * time.Millisecond)
	req.False(transport.isClosed())
	req.Equal(StateUnbound, session.State())
	req.Zero(f.registry.Count())
	req.Empty(transport.outputs())

	close(transport.inbound)
	<-result
}

func TestSession_StaleClose_KeepsNewerBinding(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	oldTransport := newFakeTransport()
	newTransport := newFakeTransport()
	oldSession := f.newSession("alice", oldTransport)
	newSession := f.newSession("alice", newTransport)

	oldResult := start(oldSession)
	waitFor(t, func() bool { return oldSession.State() == StateBound })
	newResult := start(newSession)
	waitFor(t, func() bool { return newSession.State() == StateBound })

	// When the old connection disconnects after the reconnect
	close(oldTransport.inbound)
	<-oldResult

	// Then alice is still routed to the new connection
	conn, ok := f.registry.Lookup("alice")
	req.True(ok)
	req.Equal(newSession.ID(), conn.ID())

	close(newTransport.inbound)
	<-newResult
}

func TestSession_Push_DeliveredInOrder(t *testing.T) {
	f := newSessionFixture(t)
	transport := newFakeTransport()
	session := f.newSession("bob", transport)
	result := start(session)
	waitFor(t, func() bool { return session.State() == StateBound })

	for i := 0; i < 5; i++ {
		require.NoError(t, session.Push(chat.Push{Message: chat.Message{Body: fmt.Sprintf("m%d", i)}}))
	}

	waitFor(t, func() bool { return len(transport.outputs()) == 5 })
	for i, out := range transport.outputs() {
		require.Equal(t, fmt.Sprintf("m%d", i), out.(chat.Push).Message.Body)
	}

	close(transport.inbound)
	<-result
}

func TestSession_Push_Overflow_And_Closed(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	session := NewSession("bob", newFakeTransport(), f.registry, f.router, f.monitoring, f.log, 1, time.Second)

	// Nobody drains the outbox
	req.NoError(session.Push(chat.Push{}))
	req.ErrorIs(session.Push(chat.Push{}), errors.ErrOutboxFull)

	req.NoError(session.Close())
	req.ErrorIs(session.Push(chat.Push{}), errors.ErrSessionClosed)
	req.NoError(session.Close())
}

func TestSession_WriteFailure_ClosesSession(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	transport := newFakeTransport()
	transport.writeErr = stderrors.New("broken pipe")
	session := f.newSession("bob", transport)

	result := start(session)
	waitFor(t, func() bool { return session.State() == StateBound })
	req.NoError(session.Push(chat.Push{}))

	req.NoError(<-result)
	req.True(transport.isClosed())
	req.Zero(f.registry.Count())
}

func TestSession_ContextCancel_Closes(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	transport := newFakeTransport()
	session := f.newSession("bob", transport)
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() { result <- session.Run(ctx) }()
	waitFor(t, func() bool { return session.State() == StateBound })

	cancel()

	req.NoError(<-result)
	req.Equal(StateClosed, session.State())
	req.Zero(f.registry.Count())
	stats := f.monitoring.Refresh()
	req.Zero(stats.ActiveSessions)
}
