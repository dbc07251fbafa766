package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type State int32

const (
	StateUnbound State = iota
	StateBound
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is one live client connection.
// The read loop handles inbound events one at a time, so a sender's messages
// are routed in the order they arrived. Everything written back goes through
// the outbox and a single writer goroutine.
type Session struct {
	id           uuid.UUID
	userID       string
	log          *slog.Logger
	transport    contract.Transport
	registry     contract.IPresenceRegistry
	router       contract.IRouter
	monitoring   *observability.MonitoringManager
	outbox       chan chat.Outbound
	done         chan struct{}
	closeOnce    sync.Once
	state        atomic.Int32
	writeTimeout time.Duration
}

// NewSession creates an unbound session. An empty userID keeps it inert:
// never routable and ignoring every event, while the transport stays open.
func NewSession(userID string, transport contract.Transport, registry contract.IPresenceRegistry,
	router contract.IRouter, monitoring *observability.MonitoringManager, log *slog.Logger,
	bufferSize int, writeTimeout time.Duration) *Session {
	id := uuid.New()
	monitoring.SessionOpened()
	return &Session{
		id:           id,
		userID:       userID,
		log:          log.With("session", id, "user", userID),
		transport:    transport,
		registry:     registry,
		router:       router,
		monitoring:   monitoring,
		outbox:       make(chan chat.Outbound, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) UserID() string { return s.userID }

func (s *Session) State() State { return State(s.state.Load()) }

// Push enqueues a confirmed message without blocking.
func (s *Session) Push(p chat.Push) error {
	return s.enqueue(p)
}

func (s *Session) enqueue(out chat.Outbound) error {
	select {
	case <-s.done:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case s.outbox <- out:
		return nil
	default:
		return errors.ErrOutboxFull
	}
}

// Run binds the session and serves it until the transport drops or ctx is done.
// The session is always closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	s.bind()
	go s.writeLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	for {
		event, err := s.transport.ReadEvent()
		if err != nil {
			if s.State() == StateClosed {
				return nil
			}
			if stderrors.Is(err, errors.ErrMalformedMessage) || stderrors.Is(err, errors.ErrUnknownEvent) {
				s.log.Debug("Unreadable frame", "error", err)
				if s.State() == StateBound {
					s.reject(event.Send.TempID, err)
				}
				continue
			}
			return err
		}
		s.handle(ctx, event)
	}
}

func (s *Session) bind() {
	if s.userID == "" {
		s.log.Debug("No identity supplied, session stays inert")
		return
	}
	previous, replaced := s.registry.Bind(s.userID, s)
	if !s.state.CompareAndSwap(int32(StateUnbound), int32(StateBound)) {
		// Closed while binding
		s.registry.Unbind(s.userID, s)
		return
	}
	if replaced {
		s.log.Info("Connection replaced", "previous", previous.ID())
	}
	s.log.Debug("Session bound")
}

func (s *Session) handle(ctx context.Context, event chat.InboundEvent) {
	if s.State() != StateBound {
		s.log.Debug("Event ignored", "event", event.Name, "state", s.State())
		return
	}
	if err := checkEventDestination(event); err != nil {
		s.reject(event.Send.TempID, err)
		return
	}
	// A send runs to completion even if the client goes away meanwhile
	if _, err := s.router.Send(context.WithoutCancel(ctx), s.userID, event.Send); err != nil {
		s.log.Info("Send rejected", "event", event.Name, "temp_id", event.Send.TempID, "error", err)
		s.reject(event.Send.TempID, err)
	}
}

func checkEventDestination(event chat.InboundEvent) error {
	switch event.Name {
	case chat.EventSendDirect:
		if event.Send.ChannelID != "" {
			return fmt.Errorf("%w: %s cannot target a channel", errors.ErrMalformedMessage, event.Name)
		}
	case chat.EventSendGroup:
		if event.Send.Recipient != "" {
			return fmt.Errorf("%w: %s cannot target a user", errors.ErrMalformedMessage, event.Name)
		}
	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownEvent, event.Name)
	}
	return nil
}

func (s *Session) reject(tempID string, cause error) {
	failure := chat.SendFailure{TempID: tempID, Code: errors.Code(cause), Reason: cause.Error()}
	if err := s.enqueue(failure); err != nil {
		s.log.Warn("Failure not reported", "temp_id", tempID, "error", err)
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case out := <-s.outbox:
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
			err := s.transport.Write(writeCtx, out)
			cancel()
			if err != nil {
				s.log.Warn(errors.ErrDeliveryFailure.Error(), "event", out.EventName(), "error", err)
				s.Close()
				return
			}
		}
	}
}

// Close is idempotent. It unbinds the user only if this session is still its
// bound connection, then closes the transport.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		previous := State(s.state.Swap(int32(StateClosed)))
		close(s.done)
		if previous == StateBound && !s.registry.Unbind(s.userID, s) {
			s.log.Debug("Session was already superseded")
		}
		err = s.transport.Close()
		s.monitoring.SessionClosed()
		s.log.Debug("Session closed")
	})
	return err
}
