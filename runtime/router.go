// Package runtime owns presence, connection sessions and message delivery.
// It orchestrates the relay without holding business rules, which live in domain/chat.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/infrastructure/storage"
	"chat-relay/moderation"
	"chat-relay/observability"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// Router turns a send request into a stored message and its pushes.
type Router struct {
	log              *slog.Logger
	registry         contract.IPresenceRegistry
	messages         storage.IMessageRepository
	channels         contract.ChannelDirectory
	sinks            []contract.MessageSink
	moderator        *moderation.Moderator
	monitoring       *observability.MonitoringManager
	maxContentLength int
	now              func() time.Time
}

func NewRouter(log *slog.Logger, registry contract.IPresenceRegistry, messages storage.IMessageRepository,
	channels contract.ChannelDirectory, monitoring *observability.MonitoringManager, maxContentLength int) *Router {
	return &Router{
		log:              log,
		registry:         registry,
		messages:         messages,
		channels:         channels,
		monitoring:       monitoring,
		maxContentLength: maxContentLength,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithModerator censors text bodies before they are stored.
func (r *Router) WithModerator(moderator *moderation.Moderator) *Router {
	r.moderator = moderator
	return r
}

// Add registers sinks notified after every successful append.
func (r *Router) Add(sinks ...contract.MessageSink) *Router {
	r.sinks = append(r.sinks, sinks...)
	return r
}

// Send validates, persists and fans out one message.
// Any error returned happened before persistence: nothing was stored and nobody was pushed.
// Push failures after persistence are logged and never returned.
func (r *Router) Send(ctx context.Context, senderID string, req chat.SendRequest) (chat.Message, error) {
	message, recipients, err := r.prepare(ctx, senderID, req)
	if err != nil {
		r.monitoring.IncrRejected()
		return chat.Message{}, err
	}

	stored, err := r.messages.Append(ctx, message)
	if err != nil {
		if stderrors.Is(err, errors.ErrMalformedMessage) {
			r.monitoring.IncrRejected()
			return chat.Message{}, err
		}
		r.monitoring.IncrPersistFailure()
		r.log.Error("Message not persisted", "sender", senderID, "error", err)
		return chat.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
	}
	r.monitoring.IncrRouted()

	for _, sink := range r.sinks {
		if err := sink.Consume(ctx, stored); err != nil {
			r.log.Warn("Sink failed", "sink", fmt.Sprintf("%T", sink), "message_id", stored.ID, "error", err)
		}
	}

	r.fanout(chat.Push{Message: stored, TempID: req.TempID}, recipients)
	return stored, nil
}

// prepare resolves the destination and its recipient set, then builds the message.
func (r *Router) prepare(ctx context.Context, senderID string, req chat.SendRequest) (chat.Message, []string, error) {
	if err := req.Validate(); err != nil {
		return chat.Message{}, nil, err
	}
	// Must run before moderation, Censor re-encodes invalid bytes
	if !utf8.ValidString(req.Body) {
		return chat.Message{}, nil, fmt.Errorf("%w: body is not valid UTF-8", errors.ErrMalformedMessage)
	}
	if r.maxContentLength > 0 && len([]rune(req.Body)) > r.maxContentLength {
		return chat.Message{}, nil, fmt.Errorf("%w: body exceeds %d characters", errors.ErrMalformedMessage, r.maxContentLength)
	}
	destination, err := req.Destination()
	if err != nil {
		return chat.Message{}, nil, err
	}

	var recipients []string
	switch dst := destination.(type) {
	case chat.Direct:
		// A message to self is pushed once
		recipients = lo.Uniq([]string{dst.Recipient, senderID})
	case chat.Group:
		channel, err := r.channels.GetChannel(ctx, dst.ChannelID)
		if err != nil {
			return chat.Message{}, nil, err
		}
		recipients = channel.Recipients()
	default:
		return chat.Message{}, nil, fmt.Errorf("%w: unsupported destination %T", errors.ErrMalformedMessage, destination)
	}

	body := req.Body
	if r.moderator != nil && req.Kind == chat.KindText {
		var words []string
		if body, words = r.moderator.Censor(body); len(words) > 0 {
			r.log.Debug("Body censored", "sender", senderID, "matches", len(words))
		}
	}

	message, err := chat.NewMessage(senderID, req.Kind, body, req.AttachmentRef, destination, r.now())
	if err != nil {
		return chat.Message{}, nil, err
	}
	return message, recipients, nil
}

// fanout pushes to every present recipient, each in its own goroutine.
// Connection.Push never blocks, so waiting here only gathers the outcome for
// logging, and keeps a sender's pushes in the order its sends were accepted.
func (r *Router) fanout(push chat.Push, recipients []string) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
		failed    int
	)
	for _, userID := range recipients {
		conn, ok := r.registry.Lookup(userID)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(userID string, conn contract.Connection) {
			defer wg.Done()
			err := conn.Push(push)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				r.log.Warn(errors.ErrDeliveryFailure.Error(),
					"recipient", userID, "connection", conn.ID(), "message_id", push.Message.ID, "error", err)
				return
			}
			delivered++
		}(userID, conn)
	}
	wg.Wait()

	r.monitoring.AddPushes(delivered, failed)
	r.log.Debug("Message fanned out",
		"message_id", push.Message.ID, "recipients", len(recipients), "delivered", delivered, "failed", failed)
}
