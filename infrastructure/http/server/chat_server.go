package server

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/services"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/valyala/fastjson"
)

const maxRequestBytes = 64 << 10

// ChatServer exposes history, channels and search over HTTP.
// Every handler runs behind auth.Required.
type ChatServer struct {
	log         *slog.Logger
	chatService services.IChatService
	parserPool  fastjson.ParserPool
}

func NewChatServer(log *slog.Logger, chatService services.IChatService) *ChatServer {
	return &ChatServer{log: log, chatService: chatService}
}

func (s *ChatServer) DirectHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	messages, err := s.chatService.DirectHistory(r.Context(), chat.DirectHistoryCommand{
		UserID: userID,
		PeerID: chi.URLParam(r, "peerID"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessagesResponse(messages))
}

func (s *ChatServer) ChannelHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	messages, err := s.chatService.ChannelHistory(r.Context(), chat.ChannelHistoryCommand{
		UserID:    userID,
		ChannelID: chi.URLParam(r, "channelID"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessagesResponse(messages))
}

// Search handles GET /api/messages/search?q=deploy&lang=en&limit=20.
// lang is an ISO 639-1 code.
func (s *ChatServer) Search(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			s.fail(w, r, fmt.Errorf("%w: limit must be an integer", errors.ErrMalformedMessage))
			return
		}
	}
	messages, err := s.chatService.Search(r.Context(), chat.SearchCommand{
		UserID:   userID,
		Terms:    query.Get("q"),
		Language: query.Get("lang"),
		Limit:    limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessagesResponse(messages))
}

// CreateChannel reads {"name":"general","members":["bob","carol"]}.
// The caller becomes the admin.
func (s *ChatServer) CreateChannel(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	cmd, err := s.decodeCreateChannel(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cmd.Admin = userID
	channel, err := s.chatService.CreateChannel(r.Context(), cmd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, channelResponse{Channel: toChannelPayload(channel)})
}

func (s *ChatServer) UserChannels(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	channels, err := s.chatService.UserChannels(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channelsResponse{Channels: lo.Map(channels, func(c chat.Channel, _ int) channelPayload {
		return toChannelPayload(c)
	})})
}

// Contacts handles GET /api/contacts/dm.
func (s *ChatServer) Contacts(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	contacts, err := s.chatService.Contacts(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contactsResponse{Contacts: lo.Map(contacts, func(c chat.Contact, _ int) contactPayload {
		return contactPayload{UserID: c.UserID, LastMessageTime: c.LastMessageTime.UTC().Format(time.RFC3339Nano)}
	})})
}

func (s *ChatServer) decodeCreateChannel(w http.ResponseWriter, r *http.Request) (chat.CreateChannelCommand, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		return chat.CreateChannelCommand{}, fmt.Errorf("%w: %v", errors.ErrInvalidChannel, err)
	}

	p := s.parserPool.Get()
	defer s.parserPool.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return chat.CreateChannelCommand{}, fmt.Errorf("%w: %v", errors.ErrInvalidChannel, err)
	}
	name := v.Get("name")
	if name == nil || name.Type() != fastjson.TypeString {
		return chat.CreateChannelCommand{}, fmt.Errorf("%w: name must be a string", errors.ErrInvalidChannel)
	}
	cmd := chat.CreateChannelCommand{Name: string(name.GetStringBytes())}

	if members := v.Get("members"); members != nil {
		items, err := members.Array()
		if err != nil {
			return chat.CreateChannelCommand{}, fmt.Errorf("%w: members must be an array", errors.ErrInvalidChannel)
		}
		for _, item := range items {
			member, err := item.StringBytes()
			if err != nil {
				return chat.CreateChannelCommand{}, fmt.Errorf("%w: members must be strings", errors.ErrInvalidChannel)
			}
			cmd.Members = append(cmd.Members, string(member))
		}
	}
	return cmd, nil
}

func (s *ChatServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.HTTPStatus(err) == http.StatusInternalServerError {
		s.log.Error("Request failed", "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("Request rejected", "path", r.URL.Path, "error", err)
	}
	writeJSONError(w, err)
}
