package server

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/infrastructure/ws"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/lo"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type messagesResponse struct {
	Messages []ws.MessagePayload `json:"messages"`
}

type channelPayload struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Admin     string   `json:"admin"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"createdAt"`
}

type channelResponse struct {
	Channel channelPayload `json:"channel"`
}

type channelsResponse struct {
	Channels []channelPayload `json:"channels"`
}

type contactPayload struct {
	UserID          string `json:"userId"`
	LastMessageTime string `json:"lastMessageTime"`
}

type contactsResponse struct {
	Contacts []contactPayload `json:"contacts"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeJSONError hides the cause of internal errors from the client.
func writeJSONError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message, Code: errors.Code(err)})
}

func toMessagesResponse(messages []chat.Message) messagesResponse {
	return messagesResponse{Messages: lo.Map(messages, func(m chat.Message, _ int) ws.MessagePayload {
		return ws.NewMessagePayload(m, "")
	})}
}

func toChannelPayload(c chat.Channel) channelPayload {
	return channelPayload{
		ID:        c.ID,
		Name:      c.Name,
		Admin:     c.Admin,
		Members:   lo.Ternary(c.Members == nil, []string{}, c.Members),
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
