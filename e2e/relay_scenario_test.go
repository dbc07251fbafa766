package e2e

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type relaySuite struct {
	BaseSuite
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, &relaySuite{})
}

func (s *relaySuite) TestDirectAndGroupDelivery() {
	alice := "alice-" + uuid.NewString()[:8]
	bob := "bob-" + uuid.NewString()[:8]

	s.Run("Step 0: relay reports SERVING", func() {
		s.WithHealth("Health check", func(ctx context.Context, client healthpb.HealthClient) {
			resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "chat.relay.v1.Relay"})
			s.Require().NoError(err)
			s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)
		})
	})

	aliceConn := s.Connect("Alice connects", alice)
	defer aliceConn.Close()
	bobConn := s.Connect("Bob connects", bob)
	defer bobConn.Close()

	var directID string
	s.Run("Step 1: a direct message reaches both participants", func() {
		s.Send(aliceConn, "send-direct", map[string]any{
			"kind": "text", "body": "hello bob", "recipient": bob, "tempClientMessageId": "t-1",
		})

		toAlice := s.Receive(aliceConn)
		toBob := s.Receive(bobConn)
		s.Require().Equal("receive-direct", toAlice.Event)
		s.Require().Equal("receive-direct", toBob.Event)
		s.Require().Equal(toAlice.Data["id"], toBob.Data["id"])
		s.Require().Equal("t-1", toAlice.Data["tempClientMessageId"])
		directID, _ = toAlice.Data["id"].(string)
	})

	s.Run("Step 2: the message is in the history", func() {
		var history struct {
			Messages []map[string]any `json:"messages"`
		}
		code := s.Call(http.MethodGet, "/api/messages/direct/"+alice, bob, nil, &history)
		s.Require().Equal(http.StatusOK, code)
		s.Require().NotEmpty(history.Messages)
		s.Require().Equal(directID, history.Messages[len(history.Messages)-1]["id"])
	})

	s.Run("Step 2b: the peer is listed as a contact", func() {
		var contacts struct {
			Contacts []map[string]any `json:"contacts"`
		}
		code := s.Call(http.MethodGet, "/api/contacts/dm", bob, nil, &contacts)
		s.Require().Equal(http.StatusOK, code)
		s.Require().NotEmpty(contacts.Contacts)
		s.Require().Equal(alice, contacts.Contacts[0]["userId"])
	})

	s.Run("Step 3: a group message reaches every member", func() {
		var created struct {
			Channel struct {
				ID string `json:"id"`
			} `json:"channel"`
		}
		code := s.Call(http.MethodPost, "/api/channel/create-group", alice,
			map[string]any{"name": "e2e", "members": []string{bob}}, &created)
		s.Require().Equal(http.StatusCreated, code)

		s.Send(bobConn, "send-group", map[string]any{
			"kind": "text", "body": "hi all", "channelId": created.Channel.ID, "tempClientMessageId": "t-2",
		})
		toBob := s.Receive(bobConn)
		toAlice := s.Receive(aliceConn)
		s.Require().Equal("receive-group", toAlice.Event)
		s.Require().Equal(toBob.Data["id"], toAlice.Data["id"])
		s.Require().Equal(created.Channel.ID, toAlice.Data["channelId"])
	})

	s.Run("Step 4: a malformed send only fails for the sender", func() {
		s.Send(aliceConn, "send-direct", map[string]any{
			"kind": "text", "body": "   ", "recipient": bob, "tempClientMessageId": "t-3",
		})
		failure := s.Receive(aliceConn)
		s.Require().Equal("send-failed", failure.Event)
		s.Require().Equal("MALFORMED_MESSAGE", failure.Data["code"])
		s.Require().Equal("t-3", failure.Data["tempClientMessageId"])
	})
}
