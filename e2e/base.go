// Package e2e drives a running relay from the outside: gRPC health, websocket sessions and the HTTP API.
package e2e

import (
	"bytes"
	"chat-relay/auth"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Frame is a websocket frame as seen by a client.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

type BaseSuite struct {
	suite.Suite
	Config        Config
	authenticator *auth.Authenticator
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayHTTPAddr == "" || s.Config.RelayGRPCAddr == "" {
		s.T().Skip("RELAY_HTTP_ADDR and RELAY_GRPC_ADDR are not set")
	}
	s.authenticator = auth.NewAuthenticator(s.Config.JWTSecret, time.Hour)
}

func (s *BaseSuite) step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// GrpcConn initializes a gRPC connection with logging, colors, and JSON debugging
func (s *BaseSuite) GrpcConn(t *testing.T, name string) *grpc.ClientConn {
	s.step(t, name)
	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(s.Config.RelayGRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.RelayGRPCAddr)
	return conn
}

// WithHealth provides a health client within a contextual test step
func (s *BaseSuite) WithHealth(name string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	conn := s.GrpcConn(s.T(), name)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}

func (s *BaseSuite) Token(userID string) string {
	token, err := s.authenticator.GenerateToken(userID)
	s.Require().NoError(err)
	return token
}

// Connect opens a websocket session for userID.
func (s *BaseSuite) Connect(name, userID string) *websocket.Conn {
	s.step(s.T(), name)
	header := http.Header{"Authorization": []string{"Bearer " + s.Token(userID)}}
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Config.RelayHTTPAddr+"/ws", header)
	s.Require().NoError(err, "Failed to open a session for "+userID)
	return conn
}

func (s *BaseSuite) Send(conn *websocket.Conn, event string, data map[string]any) {
	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		s.T().Logf("WS -> %s", payload)
	}
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, payload))
}

func (s *BaseSuite) Receive(conn *websocket.Conn) Frame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, data, err := conn.ReadMessage()
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		s.T().Logf("WS <- %s", data)
	}
	var frame Frame
	s.Require().NoError(json.Unmarshal(data, &frame))
	return frame
}

// Call performs an authenticated API request and decodes the JSON answer into out.
func (s *BaseSuite) Call(method, path, userID string, body any, out any) int {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	r, err := http.NewRequest(method, "http://"+s.Config.RelayHTTPAddr+path, reader)
	s.Require().NoError(err)
	r.Header.Set("Authorization", "Bearer "+s.Token(userID))
	r.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(r)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
