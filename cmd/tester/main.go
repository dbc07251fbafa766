package main

import (
	"chat-relay/auth"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

// Config is read from TESTER_* variables, e.g. TESTER_USER=bob TESTER_PEER=alice.
type Config struct {
	RelayAddr string        `envconfig:"RELAY_ADDR" default:"localhost:8080"`
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	User      string        `envconfig:"USER" default:"alice"`
	Peer      string        `envconfig:"PEER" default:"bob"`
	ChannelID string        `envconfig:"CHANNEL_ID"`
	Body      string        `envconfig:"BODY" default:"hello from the tester"`
	Listen    time.Duration `envconfig:"LISTEN" default:"30s"`
}

type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func main() {
	var config Config
	if err := envconfig.Process("tester", &config); err != nil {
		log.Fatalf("config error: %v", err)
	}

	token, err := auth.NewAuthenticator(config.JWTSecret, time.Hour).GenerateToken(config.User)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+config.RelayAddr+"/ws", header)
	if err != nil {
		log.Fatalf("Unable to connect to %s: %v", config.RelayAddr, err)
	}
	defer conn.Close()
	color.Green.Printf("Connected to %s as %s\n", config.RelayAddr, config.User)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.Listen)
	defer cancel()

	go readPushes(conn, cancel)

	tempID := uuid.NewString()
	event, data := "send-direct", map[string]any{"kind": "text", "body": config.Body, "tempClientMessageId": tempID}
	if config.ChannelID != "" {
		event, data["channelId"] = "send-group", config.ChannelID
	} else {
		data["recipient"] = config.Peer
	}
	payload, _ := json.Marshal(map[string]any{"event": event, "data": data})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Fatalf("send: %v", err)
	}
	color.Cyan.Printf("-> %s (temp %s)\n", event, tempID)

	<-ctx.Done()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func readPushes(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				color.Red.Printf("Connection lost: %v\n", err)
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			color.Red.Printf("Unreadable frame: %s\n", data)
			continue
		}
		switch f.Event {
		case "send-failed":
			color.Red.Printf("<- %s %v: %v\n", f.Event, f.Data["code"], f.Data["reason"])
		default:
			color.Yellow.Printf("<- %s [%v] %v: %v\n", f.Event, f.Data["id"], f.Data["sender"], f.Data["body"])
		}
	}
}
