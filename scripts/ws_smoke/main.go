package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/learnwire/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("LEARNWIRE_TOKEN"), "bearer token (see `learnwire user create`)")
	room := flag.String("room", "general", "chat room to join")
	text := flag.String("text", "hello from smoke test", "message content to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("a token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(event string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", event, err)
		}
		return nil
	}

	for sent := false; ; {
		var in frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("event=%s data=%s\n", in.Event, in.Data)

		switch in.Event {
		case proto.EventConnectError:
			return fmt.Errorf("handshake refused")
		case proto.EventConnected:
			if sent {
				continue
			}
			sent = true
			if err := mustSend(proto.EventJoinRoom, proto.RoomRef{RoomID: *room}); err != nil {
				return err
			}
			if err := mustSend(proto.EventSendMessage, map[string]string{"roomId": *room, "content": *text}); err != nil {
				return err
			}
		case proto.EventNewMessage:
			var msg proto.NewMessageData
			if err := json.Unmarshal(in.Data, &msg); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("new-message: room=%s sender=%s content=%q at=%s\n", msg.RoomID, msg.SenderName, msg.Content, msg.Timestamp)
			return nil
		case proto.EventError:
			var protoErr proto.ErrorData
			if err := json.Unmarshal(in.Data, &protoErr); err == nil {
				return fmt.Errorf("server rejected event: %s: %s", protoErr.Code, protoErr.Message)
			}
		}
	}
}
