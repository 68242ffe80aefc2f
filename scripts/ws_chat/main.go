package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/learnwire/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("LEARNWIRE_TOKEN"), "bearer token")
	room := flag.String("room", "general", "chat room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c := &chat{conn: conn, room: *room, cancel: cancel}
	c.send(ctx, proto.EventJoinRoom, proto.RoomRef{RoomID: *room})

	fmt.Printf("Connected to %s in room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. Commands: /join <room>, /leave, /typing, /stop. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	c.writeLoop(ctx)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type chat struct {
	conn   *websocket.Conn
	room   string
	cancel context.CancelFunc
}

func (c *chat) send(ctx context.Context, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("marshal %s: %v", event, err)
		return
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Event: event, Data: payload}); err != nil {
		c.cancel()
		log.Printf("send: %v", err)
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var in frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch in.Event {
		case proto.EventNewMessage:
			var msg proto.NewMessageData
			if err := json.Unmarshal(in.Data, &msg); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", msg.RoomID, msg.SenderName, msg.Content)
		case proto.EventUserTyping, proto.EventUserStopTyping:
			var typing proto.TypingData
			if err := json.Unmarshal(in.Data, &typing); err != nil {
				continue
			}
			verb := "is typing"
			if in.Event == proto.EventUserStopTyping {
				verb = "stopped typing"
			}
			fmt.Printf("[%s] %s %s\n", typing.RoomID, typing.UserID, verb)
		case proto.EventUserOnline, proto.EventUserOffline:
			var userID string
			_ = json.Unmarshal(in.Data, &userID)
			fmt.Printf("* %s %s\n", userID, strings.TrimPrefix(in.Event, "user-"))
		case proto.EventConnectError:
			fmt.Println("authentication refused")
			return
		default:
			fmt.Printf("event=%s data=%s\n", in.Event, in.Data)
		}
	}
}

func (c *chat) writeLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			c.handleLine(ctx, text)
		}
	}
}

func (c *chat) handleLine(ctx context.Context, text string) {
	room := proto.RoomRef{RoomID: c.room}
	switch {
	case strings.HasPrefix(text, "/join "):
		c.send(ctx, proto.EventLeaveRoom, room)
		c.room = strings.TrimSpace(strings.TrimPrefix(text, "/join "))
		c.send(ctx, proto.EventJoinRoom, proto.RoomRef{RoomID: c.room})
	case text == "/leave":
		c.send(ctx, proto.EventLeaveRoom, room)
	case text == "/typing":
		c.send(ctx, proto.EventTypingStart, room)
	case text == "/stop":
		c.send(ctx, proto.EventTypingStop, room)
	default:
		c.send(ctx, proto.EventSendMessage, map[string]string{"roomId": c.room, "content": text})
	}
}
