package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/talkwire/talkwire-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT from /api/login")
	conv := flag.Int64("conversation", 0, "conversation to send messages into")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required (register and login over the REST API first)")
	}
	if *conv <= 0 {
		return errors.New("-conversation is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	dialURL := *addr + "?token=" + url.QueryEscape(*token)
	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s, conversation %d\n", *addr, *conv)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *conv)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
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

		if outbound.Type == proto.OutboundTypeError {
			if outbound.Error != nil {
				fmt.Printf("[error %s] %s\n", outbound.Error.Code, outbound.Error.Msg)
			}
			continue
		}

		switch outbound.Event {
		case proto.EventMessageNew:
			evt, err := decode[proto.MessageNewData](outbound.Data)
			if err != nil {
				log.Printf("unmarshal message:new: %v", err)
				continue
			}
			raw, _ := json.Marshal(evt.Message)
			var msg struct {
				SenderName string `json:"senderName"`
				Content    string `json:"content"`
			}
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Printf("unmarshal message body: %v", err)
				continue
			}
			fmt.Printf("[conv %d] %s: %s\n", evt.ConversationID, msg.SenderName, msg.Content)
		case proto.EventUserOnline, proto.EventUserOffline:
			evt, err := decode[proto.UserStatusData](outbound.Data)
			if err != nil {
				log.Printf("unmarshal presence: %v", err)
				continue
			}
			fmt.Printf("[presence] user %d is %s\n", evt.UserID, evt.Status)
		case proto.EventTypingStart:
			evt, err := decode[proto.TypingEventData](outbound.Data)
			if err != nil {
				continue
			}
			fmt.Printf("[conv %d] %s is typing...\n", evt.ConversationID, evt.Username)
		case proto.EventCallIncoming:
			evt, err := decode[proto.CallIncomingData](outbound.Data)
			if err != nil {
				continue
			}
			fmt.Printf("[call] incoming from %s, room %s\n", evt.Caller.Username, evt.RoomID)
		default:
			fmt.Printf("event=%s data=%s\n", outbound.Event, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, conversationID int64) {
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

			payload, err := json.Marshal(proto.MessageSendData{
				ConversationID: conversationID,
				Content:        text,
			})
			if err != nil {
				log.Printf("marshal message: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundMessageSend, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
