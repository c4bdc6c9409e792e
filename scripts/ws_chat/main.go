// Command ws_chat is an interactive terminal client for a chatline server.
// It authenticates over the REST API, joins a room, prints incoming events,
// and sends each stdin line as a chat message.
package main

import (
	"bufio"
	"bytes"
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
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatline/chatline-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "cli-password", "password")
	room := flag.Int64("room", 1, "room id to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	authCtx, authCancel := context.WithTimeout(ctx, 10*time.Second)
	token, err := authenticate(authCtx, *addr, *user, *password)
	authCancel()
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*addr, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(frameType string, data any) error {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", frameType, err)
		}
		return wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: raw})
	}

	if err := send(proto.InboundTypeHello, proto.HelloData{Token: token, Protocol: proto.ProtocolVersion}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	if err := send(proto.InboundTypeJoin, proto.JoinData{RoomID: *room}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	fmt.Printf("Connected to %s as %s in room %d\n", *addr, *user, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
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

		switch {
		case outbound.Type == proto.OutboundTypeError && outbound.Error != nil:
			fmt.Printf("server error %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
		case outbound.Event == "message":
			evt, err := decodeEvent[proto.EventMessage](outbound.Data)
			if err != nil {
				log.Printf("decode message event: %v", err)
				continue
			}
			fmt.Printf("[room %d] %s: %s\n", evt.RoomID, evt.User, evt.Text)
		case outbound.Event == "history":
			hist, err := decodeEvent[proto.EventHistory](outbound.Data)
			if err != nil {
				log.Printf("decode history event: %v", err)
				continue
			}
			for _, evt := range hist.Messages {
				fmt.Printf("[room %d] %s: %s\n", evt.RoomID, evt.User, evt.Text)
			}
		case outbound.Type == proto.OutboundTypeAck:
			// acks for our own frames are noise in interactive mode
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Event, outbound.Data)
		}
	}
}

// decodeEvent round-trips the generic data payload into a concrete event type.
func decodeEvent[T any](data any) (T, error) {
	var evt T
	raw, err := json.Marshal(data)
	if err != nil {
		return evt, err
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		return evt, err
	}
	return evt, nil
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room int64) {
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

			payload, err := json.Marshal(proto.MsgData{RoomID: room, Text: text})
			if err != nil {
				log.Printf("marshal msg: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMsg, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

// authenticate logs the user in, registering it first if it does not exist.
func authenticate(ctx context.Context, baseURL, username, password string) (string, error) {
	token, err := postAuth(ctx, baseURL+"/api/login", username, password)
	if err == nil {
		return token, nil
	}

	token, regErr := postAuth(ctx, baseURL+"/api/register", username, password)
	if regErr != nil {
		return "", fmt.Errorf("login failed (%v) and register failed: %w", err, regErr)
	}
	return token, nil
}

func postAuth(ctx context.Context, url, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%s: empty token", url)
	}
	return out.Token, nil
}
