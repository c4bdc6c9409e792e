// Command ws_smoke performs a one-shot protocol check against a running
// chatline server: register or login, hello, join, send one message, and
// print every frame received until the timeout.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatline/chatline-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	user := flag.String("user", "smoke-tester", "username to authenticate with")
	password := flag.String("password", "smoke-password", "password to authenticate with")
	room := flag.Int64("room", 1, "room id to join")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := authenticate(ctx, *addr, *user, *password)
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
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: raw}); err != nil {
			return fmt.Errorf("send %s: %w", frameType, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeHello, proto.HelloData{Token: token, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeJoin, proto.JoinData{RoomID: *room}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeMsg, proto.MsgData{RoomID: *room, Text: *text}); err != nil {
		return err
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		if outbound.Error != nil {
			fmt.Printf(" error=%s:%s", outbound.Error.Code, outbound.Error.Msg)
		}
		if outbound.Data != nil {
			fmt.Printf(" data=%v", outbound.Data)
		}
		fmt.Println()
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
