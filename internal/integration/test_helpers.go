package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classhub/internal/app"
	"classhub/internal/config"
	"classhub/pkg/types"
)

// StartTestApplication runs a full application on an ephemeral port with
// its audit log in a temp dir. mutate may adjust the config first.
func StartTestApplication(t *testing.T, mutate func(*config.Config)) *app.Application {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "classhub.db")
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	application, err := app.NewApplication(cfg, app.Options{Logger: logger})
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Logf("Failed to stop application: %v", err)
		}
	})
	return application
}

// TestClient is a student's browser tab.
type TestClient struct {
	t    *testing.T
	conn *websocket.Conn
	ID   string
}

// Dial connects to the application and consumes the greeting.
func Dial(t *testing.T, application *app.Application) *TestClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+application.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	c := &TestClient{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })

	greeting := c.Expect(types.MessageTypeConnectionEstablished)
	c.ID = greeting.ClientID
	if c.ID == "" {
		t.Fatal("connection_established carried no clientId")
	}
	return c
}

// Send writes one protocol frame.
func (c *TestClient) Send(msgType string, data types.Payload) {
	c.t.Helper()
	frame, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	if err != nil {
		c.t.Fatalf("marshal failed: %v", err)
	}
	c.SendRaw(string(frame))
}

// SendRaw writes frame verbatim.
func (c *TestClient) SendRaw(frame string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		c.t.Fatalf("write failed: %v", err)
	}
}

// Next reads one envelope.
func (c *TestClient) Next() (types.Envelope, error) {
	var env types.Envelope
	if err := c.conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		return env, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return env, err
	}
	err = json.Unmarshal(data, &env)
	return env, err
}

// Expect reads until a frame of msgType arrives, failing on timeout.
func (c *TestClient) Expect(msgType string) types.Envelope {
	c.t.Helper()
	for {
		env, err := c.Next()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type == msgType {
			return env
		}
	}
}

// Close closes the socket from the client side.
func (c *TestClient) Close() {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}
