package acdsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// echoServer accepts one WebSocket connection and relays every binary
// frame it receives back to the same connection.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	if len(httpURL) > 4 && httpURL[:4] == "http" {
		return "ws" + httpURL[4:]
	}
	return httpURL
}

func TestClient_SendReceiveRoundTrip(t *testing.T) {
	t.Parallel()

	srv := echoServer(t)
	c := NewClient(Config{ServerURL: wsURL(srv.URL)})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.Send(ctx, KindSDP, []byte("hello")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case frame := <-c.Frames():
		if frame.Kind != KindSDP {
			t.Errorf("frame.Kind = %v, want KindSDP", frame.Kind)
		}
		if string(frame.Payload) != "hello" {
			t.Errorf("frame.Payload = %q, want %q", frame.Payload, "hello")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}
}

func TestClient_CloseStopsReceiveLoop(t *testing.T) {
	t.Parallel()

	srv := echoServer(t)
	c := NewClient(Config{ServerURL: wsURL(srv.URL)})

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	select {
	case _, ok := <-c.Frames():
		if ok {
			t.Error("Frames() delivered a frame after Close(), want closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Frames() to close")
	}
}

func TestClient_ConnectFailsOnBadURL(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{ServerURL: "ws://127.0.0.1:1/nope", DialTimeout: 500 * time.Millisecond})
	if err := c.Connect(context.Background()); err == nil {
		t.Error("Connect() to an unreachable server succeeded, want error")
	}
}
