package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades sockets, greets each with a connected event, and then
// relays any frame it receives back to the sender.
type echoServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   []*websocket.Conn
	dialed  int
	headers []http.Header
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	s := &echoServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.dialed++
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		conn.WriteJSON(map[string]any{"event": "connected", "data": map[string]any{"socketId": "s1"}})
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(websocket.TextMessage, raw)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *echoServer) url() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *echoServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialed
}

func (s *echoServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func fastConfig() Config {
	return Config{
		InitialDelay:   20 * time.Millisecond,
		MaxDelay:       80 * time.Millisecond,
		MaxRetries:     10,
		ConnectTimeout: time.Second,
		PingInterval:   time.Minute,
		WriteTimeout:   time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectAndDispatch(t *testing.T) {
	srv := newEchoServer(t)

	c := New("test", srv.url(), "token-123", fastConfig())
	defer c.Close()

	var mu sync.Mutex
	var gotSocketID string
	c.On("connected", func(data json.RawMessage) {
		var payload struct {
			SocketID string `json:"socketId"`
		}
		json.Unmarshal(data, &payload)
		mu.Lock()
		gotSocketID = payload.SocketID
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !c.IsConnected() {
		t.Error("client not connected after Connect")
	}

	waitFor(t, "connected event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotSocketID == "s1"
	})

	// The auth token rides in the handshake header.
	srv.mu.Lock()
	auth := srv.headers[0].Get("Authorization")
	srv.mu.Unlock()
	if auth != "Bearer token-123" {
		t.Errorf("unexpected Authorization header: %q", auth)
	}
}

func TestSendRoundTrip(t *testing.T) {
	srv := newEchoServer(t)

	c := New("test", srv.url(), "", fastConfig())
	defer c.Close()

	var mu sync.Mutex
	var echoed bool
	c.On("ping", func(data json.RawMessage) {
		mu.Lock()
		echoed = true
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Send("ping", map[string]int{"n": 1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitFor(t, "echoed ping", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return echoed
	})
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := newEchoServer(t)

	c := New("test", srv.url(), "", fastConfig())
	defer c.Close()

	var mu sync.Mutex
	connects := 0
	disconnects := 0
	c.OnConnect(func() {
		mu.Lock()
		connects++
		mu.Unlock()
	})
	c.OnDisconnect(func(error) {
		mu.Lock()
		disconnects++
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "first dial", func() bool { return srv.dialCount() == 1 })

	// Server kills the session; the client dials again on its own.
	srv.dropAll()
	waitFor(t, "reconnect", func() bool { return srv.dialCount() == 2 && c.IsConnected() })

	mu.Lock()
	defer mu.Unlock()
	if connects != 2 || disconnects != 1 {
		t.Errorf("expected 2 connects / 1 disconnect, got %d / %d", connects, disconnects)
	}
	if c.RetryCount() != 0 {
		t.Errorf("retry counter not reset: %d", c.RetryCount())
	}
}

func TestGiveUpAfterMaxRetries(t *testing.T) {
	srv := newEchoServer(t)

	cfg := fastConfig()
	cfg.MaxRetries = 2
	c := New("test", srv.url(), "", cfg)
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "first dial", func() bool { return srv.dialCount() == 1 })

	// Take the server away entirely so every retry fails.
	srv.Close()
	srv.dropAll()

	waitFor(t, "give up", func() bool { return c.State() == StateDisconnected })
	if c.RetryCount() < cfg.MaxRetries {
		t.Errorf("expected at least %d attempts, got %d", cfg.MaxRetries, c.RetryCount())
	}
}

func TestSimultaneousPumpFailuresReconnectOnce(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 1
	c := New("test", "ws://127.0.0.1:1/ws", "", cfg)
	defer c.Close()

	var mu sync.Mutex
	disconnects := 0
	c.OnDisconnect(func(error) {
		mu.Lock()
		disconnects++
		mu.Unlock()
	})

	// Read and ping pumps can both fail on the same dropped session at the
	// same instant. Only one may claim the reconnect transition; the other
	// must bow out without a second callback or a second dial loop.
	atomic.StoreInt32(&c.state, int32(StateConnected))
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.handleDisconnect(errors.New("read: connection reset"))
		}()
	}
	wg.Wait()

	mu.Lock()
	got := disconnects
	mu.Unlock()
	if got != 1 {
		t.Errorf("expected exactly 1 disconnect callback, got %d", got)
	}

	// The single surviving loop dials a dead address and gives up.
	waitFor(t, "give up", func() bool { return c.State() == StateDisconnected })
}

func TestConnectFailsFast(t *testing.T) {
	cfg := fastConfig()
	c := New("test", "ws://127.0.0.1:1/ws", "", cfg)
	defer c.Close()

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected state, got %s", c.State())
	}

	if err := c.Send("ping", nil); err == nil {
		t.Error("Send should fail while disconnected")
	}
}

func TestCloseStopsReconnect(t *testing.T) {
	srv := newEchoServer(t)

	c := New("test", srv.url(), "", fastConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("expected closed state, got %s", c.State())
	}

	// Closing twice is fine, and a closed client refuses to dial.
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := c.Connect(context.Background()); err == nil {
		t.Error("Connect on closed client should fail")
	}
}
