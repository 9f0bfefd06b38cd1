package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/bhtree/internal/api"
	"github.com/onnwee/bhtree/internal/api/handlers"
	"github.com/onnwee/bhtree/internal/layout"
	"github.com/onnwee/bhtree/internal/middleware"
)

func startServer(t *testing.T) (addr string, hub *handlers.Hub, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	hub = handlers.NewHub()
	rl := middleware.NewRateLimiter(1000, 1000, 1000, 1000)
	handler := api.NewRouter(api.Deps{
		Layout:      layout.NewService(layout.ServiceConfig{MaxNodes: 10, Workers: 1}, nil, nil),
		Hub:         hub,
		RateLimiter: rl,
	})
	srv := New(Options{Handler: handler, Hub: hub, RateLimiter: rl, ShutdownTimeout: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()
	return ln.Addr().String(), hub, cancel, errCh
}

func TestServer_ServesAndShutsDown(t *testing.T) {
	addr, _, cancel, done := startServer(t)

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	if _, err := http.Get("http://" + addr + "/health"); err == nil {
		t.Error("expected requests to fail after shutdown")
	}
}

func TestServer_ShutdownDisconnectsWebSockets(t *testing.T) {
	addr, hub, cancel, done := startServer(t)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/layout", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down with an open WebSocket")
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected the WebSocket to be closed")
	}
}

func TestServer_RunReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := New(Options{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()})
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected an error for an address in use")
	}
}

type loopWorker struct {
	started chan struct{}
	stopped chan struct{}
}

func (w *loopWorker) Start(ctx context.Context) {
	close(w.started)
	<-ctx.Done()
	close(w.stopped)
}

func TestServer_RunsWorkersUntilShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	w := &loopWorker{started: make(chan struct{}), stopped: make(chan struct{})}
	srv := New(Options{Handler: http.NotFoundHandler(), Workers: []Worker{w}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	select {
	case <-w.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker was not started")
	}
	cancel()
	select {
	case <-w.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker was not stopped on shutdown")
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v", err)
	}
}
