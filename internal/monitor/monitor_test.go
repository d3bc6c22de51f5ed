package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stestefe/reality-warpers/internal/engine"
	"github.com/stestefe/reality-warpers/internal/game"
	"github.com/stestefe/reality-warpers/internal/server"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testMonitor(ticks *atomic.Uint64) *Monitor {
	return New(Config{Interval: time.Hour}, Sources{
		Profile: "basket",
		Server:  func() server.Status { return server.Status{State: "connected", Connections: 1} },
		Loop:    func() engine.Status { return engine.Status{Tick: ticks.Load(), Counter: 3} },
		Scene:   func() game.Snapshot { return game.Snapshot{Mode: game.ModeBasket} },
	})
}

func TestStatusEndpoint(t *testing.T) {
	var ticks atomic.Uint64
	ticks.Store(42)
	ts := httptest.NewServer(testMonitor(&ticks).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	var r Report
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Profile != "basket" || r.Server.State != "connected" || r.Loop.Tick != 42 || r.Scene.Mode != game.ModeBasket {
		t.Fatalf("report %#v", r)
	}

	post, err := http.Post(ts.URL+"/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status %d", post.StatusCode)
	}
}

func TestReportSkipsMissingSources(t *testing.T) {
	r := New(Config{}, Sources{}).Report()
	if r.Server != nil || r.Loop != nil || r.Scene != nil {
		t.Fatalf("report %#v", r)
	}
}

func readReport(t *testing.T, conn *websocket.Conn) Report {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r Report
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatalf("read: %v", err)
	}
	return r
}

func TestWebsocketViewers(t *testing.T) {
	var ticks atomic.Uint64
	m := testMonitor(&ticks)
	ts := httptest.NewServer(m.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()
		if r := readReport(t, conn); r.Loop.Tick != 0 {
			t.Fatalf("initial report %#v", r)
		}
		conns = append(conns, conn)
	}
	waitFor(t, "three viewers", func() bool { return m.Viewers() == 3 })

	ticks.Store(7)
	m.Broadcast()
	for _, conn := range conns {
		if r := readReport(t, conn); r.Loop.Tick != 7 {
			t.Fatalf("broadcast report %#v", r)
		}
	}

	conns[0].Close()
	waitFor(t, "viewer detach", func() bool { return m.Viewers() == 2 })
}

func TestServeStopsOnCancel(t *testing.T) {
	var ticks atomic.Uint64
	m := New(Config{Interval: 10 * time.Millisecond}, Sources{
		Loop: func() engine.Status { return engine.Status{Tick: ticks.Add(1)} },
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	var conn *websocket.Conn
	waitFor(t, "monitor up", func() bool {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		return err == nil
	})
	defer conn.Close()

	first := readReport(t, conn).Loop.Tick
	second := readReport(t, conn).Loop.Tick
	if second <= first {
		t.Fatalf("ticker broadcasts not advancing: %d then %d", first, second)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not stop")
	}
	if m.Viewers() != 0 {
		t.Fatalf("%d viewers left after stop", m.Viewers())
	}
}

func TestRunReportsBindError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()

	err = New(Config{Address: taken.Addr().String()}, Sources{}).Run(context.Background())
	if _, ok := err.(*server.BindError); !ok {
		t.Fatalf("expected BindError, got %v", err)
	}
}
