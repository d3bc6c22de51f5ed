// Package monitor serves the live status of a running server over HTTP and
// websocket.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/remeh/sizedwaitgroup"

	"github.com/stestefe/reality-warpers/internal/engine"
	"github.com/stestefe/reality-warpers/internal/game"
	"github.com/stestefe/reality-warpers/internal/server"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

// Defaults
const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultMaxParallel = 8
	writeWait          = time.Second
)

// Sources supplies the parts of a report. Nil entries are left out.
type Sources struct {
	Profile string
	Server  func() server.Status
	Loop    func() engine.Status
	Scene   func() game.Snapshot
}

// Report is one status document
type Report struct {
	Time    time.Time      `json:"time"`
	Profile string         `json:"profile,omitempty"`
	Server  *server.Status `json:"server,omitempty"`
	Loop    *engine.Status `json:"loop,omitempty"`
	Scene   *game.Snapshot `json:"scene,omitempty"`
}

// Config holds the monitor settings
type Config struct {
	Address     string
	Interval    time.Duration
	MaxParallel int
}

type viewer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (v *viewer) write(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return v.conn.WriteMessage(websocket.TextMessage, data)
}

// Monitor publishes reports to HTTP clients and websocket viewers
type Monitor struct {
	cfg      Config
	sources  Sources
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

// New creates a monitor
func New(cfg Config, sources Sources) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	return &Monitor{
		cfg:     cfg,
		sources: sources,
		logger:  logger.Monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		viewers: make(map[*viewer]struct{}),
	}
}

// Report collects the current status from every source
func (m *Monitor) Report() Report {
	r := Report{Time: time.Now(), Profile: m.sources.Profile}
	if m.sources.Server != nil {
		st := m.sources.Server()
		r.Server = &st
	}
	if m.sources.Loop != nil {
		st := m.sources.Loop()
		r.Loop = &st
	}
	if m.sources.Scene != nil {
		snap := m.sources.Scene()
		r.Scene = &snap
	}
	return r
}

// Handler returns the HTTP routes
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data, err := json.Marshal(m.Report())
		if err != nil {
			http.Error(w, "failed to encode", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/ws", m.handleWS)
	return mux
}

func (m *Monitor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	v := &viewer{conn: conn}

	data, err := json.Marshal(m.Report())
	if err == nil {
		err = v.write(data)
	}
	if err != nil {
		conn.Close()
		return
	}

	m.mu.Lock()
	m.viewers[v] = struct{}{}
	count := len(m.viewers)
	m.mu.Unlock()
	m.logger.Info("Viewer %s attached (%d watching)", r.RemoteAddr, count)

	// viewers only listen; reading keeps control frames flowing and detects close
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	m.drop(v)
	m.logger.Info("Viewer %s detached", r.RemoteAddr)
}

func (m *Monitor) drop(v *viewer) {
	m.mu.Lock()
	_, ok := m.viewers[v]
	delete(m.viewers, v)
	m.mu.Unlock()
	if ok {
		v.conn.Close()
	}
}

// Viewers returns the number of attached websocket viewers
func (m *Monitor) Viewers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.viewers)
}

// Broadcast sends the current report to every viewer, at most MaxParallel
// writes at a time. Viewers whose write fails are dropped.
func (m *Monitor) Broadcast() {
	m.mu.Lock()
	targets := make([]*viewer, 0, len(m.viewers))
	for v := range m.viewers {
		targets = append(targets, v)
	}
	m.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(m.Report())
	if err != nil {
		m.logger.Error("Failed to encode report: %v", err)
		return
	}

	swg := sizedwaitgroup.New(m.cfg.MaxParallel)
	for _, v := range targets {
		swg.Add()
		go func(v *viewer) {
			defer swg.Done()
			if err := v.write(data); err != nil {
				m.logger.Debug("Dropping viewer: %v", err)
				m.drop(v)
			}
		}(v)
	}
	swg.Wait()
}

// Run serves HTTP on the configured address and broadcasts every Interval
// until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.cfg.Address)
	if err != nil {
		return &server.BindError{Address: m.cfg.Address, Err: err}
	}
	return m.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (m *Monitor) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	m.logger.Info("Monitor listening on http://%s (status every %s)", ln.Addr(), m.cfg.Interval)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
			m.closeViewers()
			m.logger.Info("Monitor stopped")
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			m.Broadcast()
		}
	}
}

func (m *Monitor) closeViewers() {
	m.mu.Lock()
	targets := m.viewers
	m.viewers = make(map[*viewer]struct{})
	m.mu.Unlock()

	for v := range targets {
		v.mu.Lock()
		v.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
			time.Now().Add(writeWait))
		v.mu.Unlock()
		v.conn.Close()
	}
}
