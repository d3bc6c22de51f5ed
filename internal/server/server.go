// Package server implements the single-client TCP listener that feeds the mailbox
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hako/durafmt"
	"golang.org/x/time/rate"

	"github.com/stestefe/reality-warpers/internal/mailbox"
	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

// State is the listener lifecycle state
type State int32

const (
	StateIdle State = iota
	StateListening
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the listener settings
type Config struct {
	Address       string
	Framing       network.Framing
	Schema        network.Schema
	MaxFrameBytes int
	WriteTimeout  time.Duration
}

// Server accepts one tracking client at a time and pushes every decoded
// inbound message into the mailbox. It never touches scene state.
type Server struct {
	cfg      Config
	mailbox  *mailbox.Mailbox
	listener net.Listener
	logger   *logger.Logger

	mu     sync.Mutex
	active *Session

	state    atomic.Int32
	stopping atomic.Bool
	halt     context.Context
	cancel   context.CancelFunc

	connections  atomic.Uint64
	framesRead   atomic.Uint64
	decodeErrors atomic.Uint64
	sendsDropped atomic.Uint64

	decodeLog rate.Sometimes
}

// Session is the currently serviced client connection
type Session struct {
	ID        string
	Remote    string
	StartedAt time.Time

	conn    net.Conn
	framing network.Framing

	writeMu  sync.Mutex
	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
	frames   atomic.Uint64
}

// Status is a point-in-time view of the listener for monitoring
type Status struct {
	State        string `json:"state"`
	Address      string `json:"address"`
	SessionID    string `json:"session_id,omitempty"`
	Remote       string `json:"remote,omitempty"`
	ConnectedFor string `json:"connected_for,omitempty"`
	BytesIn      uint64 `json:"bytes_in"`
	BytesOut     uint64 `json:"bytes_out"`
	Connections  uint64 `json:"connections"`
	FramesRead   uint64 `json:"frames_read"`
	DecodeErrors uint64 `json:"decode_errors"`
	SendsDropped uint64 `json:"sends_dropped"`
}

// NewServer creates a listener that feeds mb
func NewServer(cfg Config, mb *mailbox.Mailbox) *Server {
	if cfg.Framing == "" {
		cfg.Framing = network.FramingLength
	}
	if cfg.Schema == "" {
		cfg.Schema = network.SchemaAuto
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = network.DefaultMaxFrameBytes
	}
	halt, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		mailbox:   mb,
		logger:    logger.Server,
		halt:      halt,
		cancel:    cancel,
		decodeLog: rate.Sometimes{First: 3, Interval: 5 * time.Second},
	}
}

// Listen binds the configured address. Failure is a *BindError.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return &BindError{Address: s.cfg.Address, Err: err}
	}
	s.listener = ln
	s.setState(StateListening)
	s.logger.Info("Server listening on %s (framing=%s, schema=%s)", ln.Addr(), s.cfg.Framing, s.cfg.Schema)
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections one at a time until ctx is cancelled or Stop is
// called. The next client is accepted only after the previous stream ended.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("serve called before listen")
	}
	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	// Stop must also wake a read loop blocked on a full mailbox
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unhook := context.AfterFunc(s.halt, cancel)
	defer unhook()

	for {
		s.logger.Info("Waiting for connection...")
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping.Load() || errors.Is(err, net.ErrClosed) {
				s.setState(StateStopped)
				s.logger.Info("Server stopped")
				return nil
			}
			s.logger.Error("Failed to accept connection: %v", err)
			continue
		}

		s.handleSession(ctx, conn)
		if s.stopping.Load() {
			s.setState(StateStopped)
			s.logger.Info("Server stopped")
			return nil
		}
	}
}

// Stop closes the listener and the active connection, unblocking Serve
func (s *Server) Stop() error {
	s.shutdown()
	return nil
}

func (s *Server) shutdown() {
	if s.stopping.Swap(true) {
		return
	}
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	if s.active != nil {
		s.active.conn.Close()
	}
	s.mu.Unlock()
}

// State returns the lifecycle state
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

// Connected reports whether a client is being serviced
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// handleSession reads frames until the peer closes or an I/O error occurs
func (s *Server) handleSession(ctx context.Context, conn net.Conn) {
	sess := &Session{
		ID:        generateSessionID(),
		Remote:    conn.RemoteAddr().String(),
		StartedAt: time.Now(),
		conn:      conn,
		framing:   s.cfg.Framing,
	}

	s.mu.Lock()
	if s.stopping.Load() {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.active = sess
	s.mu.Unlock()
	s.connections.Add(1)
	s.setState(StateConnected)
	s.logger.Info("Connected! session %s from %s", sess.ID, sess.Remote)

	err := s.readLoop(ctx, sess)

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	conn.Close()
	if !s.stopping.Load() {
		s.setState(StateListening)
	}

	var readErr *ReadError
	switch {
	case err == nil:
		s.logger.Info("Session %s closed by peer", sess.ID)
	case errors.As(err, &readErr) && !s.stopping.Load():
		s.logger.Warn("%v", err)
	}
	s.logger.Info("Session %s summary: %d frames, %s in, %s out, lasted %s",
		sess.ID, sess.frames.Load(),
		humanize.Bytes(sess.bytesIn.Load()), humanize.Bytes(sess.bytesOut.Load()),
		durafmt.Parse(time.Since(sess.StartedAt)).LimitFirstN(2).String())
}

func (s *Server) readLoop(ctx context.Context, sess *Session) error {
	reader := network.NewFrameReader(&countingReader{r: sess.conn, n: &sess.bytesIn}, s.cfg.Framing, s.cfg.MaxFrameBytes)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &ReadError{SessionID: sess.ID, Err: err}
		}
		sess.frames.Add(1)
		s.framesRead.Add(1)

		msg, err := network.DecodeInbound(frame, s.cfg.Schema)
		if err != nil {
			s.decodeErrors.Add(1)
			s.decodeLog.Do(func() {
				s.logger.Warn("Session %s: dropping frame: %v", sess.ID, err)
			})
			continue
		}
		s.logger.Debug("Session %s: queued message with %d anchors", sess.ID, msg.Len())

		if err := s.mailbox.Push(ctx, msg); err != nil {
			return err
		}
	}
}

// Status returns a snapshot for monitoring
func (s *Server) Status() Status {
	st := Status{
		State:        s.State().String(),
		Address:      s.cfg.Address,
		Connections:  s.connections.Load(),
		FramesRead:   s.framesRead.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		SendsDropped: s.sendsDropped.Load(),
	}
	if addr := s.Addr(); addr != nil {
		st.Address = addr.String()
	}

	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess != nil {
		st.SessionID = sess.ID
		st.Remote = sess.Remote
		st.ConnectedFor = durafmt.Parse(time.Since(sess.StartedAt)).LimitFirstN(2).String()
		st.BytesIn = sess.bytesIn.Load()
		st.BytesOut = sess.bytesOut.Load()
	}
	return st
}

type countingReader struct {
	r io.Reader
	n *atomic.Uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(uint64(n))
	return n, err
}

// Helper function to generate session IDs
func generateSessionID() string {
	return uuid.NewString()
}
