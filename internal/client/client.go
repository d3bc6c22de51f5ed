// Package client simulates the companion tracking client: it receives anchor
// snapshots from the server and answers with transformed anchors and
// fiducial markers.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

// Config holds the simulator settings
type Config struct {
	Address       string
	Framing       network.Framing
	Schema        network.Schema
	MaxFrameBytes int

	// Offset stands in for the calibration transform
	Offset network.Vector3
	// Markers are fiducial ids reported on a circle around Offset
	Markers      []int
	MarkerRadius float64
	// Window averages the last n positions per anchor; 1 disables smoothing
	Window int
	// Rate caps replies per second; 0 answers every snapshot immediately
	Rate float64
	// MaxReplies stops the session after that many replies; 0 runs until cancelled
	MaxReplies int
	Verbose    bool
}

// Stats are the session totals
type Stats struct {
	Snapshots uint64
	Replies   uint64
	BytesIn   uint64
	BytesOut  uint64
}

// Client represents one simulated tracking session
type Client struct {
	cfg     Config
	display *Display
	logger  *logger.Logger
	limiter *rate.Limiter

	history map[int][]network.Vector3
	phase   float64

	mu    sync.Mutex
	stats Stats
}

// NewClient creates a new simulator
func NewClient(cfg Config, display *Display) *Client {
	if cfg.Framing == "" {
		cfg.Framing = network.FramingLength
	}
	if cfg.Schema != network.SchemaSplit {
		cfg.Schema = network.SchemaFlat
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = network.DefaultMaxFrameBytes
	}
	if cfg.Window <= 0 {
		cfg.Window = 1
	}
	if cfg.MarkerRadius <= 0 {
		cfg.MarkerRadius = 1
	}
	if display == nil {
		display = NewDisplay(nil)
	}

	c := &Client{
		cfg:     cfg,
		display: display,
		logger:  logger.Client,
		history: make(map[int][]network.Vector3),
	}
	if cfg.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return c
}

// Run connects and answers snapshots until ctx is cancelled, the server
// closes the connection or MaxReplies is reached
func (c *Client) Run(ctx context.Context) error {
	c.display.PrintServerStatus("Connecting to " + c.cfg.Address)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.display.PrintConnection(conn.RemoteAddr().String(), c.cfg.Framing, c.cfg.Schema)
	c.logger.Info("Connected to server at %s", c.cfg.Address)
	defer func() { c.display.PrintStats(c.Stats()) }()

	reader := network.NewFrameReader(&meter{r: conn, c: c}, c.cfg.Framing, c.cfg.MaxFrameBytes)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF):
				c.display.PrintWarning("Server closed the connection")
				return nil
			default:
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
		}

		snap, err := network.DecodeOutbound(frame)
		if err != nil {
			c.logger.Warn("Dropping snapshot: %v", err)
			continue
		}
		c.count(func(s *Stats) { s.Snapshots++ })
		if c.cfg.Verbose {
			c.display.PrintSnapshot(snap)
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		reply := c.Reply(snap)
		if err := c.send(conn, reply); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if c.cfg.Verbose {
			c.display.PrintReply(reply)
		}

		if c.cfg.MaxReplies > 0 && c.Stats().Replies >= uint64(c.cfg.MaxReplies) {
			c.logger.Info("Sent %d replies, closing", c.cfg.MaxReplies)
			return nil
		}
	}
}

func (c *Client) send(w io.Writer, msg network.InboundMessage) error {
	payload, err := network.EncodeInbound(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize reply: %w", err)
	}
	frame, err := network.AppendFrame(nil, c.cfg.Framing, payload)
	if err != nil {
		return fmt.Errorf("failed to frame reply: %w", err)
	}
	n, err := w.Write(frame)
	c.count(func(s *Stats) {
		s.BytesOut += uint64(n)
		if err == nil {
			s.Replies++
		}
	})
	if err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// Reply transforms a snapshot into the inbound message sent back. Snapshot
// anchors become skeleton anchors, configured markers are appended.
func (c *Client) Reply(snap network.OutboundMessage) network.InboundMessage {
	anchors := append([]network.Anchor(nil), snap.Anchors...)
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].ID < anchors[j].ID })

	body := make([]network.TransformedAnchor, 0, len(anchors))
	for _, a := range anchors {
		body = append(body, network.TransformedAnchor{
			AnchorID:    a.ID,
			Original:    a.Position,
			Transformed: c.smooth(a.ID, a.Position.Add(c.cfg.Offset)),
		})
	}

	markers := make([]network.TransformedAnchor, 0, len(c.cfg.Markers))
	for i, id := range c.cfg.Markers {
		angle := c.phase + 2*math.Pi*float64(i)/float64(len(c.cfg.Markers))
		local := network.Vector3{
			X: c.cfg.MarkerRadius * math.Cos(angle),
			Z: c.cfg.MarkerRadius * math.Sin(angle),
		}
		markers = append(markers, network.TransformedAnchor{
			AnchorID:    id,
			Original:    local,
			Transformed: local.Add(c.cfg.Offset),
		})
	}
	c.phase += 0.1

	if c.cfg.Schema == network.SchemaSplit {
		return network.InboundMessage{
			Schema:          network.SchemaSplit,
			SkeletonAnchors: body,
			MarkerAnchors:   markers,
		}
	}
	return network.InboundMessage{
		Schema:  network.SchemaFlat,
		Anchors: append(body, markers...),
	}
}

// smooth averages the last Window positions reported for id
func (c *Client) smooth(id int, pos network.Vector3) network.Vector3 {
	h := append(c.history[id], pos)
	if len(h) > c.cfg.Window {
		h = h[len(h)-c.cfg.Window:]
	}
	c.history[id] = h

	var sum network.Vector3
	for _, p := range h {
		sum = sum.Add(p)
	}
	n := float64(len(h))
	return network.Vector3{X: sum.X / n, Y: sum.Y / n, Z: sum.Z / n}
}

// Stats returns the session totals
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) count(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

type meter struct {
	r io.Reader
	c *Client
}

func (m *meter) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.c.count(func(s *Stats) { s.BytesIn += uint64(n) })
	return n, err
}
