// Package engine runs the tick-driven main loop: drain the mailbox, update
// markers, run host logic and send position snapshots on a fixed cadence.
package engine

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/stestefe/reality-warpers/internal/mailbox"
	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/internal/tracker"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

const (
	DefaultTickRate     = 60
	DefaultSendInterval = 500 * time.Millisecond
)

// Sender delivers an outbound snapshot; it must not block for long
type Sender interface {
	Send(network.OutboundMessage) error
}

// BodyConsumer receives the skeleton anchors of every drained message
type BodyConsumer interface {
	ApplyBody(anchors []network.TransformedAnchor)
}

// Updater runs host logic once per tick after markers were swept
type Updater interface {
	Update(now time.Time)
}

// PositionFunc reports the current position of a tracked local object
type PositionFunc func() network.Vector3

// Config tunes the loop cadence
type Config struct {
	TickRate     int
	SendInterval time.Duration
}

type source struct {
	id  int
	get PositionFunc
}

// Loop is driven from a single goroutine; only Status is safe to call concurrently
type Loop struct {
	cfg      Config
	mailbox  *mailbox.Mailbox
	tracker  *tracker.Tracker
	sender   Sender
	sources  []source
	bodies   []BodyConsumer
	updaters []Updater
	logger   *logger.Logger

	nextSend time.Time
	ticks    uint64
	drained  uint64
	sent     uint64
	failed   uint64
	lastSend time.Time

	status atomic.Pointer[Status]
}

// MarkerStatus describes one tracked marker
type MarkerStatus struct {
	ID        int             `json:"id"`
	LastSeen  uint64          `json:"last_seen"`
	Staleness uint64          `json:"staleness"`
	Position  network.Vector3 `json:"position"`
	Control   bool            `json:"control"`
	HasObject bool            `json:"has_object"`
}

// Status is published after every tick
type Status struct {
	Tick            uint64         `json:"tick"`
	Counter         uint64         `json:"message_counter"`
	MessagesDrained uint64         `json:"messages_drained"`
	SnapshotsSent   uint64         `json:"snapshots_sent"`
	SendErrors      uint64         `json:"send_errors"`
	LastSendAt      time.Time      `json:"last_send_at"`
	MailboxDepth    int            `json:"mailbox_depth"`
	Threshold       int            `json:"missing_threshold"`
	Markers         []MarkerStatus `json:"markers"`
}

// NewLoop wires the mailbox, tracker and sender. sender may be nil.
func NewLoop(cfg Config, mb *mailbox.Mailbox, tr *tracker.Tracker, sender Sender) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = DefaultSendInterval
	}
	l := &Loop{
		cfg:     cfg,
		mailbox: mb,
		tracker: tr,
		sender:  sender,
		logger:  logger.Server,
	}
	l.status.Store(&Status{Threshold: tr.Threshold()})
	return l
}

// RegisterPositionSource adds or replaces the source reported under id.
// Call it before Run.
func (l *Loop) RegisterPositionSource(id int, get PositionFunc) {
	for i := range l.sources {
		if l.sources[i].id == id {
			l.sources[i].get = get
			return
		}
	}
	l.sources = append(l.sources, source{id: id, get: get})
	sort.SliceStable(l.sources, func(i, j int) bool { return l.sources[i].id < l.sources[j].id })
}

// AddBodyConsumer registers a skeleton position consumer
func (l *Loop) AddBodyConsumer(c BodyConsumer) {
	l.bodies = append(l.bodies, c)
}

// AddUpdater registers per-tick host logic
func (l *Loop) AddUpdater(u Updater) {
	l.updaters = append(l.updaters, u)
}

// Tick runs one iteration of the main loop
func (l *Loop) Tick(now time.Time) {
	l.ticks++

	for _, msg := range l.mailbox.Drain() {
		l.tracker.Ingest(msg.Markers())
		for _, b := range l.bodies {
			b.ApplyBody(msg.Body())
		}
		l.drained++
	}
	l.tracker.Sweep()

	for _, u := range l.updaters {
		u.Update(now)
	}

	if l.sender != nil && !now.Before(l.nextSend) {
		l.sendSnapshot(now)
		l.nextSend = now.Add(l.cfg.SendInterval)
	}

	l.publish()
}

// Snapshot builds the outbound message from every registered source
func (l *Loop) Snapshot() network.OutboundMessage {
	msg := network.OutboundMessage{Anchors: make([]network.Anchor, 0, len(l.sources))}
	for _, s := range l.sources {
		msg.Anchors = append(msg.Anchors, network.Anchor{ID: s.id, Position: s.get()})
	}
	return msg
}

func (l *Loop) sendSnapshot(now time.Time) {
	if err := l.sender.Send(l.Snapshot()); err != nil {
		l.failed++
		l.logger.Warn("Dropping snapshot: %v", err)
		return
	}
	l.sent++
	l.lastSend = now
}

// Run ticks at the configured rate until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(l.cfg.TickRate))
	defer ticker.Stop()

	l.logger.Info("Main loop running at %d Hz, snapshot every %s", l.cfg.TickRate, l.cfg.SendInterval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Main loop stopped after %d ticks", l.ticks)
			return nil
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}

func (l *Loop) publish() {
	counter := l.tracker.Counter()
	markers := l.tracker.Markers()
	st := &Status{
		Tick:            l.ticks,
		Counter:         counter,
		MessagesDrained: l.drained,
		SnapshotsSent:   l.sent,
		SendErrors:      l.failed,
		LastSendAt:      l.lastSend,
		MailboxDepth:    l.mailbox.Len(),
		Threshold:       l.tracker.Threshold(),
		Markers:         make([]MarkerStatus, 0, len(markers)),
	}
	for _, m := range markers {
		st.Markers = append(st.Markers, MarkerStatus{
			ID:        m.ID,
			LastSeen:  m.LastSeenAtSequence,
			Staleness: m.Staleness(counter),
			Position:  m.Position,
			Control:   m.Control,
			HasObject: m.Owned != nil && m.Owned.Valid(),
		})
	}
	l.status.Store(st)
}

// Status returns the state published by the last tick
func (l *Loop) Status() Status {
	return *l.status.Load()
}
