// Package tracker keeps marker liveness keyed by the inbound message counter.
//
// Every drained inbound message advances the counter by one. A marker is
// removed once counter-lastSeen reaches the missing threshold, so idle ticks
// without traffic never age a marker.
package tracker

import (
	"sort"

	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

// DefaultMissingThreshold is the number of consecutive messages a marker may be
// absent from before it is removed
const DefaultMissingThreshold = 5

// Handle is an object owned by a marker record. Valid reports false once the
// host destroyed the object behind the tracker's back.
type Handle interface {
	Valid() bool
}

// Callbacks are supplied by the host application. They run on the main loop.
type Callbacks interface {
	// OnMarkerCreated is called on first sighting and whenever an invalidated
	// handle must be recreated. It may return nil when nothing is owned.
	OnMarkerCreated(id int, pos network.Vector3) Handle
	// OnMarkerUpdated is called for every later sighting of a non-control marker.
	OnMarkerUpdated(id int, pos network.Vector3, h Handle)
	// OnMarkerRemoved is called exactly once per record. h is nil if the
	// owned object was already gone.
	OnMarkerRemoved(id int, h Handle)
}

// Policy tunes the tracker per deployment
type Policy struct {
	MissingThreshold int
	// ControlIDs are tracked for liveness only; they never drive OnMarkerUpdated
	// and never get their handle recreated.
	ControlIDs []int
}

// MarkerRecord is the bookkeeping for one marker id
type MarkerRecord struct {
	ID                  int
	LastSeenAtSequence  uint64
	FirstSeenAtSequence uint64
	Position            network.Vector3
	Control             bool
	Owned               Handle
}

// Staleness returns how many messages ago the marker was last seen
func (r MarkerRecord) Staleness(counter uint64) uint64 {
	return counter - r.LastSeenAtSequence
}

// Tracker is not safe for concurrent use; it belongs to the main loop
type Tracker struct {
	callbacks Callbacks
	threshold uint64
	control   map[int]bool
	markers   map[int]*MarkerRecord
	counter   uint64
	logger    *logger.Logger

	created uint64
	removed uint64
}

// New creates a tracker. A nil callbacks value disables side effects.
func New(policy Policy, callbacks Callbacks) *Tracker {
	threshold := policy.MissingThreshold
	if threshold <= 0 {
		threshold = DefaultMissingThreshold
	}
	control := make(map[int]bool, len(policy.ControlIDs))
	for _, id := range policy.ControlIDs {
		control[id] = true
	}
	return &Tracker{
		callbacks: callbacks,
		threshold: uint64(threshold),
		control:   control,
		markers:   make(map[int]*MarkerRecord),
		logger:    logger.Tracker,
	}
}

// Counter returns the number of messages ingested so far
func (t *Tracker) Counter() uint64 {
	return t.counter
}

// Threshold returns the configured missing threshold
func (t *Tracker) Threshold() int {
	return int(t.threshold)
}

// Ingest advances the message counter and marks every anchor in message order.
// A repeated id within one batch overwrites the earlier position.
func (t *Tracker) Ingest(anchors []network.TransformedAnchor) {
	t.counter++

	for _, a := range anchors {
		rec, ok := t.markers[a.AnchorID]
		if !ok {
			t.create(a)
			continue
		}

		rec.LastSeenAtSequence = t.counter
		rec.Position = a.Transformed
		if rec.Control {
			continue
		}

		if rec.Owned != nil && !rec.Owned.Valid() {
			rec.Owned = nil
		}
		if rec.Owned == nil && t.callbacks != nil {
			t.logger.Debug("marker %d lost its object, recreating at %v", rec.ID, a.Transformed)
			rec.Owned = t.callbacks.OnMarkerCreated(rec.ID, a.Transformed)
		}
		if t.callbacks != nil {
			t.callbacks.OnMarkerUpdated(rec.ID, a.Transformed, rec.Owned)
		}
	}
}

func (t *Tracker) create(a network.TransformedAnchor) {
	rec := &MarkerRecord{
		ID:                  a.AnchorID,
		LastSeenAtSequence:  t.counter,
		FirstSeenAtSequence: t.counter,
		Position:            a.Transformed,
		Control:             t.control[a.AnchorID],
	}
	t.markers[a.AnchorID] = rec
	t.created++
	t.logger.Debug("creating marker %d at %v (message %d)", rec.ID, rec.Position, t.counter)

	if t.callbacks != nil {
		rec.Owned = t.callbacks.OnMarkerCreated(rec.ID, rec.Position)
	}
}

// Sweep removes every marker whose staleness reached the threshold and
// returns the removed ids in ascending order. It is called once per tick.
func (t *Tracker) Sweep() []int {
	var expired []int
	for id, rec := range t.markers {
		if rec.Staleness(t.counter) >= t.threshold {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	sort.Ints(expired)

	for _, id := range expired {
		rec := t.markers[id]
		delete(t.markers, id)
		t.removed++
		t.logger.Debug("marker %d missing for %d messages, removing", id, rec.Staleness(t.counter))

		owned := rec.Owned
		if owned != nil && !owned.Valid() {
			owned = nil
		}
		rec.Owned = nil
		if t.callbacks != nil {
			t.callbacks.OnMarkerRemoved(id, owned)
		}
	}
	return expired
}

// Marker returns a copy of the record for id
func (t *Tracker) Marker(id int) (MarkerRecord, bool) {
	rec, ok := t.markers[id]
	if !ok {
		return MarkerRecord{}, false
	}
	return *rec, true
}

// Markers returns copies of all records ordered by id
func (t *Tracker) Markers() []MarkerRecord {
	out := make([]MarkerRecord, 0, len(t.markers))
	for _, rec := range t.markers {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked markers
func (t *Tracker) Len() int {
	return len(t.markers)
}

// Totals returns lifetime created and removed counts
func (t *Tracker) Totals() (created, removed uint64) {
	return t.created, t.removed
}
