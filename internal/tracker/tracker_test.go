package tracker

import (
	"io"
	"os"
	"testing"

	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type object struct {
	id    int
	pos   network.Vector3
	alive bool
}

func (o *object) Valid() bool { return o.alive }

type recorder struct {
	created    []int
	updated    []int
	removed    []int
	nilRemoved []int
	objects    map[int]*object
}

func newRecorder() *recorder {
	return &recorder{objects: make(map[int]*object)}
}

func (r *recorder) OnMarkerCreated(id int, pos network.Vector3) Handle {
	r.created = append(r.created, id)
	o := &object{id: id, pos: pos, alive: true}
	r.objects[id] = o
	return o
}

func (r *recorder) OnMarkerUpdated(id int, pos network.Vector3, h Handle) {
	r.updated = append(r.updated, id)
	h.(*object).pos = pos
}

func (r *recorder) OnMarkerRemoved(id int, h Handle) {
	r.removed = append(r.removed, id)
	if h == nil {
		r.nilRemoved = append(r.nilRemoved, id)
		return
	}
	h.(*object).alive = false
}

func anchor(id int, x float64) network.TransformedAnchor {
	return network.TransformedAnchor{AnchorID: id, Transformed: network.Vector3{X: x}}
}

func TestRemovalAtThreshold(t *testing.T) {
	tr := New(Policy{MissingThreshold: 5}, nil)

	removedAt := uint64(0)
	for c := 1; c <= 10; c++ {
		var batch []network.TransformedAnchor
		if c <= 3 {
			batch = append(batch, anchor(7, 1))
		}
		tr.Ingest(batch)
		if tr.Counter() != uint64(c) {
			t.Fatalf("counter = %d, want %d", tr.Counter(), c)
		}
		removed := tr.Sweep()
		if len(removed) > 0 {
			if removedAt != 0 {
				t.Fatalf("marker removed twice")
			}
			removedAt = tr.Counter()
			if removed[0] != 7 {
				t.Fatalf("removed %v", removed)
			}
		}
	}
	if removedAt != 8 {
		t.Fatalf("marker 7 removed at counter %d, want 8", removedAt)
	}
}

func TestLastWriteWinsWithinBatch(t *testing.T) {
	rec := newRecorder()
	tr := New(Policy{}, rec)

	tr.Ingest([]network.TransformedAnchor{anchor(4, 1), anchor(4, 2), anchor(4, 3)})

	m, ok := tr.Marker(4)
	if !ok {
		t.Fatal("marker 4 not tracked")
	}
	if m.Position.X != 3 {
		t.Fatalf("position = %v, want x=3", m.Position)
	}
	if rec.objects[4].pos.X != 3 {
		t.Fatalf("owned object at %v, want x=3", rec.objects[4].pos)
	}
	if len(rec.created) != 1 || len(rec.updated) != 2 {
		t.Fatalf("created=%v updated=%v", rec.created, rec.updated)
	}
}

func TestIdleTicksDoNotAgeMarkers(t *testing.T) {
	rec := newRecorder()
	tr := New(Policy{}, rec)

	tr.Ingest([]network.TransformedAnchor{{AnchorID: 2, Transformed: network.Vector3{X: 1, Y: 0, Z: 1}}})
	tr.Sweep()
	m, _ := tr.Marker(2)
	if m.Position != (network.Vector3{X: 1, Z: 1}) || m.LastSeenAtSequence != 1 {
		t.Fatalf("unexpected record %#v", m)
	}

	for i := 0; i < 50; i++ {
		if removed := tr.Sweep(); removed != nil {
			t.Fatalf("idle sweep removed %v", removed)
		}
	}

	for i := 0; i < 4; i++ {
		tr.Ingest(nil)
		tr.Sweep()
	}
	if _, ok := tr.Marker(2); !ok {
		t.Fatal("marker removed after only 4 unrelated messages")
	}
	tr.Ingest(nil)
	if removed := tr.Sweep(); len(removed) != 1 || removed[0] != 2 {
		t.Fatalf("expected removal of marker 2, got %v", removed)
	}
	if len(rec.removed) != 1 {
		t.Fatalf("removed callbacks %v", rec.removed)
	}
	if rec.objects[2].alive {
		t.Fatal("owned object should be destroyed on removal")
	}
}

func TestLastSeenIsNonDecreasing(t *testing.T) {
	tr := New(Policy{}, nil)
	var last uint64
	for i := 0; i < 20; i++ {
		batch := []network.TransformedAnchor{}
		if i%3 != 0 {
			batch = append(batch, anchor(1, float64(i)))
		}
		tr.Ingest(batch)
		tr.Sweep()
		m, ok := tr.Marker(1)
		if !ok {
			continue
		}
		if m.LastSeenAtSequence < last {
			t.Fatalf("lastSeen decreased from %d to %d", last, m.LastSeenAtSequence)
		}
		last = m.LastSeenAtSequence
	}
}

func TestInvalidatedHandleIsRecreated(t *testing.T) {
	rec := newRecorder()
	tr := New(Policy{}, rec)

	tr.Ingest([]network.TransformedAnchor{anchor(3, 1)})
	first := rec.objects[3]
	first.alive = false

	tr.Ingest([]network.TransformedAnchor{anchor(3, 5)})
	second := rec.objects[3]
	if second == first {
		t.Fatal("expected a new object after invalidation")
	}
	if !second.alive || second.pos.X != 5 {
		t.Fatalf("recreated object %#v", second)
	}
	if len(rec.created) != 2 {
		t.Fatalf("created = %v", rec.created)
	}
}

func TestInvalidatedHandleRemovedAsNil(t *testing.T) {
	rec := newRecorder()
	tr := New(Policy{MissingThreshold: 1}, rec)

	tr.Ingest([]network.TransformedAnchor{anchor(9, 1)})
	rec.objects[9].alive = false
	tr.Ingest(nil)
	tr.Sweep()

	if len(rec.removed) != 1 || len(rec.nilRemoved) != 1 {
		t.Fatalf("removed=%v nilRemoved=%v", rec.removed, rec.nilRemoved)
	}
}

func TestControlMarkersSkipUpdates(t *testing.T) {
	rec := newRecorder()
	tr := New(Policy{ControlIDs: []int{2}}, rec)

	tr.Ingest([]network.TransformedAnchor{anchor(2, 1), anchor(5, 1)})
	tr.Ingest([]network.TransformedAnchor{anchor(2, 2), anchor(5, 2)})

	if len(rec.created) != 2 {
		t.Fatalf("created = %v", rec.created)
	}
	for _, id := range rec.updated {
		if id == 2 {
			t.Fatal("control marker must not receive position updates")
		}
	}
	m, _ := tr.Marker(2)
	if !m.Control || m.LastSeenAtSequence != 2 {
		t.Fatalf("control marker record %#v", m)
	}
}

func TestSweepOrdersRemovals(t *testing.T) {
	rec := newRecorder()
	tr := New(Policy{MissingThreshold: 2}, rec)
	tr.Ingest([]network.TransformedAnchor{anchor(9, 0), anchor(1, 0), anchor(5, 0)})
	tr.Ingest(nil)
	tr.Ingest(nil)
	removed := tr.Sweep()
	if len(removed) != 3 || removed[0] != 1 || removed[1] != 5 || removed[2] != 9 {
		t.Fatalf("removed = %v", removed)
	}
	created, gone := tr.Totals()
	if created != 3 || gone != 3 || tr.Len() != 0 {
		t.Fatalf("totals created=%d removed=%d len=%d", created, gone, tr.Len())
	}
}

func TestDefaultThreshold(t *testing.T) {
	if got := New(Policy{}, nil).Threshold(); got != DefaultMissingThreshold {
		t.Fatalf("threshold = %d", got)
	}
}
