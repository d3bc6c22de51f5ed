package game

import (
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/internal/tracker"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func basketSettings() Settings {
	return Settings{
		Bodies:             map[int]string{0: LeftHand, 1: RightHand},
		Sources:            map[string]int{LeftHand: 1, RightHand: 2, Cart: 3},
		BodiesInBasketOnly: true,
		CartFollowsMarkers: true,
		BasketControl:      true,
		ControlID:          2,
		Spawner: SpawnerSettings{
			Enabled:       true,
			Delay:         time.Second,
			Interval:      2 * time.Second,
			MaxObjects:    3,
			PlaneX:        2.2,
			PlaneZ:        2.2,
			Padding:       1,
			CollectRadius: 0.5,
			Seed:          42,
		},
	}
}

func vec(x, y, z float64) network.Vector3 {
	return network.Vector3{X: x, Y: y, Z: z}
}

func TestControlMarkerTogglesBasketMode(t *testing.T) {
	s := NewScene(basketSettings())

	if h := s.OnMarkerCreated(2, vec(4, 4, 4)); h != nil {
		t.Fatalf("control marker must not own an object, got %#v", h)
	}
	if s.Mode() != ModeBasket {
		t.Fatalf("mode = %s, want basket", s.Mode())
	}
	if pos, _ := s.Position(Cart); pos != (network.Vector3{}) {
		t.Fatalf("control marker moved the cart to %v", pos)
	}

	s.OnMarkerRemoved(2, nil)
	if s.Mode() != ModeTracking {
		t.Fatalf("mode = %s, want tracking", s.Mode())
	}
}

func TestCartFollowsMarkersOnGround(t *testing.T) {
	s := NewScene(basketSettings())

	h := s.OnMarkerCreated(7, vec(1, 2, 3))
	if pos, _ := s.Position(Cart); pos != vec(1, 0, 3) {
		t.Fatalf("cart at %v after create", pos)
	}
	s.OnMarkerUpdated(7, vec(-1, 5, 0.5), h)
	if pos, _ := s.Position(Cart); pos != vec(-1, 0, 0.5) {
		t.Fatalf("cart at %v after update", pos)
	}
	if pos, _ := s.Position(markerName(7)); pos != vec(-1, 5, 0.5) {
		t.Fatalf("marker visual at %v", pos)
	}
}

func TestBodiesOnlyMoveInBasketMode(t *testing.T) {
	s := NewScene(basketSettings())
	anchors := []network.TransformedAnchor{
		{AnchorID: 0, Transformed: vec(1, 1, 1)},
		{AnchorID: 1, Transformed: vec(2, 2, 2)},
		{AnchorID: 9, Transformed: vec(9, 9, 9)},
	}

	s.ApplyBody(anchors)
	if pos, _ := s.Position(LeftHand); pos != (network.Vector3{}) {
		t.Fatalf("left hand moved outside basket mode: %v", pos)
	}

	s.OnMarkerCreated(2, vec(0, 0, 0))
	s.ApplyBody(anchors)
	if pos, _ := s.Position(LeftHand); pos != vec(1, 1, 1) {
		t.Fatalf("left hand at %v", pos)
	}
	if pos, _ := s.Position(RightHand); pos != vec(2, 2, 2) {
		t.Fatalf("right hand at %v", pos)
	}
}

func TestSourcesReportCurrentPositions(t *testing.T) {
	s := NewScene(basketSettings())
	sources := s.Sources()
	if len(sources) != 3 {
		t.Fatalf("got %d sources", len(sources))
	}
	s.OnMarkerCreated(5, vec(3, 3, 3))
	if got := sources[3](); got != vec(3, 0, 3) {
		t.Fatalf("cart source = %v", got)
	}
}

func TestDestroyedVisualIsRecreatedByTracker(t *testing.T) {
	s := NewScene(basketSettings())
	tr := tracker.New(tracker.Policy{ControlIDs: []int{2}}, s)

	tr.Ingest([]network.TransformedAnchor{{AnchorID: 4, Transformed: vec(1, 0, 1)}})
	first, _ := tr.Marker(4)
	if !first.Owned.Valid() {
		t.Fatal("marker visual should exist")
	}

	if !s.Destroy(markerName(4)) {
		t.Fatal("destroy failed")
	}
	if first.Owned.Valid() {
		t.Fatal("destroyed handle still valid")
	}

	tr.Ingest([]network.TransformedAnchor{{AnchorID: 4, Transformed: vec(2, 0, 2)}})
	second, _ := tr.Marker(4)
	if second.Owned == first.Owned || !second.Owned.Valid() {
		t.Fatal("visual was not recreated")
	}
	if pos, ok := s.Position(markerName(4)); !ok || pos != vec(2, 0, 2) {
		t.Fatalf("recreated visual at %v, %v", pos, ok)
	}
}

func TestMarkerRemovalDestroysVisual(t *testing.T) {
	s := NewScene(basketSettings())
	tr := tracker.New(tracker.Policy{MissingThreshold: 1}, s)

	tr.Ingest([]network.TransformedAnchor{{AnchorID: 4}})
	tr.Ingest(nil)
	tr.Sweep()
	if _, ok := s.Position(markerName(4)); ok {
		t.Fatal("visual survived marker removal")
	}
}

func TestBodiesAndCartCannotBeDestroyed(t *testing.T) {
	s := NewScene(basketSettings())
	if s.Destroy(LeftHand) || s.Destroy(Cart) || s.Destroy("nope") {
		t.Fatal("destroy should refuse")
	}
}

func TestSpawnerScheduleAndLimit(t *testing.T) {
	s := NewScene(basketSettings())
	start := time.Unix(0, 0)

	counts := []struct {
		at   time.Duration
		want int
	}{
		{0, 0},
		{time.Second, 1},
		{2 * time.Second, 1},
		{3 * time.Second, 2},
		{5 * time.Second, 3},
		{7 * time.Second, 3},
	}
	for _, c := range counts {
		s.Update(start.Add(c.at))
		if got := s.Snapshot().Spawned; got != c.want {
			t.Fatalf("at %s spawned %d, want %d", c.at, got, c.want)
		}
	}

	for _, o := range s.Snapshot().Objects {
		if o.Kind != KindFlower {
			continue
		}
		if math.Abs(o.Position.X) > 0.1+1e-9 || math.Abs(o.Position.Z) > 0.1+1e-9 || o.Position.Y != 0 {
			t.Fatalf("flower outside padded plane: %v", o.Position)
		}
	}
}

func TestSpawnerRejectsPlaneSmallerThanPadding(t *testing.T) {
	sp := newSpawner(SpawnerSettings{PlaneX: 2, PlaneZ: 2, Padding: 1})
	if _, ok := sp.position(); ok {
		t.Fatal("expected no spawn position")
	}
}

func TestCartCollectsVisibleFlowers(t *testing.T) {
	s := NewScene(basketSettings())
	start := time.Unix(0, 0)
	s.Update(start)
	s.Update(start.Add(time.Second))

	// basket mode hides flowers from the cart
	s.OnMarkerCreated(2, vec(0, 0, 0))
	s.OnMarkerCreated(6, vec(0, 1, 0))
	s.Update(start.Add(1500 * time.Millisecond))
	snap := s.Snapshot()
	if snap.Collected != 0 {
		t.Fatal("hidden flower was collected")
	}
	for _, o := range snap.Objects {
		if o.Kind == KindFlower && o.Active {
			t.Fatalf("flower %s visible in basket mode", o.Name)
		}
	}

	s.OnMarkerRemoved(2, nil)
	s.Update(start.Add(1600 * time.Millisecond))
	snap = s.Snapshot()
	if snap.Collected != 1 {
		t.Fatalf("collected = %d, want 1", snap.Collected)
	}
	for _, o := range snap.Objects {
		if o.Kind == KindFlower {
			t.Fatalf("flower %s still present", o.Name)
		}
	}
}
