// Package game implements the headless scene driven by tracked anchors.
//
// Scene is the default host collaborator of the main loop: it owns marker
// visuals, body parts, the cart and the flower spawner, and reports the
// positions that go into every outbound snapshot.
package game

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/internal/tracker"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

// Scene holds every object. Callbacks run on the main loop; Snapshot and
// Destroy may be called from other goroutines.
type Scene struct {
	settings Settings
	logger   *logger.Logger

	mu         sync.RWMutex
	objects    map[string]*Object
	flowers    []*Object
	mode       Mode
	cartPlaced bool
	spawner    *spawner
	spawned    int
	collected  int
}

// NewScene creates body parts and the cart according to settings
func NewScene(settings Settings) *Scene {
	s := &Scene{
		settings: settings,
		logger:   logger.Scene,
		objects:  make(map[string]*Object),
		mode:     ModeTracking,
	}

	for _, name := range settings.Bodies {
		s.addBody(name)
	}
	for name := range settings.Sources {
		s.addBody(name)
	}
	if settings.CartFollowsMarkers {
		s.addBody(Cart)
	}
	if settings.Spawner.Enabled {
		s.spawner = newSpawner(settings.Spawner)
	}
	return s
}

func (s *Scene) addBody(name string) {
	if _, ok := s.objects[name]; ok {
		return
	}
	kind := KindBody
	if name == Cart {
		kind = KindCart
	}
	s.objects[name] = &Object{Name: name, Kind: kind, Active: true}
}

func markerName(id int) string {
	return fmt.Sprintf("marker/%d", id)
}

// Mode returns the current scene mode
func (s *Scene) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Position returns the position of a named object
func (s *Scene) Position(name string) (network.Vector3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[name]
	if !ok {
		return network.Vector3{}, false
	}
	return o.Position, true
}

// Sources returns one position source per configured outbound id
func (s *Scene) Sources() map[int]func() network.Vector3 {
	out := make(map[int]func() network.Vector3, len(s.settings.Sources))
	for name, id := range s.settings.Sources {
		name := name
		out[id] = func() network.Vector3 {
			pos, _ := s.Position(name)
			return pos
		}
	}
	return out
}

func (s *Scene) isControl(id int) bool {
	return s.settings.BasketControl && id == s.settings.ControlID
}

// OnMarkerCreated spawns the marker visual. The control marker only switches
// the scene into basket mode and owns nothing.
func (s *Scene) OnMarkerCreated(id int, pos network.Vector3) tracker.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isControl(id) {
		s.setMode(ModeBasket)
		return nil
	}

	s.moveCart(pos)
	o := &Object{Name: markerName(id), Kind: KindMarker, Position: pos, Active: true}
	s.objects[o.Name] = o
	s.logger.Debug("Spawned visual for marker %d at %v", id, pos)
	return o
}

// OnMarkerUpdated moves the marker visual and the cart
func (s *Scene) OnMarkerUpdated(id int, pos network.Vector3, h tracker.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.moveCart(pos)
	if o, ok := h.(*Object); ok && o.Valid() {
		o.Position = pos
	}
}

// OnMarkerRemoved destroys the marker visual, or leaves basket mode for the
// control marker
func (s *Scene) OnMarkerRemoved(id int, h tracker.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isControl(id) {
		s.setMode(ModeTracking)
	}
	if o, ok := h.(*Object); ok && o.Valid() {
		s.destroy(o)
		s.logger.Debug("Destroyed visual for marker %d", id)
	}
}

// ApplyBody moves body parts to their skeleton anchors
func (s *Scene) ApplyBody(anchors []network.TransformedAnchor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings.BodiesInBasketOnly && s.mode != ModeBasket {
		return
	}
	for _, a := range anchors {
		name, ok := s.settings.Bodies[a.AnchorID]
		if !ok {
			continue
		}
		if o, ok := s.objects[name]; ok {
			o.Position = a.Transformed
		}
	}
}

// Update runs the flower spawner and collects flowers touched by the cart
func (s *Scene) Update(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spawner != nil && s.spawner.due(now) {
		s.spawnFlower()
	}
	s.collectFlowers()
}

// Destroy removes a marker visual or flower from the scene, invalidating its
// handle. Body parts and the cart cannot be destroyed.
func (s *Scene) Destroy(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[name]
	if !ok || o.Kind == KindBody || o.Kind == KindCart {
		return false
	}
	s.destroy(o)
	return true
}

// Snapshot copies the scene ordered by object name
func (s *Scene) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Mode:      s.mode,
		Collected: s.collected,
		Spawned:   s.spawned,
		Objects:   make([]ObjectView, 0, len(s.objects)),
	}
	for _, o := range s.objects {
		snap.Objects = append(snap.Objects, ObjectView{
			Name:     o.Name,
			Kind:     o.Kind,
			Position: o.Position,
			Active:   o.Active,
		})
	}
	sort.Slice(snap.Objects, func(i, j int) bool { return snap.Objects[i].Name < snap.Objects[j].Name })
	return snap
}

func (s *Scene) destroy(o *Object) {
	o.destroyed.Store(true)
	delete(s.objects, o.Name)
	if o.Kind != KindFlower {
		return
	}
	for i, f := range s.flowers {
		if f == o {
			s.flowers = append(s.flowers[:i], s.flowers[i+1:]...)
			break
		}
	}
}

func (s *Scene) moveCart(pos network.Vector3) {
	if !s.settings.CartFollowsMarkers {
		return
	}
	cart, ok := s.objects[Cart]
	if !ok {
		return
	}
	cart.Position = network.Vector3{X: pos.X, Y: 0, Z: pos.Z}
	s.cartPlaced = true
}

// setMode hides flowers in basket mode and shows them again afterwards
func (s *Scene) setMode(m Mode) {
	if s.mode == m {
		return
	}
	s.mode = m
	active := m != ModeBasket
	for _, f := range s.flowers {
		f.Active = active
	}
	if m == ModeBasket {
		s.logger.Info("Entering basket mode, %d flowers hidden", len(s.flowers))
	} else {
		s.logger.Info("Leaving basket mode, %d flowers shown", len(s.flowers))
	}
}

func (s *Scene) spawnFlower() {
	if len(s.flowers) >= s.spawner.cfg.MaxObjects {
		return
	}
	pos, ok := s.spawner.position()
	if !ok {
		return
	}
	s.spawned++
	o := &Object{
		Name:     fmt.Sprintf("flower/%d", s.spawned),
		Kind:     KindFlower,
		Position: pos,
		Active:   s.mode != ModeBasket,
	}
	s.objects[o.Name] = o
	s.flowers = append(s.flowers, o)
	s.logger.Debug("Spawned %s at %v", o.Name, pos)
}

func (s *Scene) collectFlowers() {
	if !s.cartPlaced || s.spawner == nil {
		return
	}
	cart := s.objects[Cart]
	radius := s.spawner.cfg.CollectRadius

	var hit []*Object
	for _, f := range s.flowers {
		if !f.Active {
			continue
		}
		if math.Hypot(f.Position.X-cart.Position.X, f.Position.Z-cart.Position.Z) <= radius {
			hit = append(hit, f)
		}
	}
	for _, f := range hit {
		s.destroy(f)
		s.collected++
		s.logger.Info("Collected %s (%d total)", f.Name, s.collected)
	}
}
