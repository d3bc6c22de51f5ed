package game

import (
	"sync/atomic"
	"time"

	"github.com/stestefe/reality-warpers/internal/network"
)

type ObjectKind string

// ObjectKind tells what an object in the scene stands for
const (
	KindBody   ObjectKind = "body"
	KindMarker ObjectKind = "marker"
	KindCart   ObjectKind = "cart"
	KindFlower ObjectKind = "flower"
)

type Mode string

// Mode is switched by the control marker
const (
	ModeTracking Mode = "tracking"
	ModeBasket   Mode = "basket"
)

// Body part names shared by the body and basket profiles
const (
	Head      = "head"
	LeftHand  = "leftHand"
	RightHand = "rightHand"
	LeftFoot  = "leftFoot"
	RightFoot = "rightFoot"
	Cart      = "cart"
)

// Scene defaults
const (
	DefaultSpawnInterval = 2 * time.Second
	DefaultSpawnDelay    = time.Second
	DefaultMaxFlowers    = 10
	DefaultPlaneSize     = 10.0
	DefaultPadding       = 1.0
	DefaultCollectRadius = 0.5
)

// Object is one entity in the headless scene. A destroyed object reports
// Valid() == false, which is what the marker tracker checks.
type Object struct {
	Name     string          `json:"name"`
	Kind     ObjectKind      `json:"kind"`
	Position network.Vector3 `json:"position"`
	Active   bool            `json:"active"`

	destroyed atomic.Bool
}

// Valid reports whether the object still exists in the scene
func (o *Object) Valid() bool {
	return o != nil && !o.destroyed.Load()
}

// ObjectView is a copy of an object for readers outside the main loop
type ObjectView struct {
	Name     string          `json:"name"`
	Kind     ObjectKind      `json:"kind"`
	Position network.Vector3 `json:"position"`
	Active   bool            `json:"active"`
}

// Snapshot is a consistent copy of the scene
type Snapshot struct {
	Mode      Mode         `json:"mode"`
	Collected int          `json:"flowers_collected"`
	Spawned   int          `json:"flowers_spawned"`
	Objects   []ObjectView `json:"objects"`
}

// SpawnerSettings configures the flower spawner
type SpawnerSettings struct {
	Enabled       bool
	Delay         time.Duration
	Interval      time.Duration
	MaxObjects    int
	PlaneX        float64
	PlaneZ        float64
	Padding       float64
	CollectRadius float64
	Seed          int64
}

// Settings describes how inbound anchors drive the scene
type Settings struct {
	// Bodies maps an inbound skeleton anchor id to a body part name
	Bodies map[int]string
	// Sources maps a body part name to the id it is reported under
	Sources map[string]int
	// BodiesInBasketOnly ignores skeleton anchors outside basket mode
	BodiesInBasketOnly bool
	// CartFollowsMarkers moves the cart to each non-control marker, y clamped to 0
	CartFollowsMarkers bool
	// With BasketControl set, marker ControlID switches to basket mode while tracked
	BasketControl bool
	ControlID     int
	Spawner       SpawnerSettings
}
