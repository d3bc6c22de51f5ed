// Package config holds deployment profiles: which schema, framing, cadence,
// position sources and scene behaviour a server instance runs with.
package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/stestefe/reality-warpers/internal/game"
	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/internal/tracker"
)

// Duration reads "500ms" style strings or plain seconds from JSON
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", data)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Profile is one deployment of the server
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Schema        string   `json:"schema"`
	Framing       string   `json:"framing"`
	MaxFrameBytes int      `json:"max_frame_bytes,omitempty"`
	WriteTimeout  Duration `json:"write_timeout,omitempty"`
	MailboxSize   int      `json:"mailbox_size,omitempty"`

	TickRate         int      `json:"tick_hz,omitempty"`
	SendInterval     Duration `json:"send_interval"`
	MissingThreshold int      `json:"missing_threshold,omitempty"`
	ControlIDs       []int    `json:"control_ids,omitempty"`

	// Sources maps a body part to the id it is reported under
	Sources map[string]int `json:"sources,omitempty"`
	// Bodies maps an inbound skeleton id to a body part
	Bodies             map[int]string `json:"bodies,omitempty"`
	BodiesInBasketOnly bool           `json:"bodies_in_basket_only,omitempty"`
	CartFollowsMarkers bool           `json:"cart_follows_markers,omitempty"`
	BasketMarker       *int           `json:"basket_marker,omitempty"`
	Spawner            *Spawner       `json:"spawner,omitempty"`

	MonitorInterval Duration `json:"monitor_interval,omitempty"`
}

// Spawner configures the flower spawner
type Spawner struct {
	Delay         Duration   `json:"delay"`
	Interval      Duration   `json:"interval"`
	MaxObjects    int        `json:"max_objects"`
	PlaneSize     [2]float64 `json:"plane_size"`
	Padding       float64    `json:"padding"`
	CollectRadius float64    `json:"collect_radius,omitempty"`
	Seed          int64      `json:"seed,omitempty"`
}

// Profile defaults
const (
	DefaultMailboxSize     = 256
	DefaultWriteTimeout    = 100 * time.Millisecond
	DefaultMonitorInterval = 500 * time.Millisecond
)

// ApplyDefaults fills every unset field
func (p *Profile) ApplyDefaults() {
	if p.Schema == "" {
		p.Schema = string(network.SchemaAuto)
	}
	if p.Framing == "" {
		p.Framing = string(network.FramingLength)
	}
	if p.MaxFrameBytes <= 0 {
		p.MaxFrameBytes = network.DefaultMaxFrameBytes
	}
	if p.WriteTimeout <= 0 {
		p.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if p.MailboxSize <= 0 {
		p.MailboxSize = DefaultMailboxSize
	}
	if p.TickRate <= 0 {
		p.TickRate = 60
	}
	if p.SendInterval <= 0 {
		p.SendInterval = Duration(500 * time.Millisecond)
	}
	if p.MissingThreshold <= 0 {
		p.MissingThreshold = tracker.DefaultMissingThreshold
	}
	if p.MonitorInterval <= 0 {
		p.MonitorInterval = Duration(DefaultMonitorInterval)
	}
	if sp := p.Spawner; sp != nil {
		if sp.Interval <= 0 {
			sp.Interval = Duration(game.DefaultSpawnInterval)
		}
		if sp.MaxObjects == 0 {
			sp.MaxObjects = game.DefaultMaxFlowers
		}
		if sp.PlaneSize == [2]float64{} {
			sp.PlaneSize = [2]float64{game.DefaultPlaneSize, game.DefaultPlaneSize}
		}
		if sp.CollectRadius <= 0 {
			sp.CollectRadius = game.DefaultCollectRadius
		}
	}
}

// Validate checks the profile after defaults were applied
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile has no name")
	}
	if _, err := network.ParseSchema(p.Schema); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if _, err := network.ParseFraming(p.Framing); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if p.TickRate > 1000 {
		return fmt.Errorf("profile %s: tick_hz %d is above 1000", p.Name, p.TickRate)
	}

	seen := make(map[int]string, len(p.Sources))
	for name, id := range p.Sources {
		if other, dup := seen[id]; dup {
			return fmt.Errorf("profile %s: sources %s and %s share id %d", p.Name, other, name, id)
		}
		seen[id] = name
	}
	if p.Spawner != nil {
		if p.Spawner.MaxObjects < 0 {
			return fmt.Errorf("profile %s: spawner max_objects is negative", p.Name)
		}
		if p.Spawner.PlaneSize[0]/2 <= p.Spawner.Padding || p.Spawner.PlaneSize[1]/2 <= p.Spawner.Padding {
			return fmt.Errorf("profile %s: spawner padding %.2f leaves no room on plane %v",
				p.Name, p.Spawner.Padding, p.Spawner.PlaneSize)
		}
	}
	return nil
}

// TrackerPolicy returns the marker policy; the basket marker is always a control id
func (p *Profile) TrackerPolicy() tracker.Policy {
	ids := append([]int(nil), p.ControlIDs...)
	if p.BasketMarker != nil {
		found := false
		for _, id := range ids {
			found = found || id == *p.BasketMarker
		}
		if !found {
			ids = append(ids, *p.BasketMarker)
		}
	}
	sort.Ints(ids)
	return tracker.Policy{MissingThreshold: p.MissingThreshold, ControlIDs: ids}
}

// SceneSettings converts the profile into scene settings
func (p *Profile) SceneSettings() game.Settings {
	s := game.Settings{
		Bodies:             p.Bodies,
		Sources:            p.Sources,
		BodiesInBasketOnly: p.BodiesInBasketOnly,
		CartFollowsMarkers: p.CartFollowsMarkers,
	}
	if p.BasketMarker != nil {
		s.BasketControl = true
		s.ControlID = *p.BasketMarker
	}
	if sp := p.Spawner; sp != nil {
		s.Spawner = game.SpawnerSettings{
			Enabled:       true,
			Delay:         sp.Delay.Std(),
			Interval:      sp.Interval.Std(),
			MaxObjects:    sp.MaxObjects,
			PlaneX:        sp.PlaneSize[0],
			PlaneZ:        sp.PlaneSize[1],
			Padding:       sp.Padding,
			CollectRadius: sp.CollectRadius,
			Seed:          sp.Seed,
		}
	}
	return s
}

func intPtr(v int) *int { return &v }

// builtins are the three lab deployments
var builtins = map[string]Profile{
	"basic": {
		Name:         "basic",
		Description:  "Anchor echo: flat schema, no local sources, snapshot every 2s",
		Schema:       string(network.SchemaFlat),
		SendInterval: Duration(2 * time.Second),
	},
	"body": {
		Name:         "body",
		Description:  "Full body tracking: five body parts out, same ids in",
		Schema:       string(network.SchemaFlat),
		SendInterval: Duration(500 * time.Millisecond),
		Sources: map[string]int{
			game.Head:      0,
			game.LeftHand:  1,
			game.RightHand: 2,
			game.LeftFoot:  3,
			game.RightFoot: 4,
		},
		Bodies: map[int]string{
			0: game.Head,
			1: game.LeftHand,
			2: game.RightHand,
			3: game.LeftFoot,
			4: game.RightFoot,
		},
	},
	"basket": {
		Name:               "basket",
		Description:        "Flower basket game: split schema, markers drive the cart, marker 2 toggles basket mode",
		Schema:             string(network.SchemaSplit),
		SendInterval:       Duration(500 * time.Millisecond),
		Sources:            map[string]int{game.LeftHand: 1, game.RightHand: 2, game.Cart: 3},
		Bodies:             map[int]string{0: game.LeftHand, 1: game.RightHand},
		BodiesInBasketOnly: true,
		CartFollowsMarkers: true,
		BasketMarker:       intPtr(2),
		Spawner: &Spawner{
			Delay:      Duration(time.Second),
			Interval:   Duration(2 * time.Second),
			MaxObjects: 10,
			PlaneSize:  [2]float64{10, 10},
			Padding:    1,
		},
	},
}

// Builtin returns a copy of a built-in profile with defaults applied
func Builtin(name string) (*Profile, bool) {
	p, ok := builtins[name]
	if !ok {
		return nil, false
	}
	if p.Spawner != nil {
		sp := *p.Spawner
		p.Spawner = &sp
	}
	if p.Sources != nil {
		p.Sources = maps.Clone(p.Sources)
	}
	if p.Bodies != nil {
		p.Bodies = maps.Clone(p.Bodies)
	}
	if p.BasketMarker != nil {
		p.BasketMarker = intPtr(*p.BasketMarker)
	}
	p.ApplyDefaults()
	return &p, true
}

// BuiltinNames lists the built-in profiles in order
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
