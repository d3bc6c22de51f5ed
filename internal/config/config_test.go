package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stestefe/reality-warpers/internal/game"
	"github.com/stestefe/reality-warpers/internal/network"
)

func TestBuiltinProfiles(t *testing.T) {
	tests := []struct {
		name     string
		schema   network.Schema
		interval time.Duration
		sources  int
	}{
		{"basic", network.SchemaFlat, 2 * time.Second, 0},
		{"body", network.SchemaFlat, 500 * time.Millisecond, 5},
		{"basket", network.SchemaSplit, 500 * time.Millisecond, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Builtin(tt.name)
			if !ok {
				t.Fatalf("builtin %s missing", tt.name)
			}
			if err := p.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}
			if p.Schema != string(tt.schema) || p.SendInterval.Std() != tt.interval || len(p.Sources) != tt.sources {
				t.Fatalf("profile %#v", p)
			}
			if p.Framing != string(network.FramingLength) || p.MissingThreshold != 5 || p.TickRate != 60 {
				t.Fatalf("defaults not applied: %#v", p)
			}
		})
	}
}

func TestBuiltinIsACopy(t *testing.T) {
	p, _ := Builtin("basket")
	p.Sources[game.Cart] = 99
	p.Spawner.MaxObjects = 1
	*p.BasketMarker = 7

	again, _ := Builtin("basket")
	if again.Sources[game.Cart] != 3 || again.Spawner.MaxObjects != 10 || *again.BasketMarker != 2 {
		t.Fatal("builtin profile was mutated through a copy")
	}
}

func TestBasketPolicyAndScene(t *testing.T) {
	p, _ := Builtin("basket")

	policy := p.TrackerPolicy()
	if !reflect.DeepEqual(policy.ControlIDs, []int{2}) || policy.MissingThreshold != 5 {
		t.Fatalf("policy %#v", policy)
	}

	s := p.SceneSettings()
	if !s.BasketControl || s.ControlID != 2 || !s.CartFollowsMarkers || !s.BodiesInBasketOnly {
		t.Fatalf("scene settings %#v", s)
	}
	if !s.Spawner.Enabled || s.Spawner.Interval != 2*time.Second || s.Spawner.PlaneX != 10 || s.Spawner.Padding != 1 {
		t.Fatalf("spawner %#v", s.Spawner)
	}
	if s.Bodies[0] != game.LeftHand || s.Bodies[1] != game.RightHand {
		t.Fatalf("bodies %#v", s.Bodies)
	}
}

func TestControlIDsAreMerged(t *testing.T) {
	p := &Profile{ControlIDs: []int{9, 2}, BasketMarker: intPtr(2)}
	if got := p.TrackerPolicy().ControlIDs; !reflect.DeepEqual(got, []int{2, 9}) {
		t.Fatalf("control ids %v", got)
	}
}

func TestDurationJSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"250ms","b":1.5}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.Std() != 250*time.Millisecond || v.B.Std() != 1500*time.Millisecond {
		t.Fatalf("got %v %v", v.A.Std(), v.B.Std())
	}
	out, _ := json.Marshal(Duration(2 * time.Second))
	if string(out) != `"2s"` {
		t.Fatalf("marshal %s", out)
	}
	if err := json.Unmarshal([]byte(`{"a":"soon"}`), &v); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		edit func(p *Profile)
		want string
	}{
		{"schema", func(p *Profile) { p.Schema = "xml" }, "schema"},
		{"framing", func(p *Profile) { p.Framing = "carrier-pigeon" }, "framing"},
		{"duplicate source", func(p *Profile) { p.Sources[game.Cart] = 1 }, "share id"},
		{"padding", func(p *Profile) { p.Spawner.Padding = 5 }, "padding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := Builtin("basket")
			tt.edit(p)
			err := p.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestManagerSaveLoad(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	p, _ := Builtin("body")
	p.Name = "studio"
	p.SendInterval = Duration(250 * time.Millisecond)
	if err := m.Save(p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.Load("studio")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("loaded %#v\nwant %#v", got, p)
	}

	names, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"studio", "basic", "basket", "body"}) {
		t.Fatalf("names %v", names)
	}
}

func TestManagerLoadPathAndFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	doc := `{"schema":"split","send_interval":"1s","basket_marker":4,"spawner":{"delay":0,"interval":"3s","max_objects":2,"plane_size":[6,6],"padding":0.5}}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(filepath.Join(dir, "missing"))
	p, err := m.Load(path)
	if err != nil {
		t.Fatalf("load path: %v", err)
	}
	if p.Name != "custom" || p.Spawner.CollectRadius != game.DefaultCollectRadius || *p.BasketMarker != 4 {
		t.Fatalf("profile %#v", p)
	}

	if _, err := m.Load("basket"); err != nil {
		t.Fatalf("builtin fallback: %v", err)
	}
	if _, err := m.Load("nope"); err == nil || !strings.Contains(err.Error(), "basic, basket, body") {
		t.Fatalf("err = %v", err)
	}
}

func TestManagerLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"schema":`), 0644)
	if _, err := NewManager(dir).Load("broken"); err == nil {
		t.Fatal("expected parse error")
	}
}
