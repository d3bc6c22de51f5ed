package game

import (
	"math/rand"
	"time"

	"github.com/stestefe/reality-warpers/internal/network"
)

// spawner decides when and where the next flower appears
type spawner struct {
	cfg     SpawnerSettings
	rng     *rand.Rand
	next    time.Time
	started bool
}

func newSpawner(cfg SpawnerSettings) *spawner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSpawnInterval
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.MaxObjects <= 0 {
		cfg.MaxObjects = DefaultMaxFlowers
	}
	if cfg.PlaneX <= 0 {
		cfg.PlaneX = DefaultPlaneSize
	}
	if cfg.PlaneZ <= 0 {
		cfg.PlaneZ = DefaultPlaneSize
	}
	if cfg.CollectRadius <= 0 {
		cfg.CollectRadius = DefaultCollectRadius
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &spawner{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// due reports whether a spawn is scheduled at now. The first spawn happens
// Delay after the first call, then one every Interval.
func (sp *spawner) due(now time.Time) bool {
	if !sp.started {
		sp.started = true
		sp.next = now.Add(sp.cfg.Delay)
	}
	if now.Before(sp.next) {
		return false
	}
	sp.next = now.Add(sp.cfg.Interval)
	return true
}

// position picks a random point on the ground plane inside the padding
func (sp *spawner) position() (network.Vector3, bool) {
	halfX := sp.cfg.PlaneX/2 - sp.cfg.Padding
	halfZ := sp.cfg.PlaneZ/2 - sp.cfg.Padding
	if halfX <= 0 || halfZ <= 0 {
		return network.Vector3{}, false
	}
	return network.Vector3{
		X: -halfX + sp.rng.Float64()*2*halfX,
		Z: -halfZ + sp.rng.Float64()*2*halfZ,
	}, true
}
