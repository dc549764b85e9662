package fleet

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crossflow/crossflow/internal/core/events/bus"
	"github.com/crossflow/crossflow/internal/core/geometry"
	"github.com/crossflow/crossflow/internal/core/observability/log"
	"github.com/crossflow/crossflow/internal/core/vehicle"
)

const (
	// spawnGap is the clearance a fresh vehicle needs: if any live vehicle
	// from the same origin sits within this distance of the spawn point the
	// spawn attempt is dropped.
	spawnGap = 60.0
	// spawnBudgetMillis sets the spawn cadence: a rate of r yields one
	// spawn attempt every spawnBudgetMillis/r milliseconds.
	spawnBudgetMillis = 10000.0
)

// Event types published on the bus.
const (
	EventVehicleSpawned   = "vehicle.spawned"
	EventVehicleCompleted = "vehicle.completed"
)

var ErrSpawnBlocked = errors.New("spawn point blocked")

// Spawned is the payload of EventVehicleSpawned.
type Spawned struct {
	ID    string
	Route geometry.Route
	Lane  geometry.Lane
}

// Completion is the payload of EventVehicleCompleted, emitted exactly once
// per vehicle when it retires.
type Completion struct {
	ID          string
	Route       geometry.Route
	Turn        geometry.TurnType
	WaitTime    time.Duration
	CompletedAt time.Time
}

// Settings are the two live-tunable knobs of the fleet.
type Settings struct {
	// MaxSpeed is the cruising cap in units per second.
	MaxSpeed float64
	// SpawnRate controls the spawn cadence; 0 disables automatic spawns.
	SpawnRate float64
}

func DefaultSettings() Settings {
	return Settings{MaxSpeed: 60, SpawnRate: 5}
}

// Stats is a counters snapshot for the statistics feed.
type Stats struct {
	Active    int           `json:"active"`
	Spawned   uint64        `json:"spawned"`
	Completed uint64        `json:"completed"`
	AvgWait   time.Duration `json:"avg_wait"`
}

// Config carries the manager's collaborators. Bus may be nil when nothing
// consumes lifecycle events.
type Config struct {
	Grid     geometry.Grid
	Settings Settings
	Seed     int64
	Logger   log.Log
	Bus      bus.Bus
	Now      func() time.Time
}

// Manager owns the vehicle population: it spawns on a rate-derived timer,
// ticks every vehicle in spawn order, and retires completed ones. All
// randomness flows through the seeded source so runs are reproducible.
type Manager struct {
	mu sync.RWMutex

	grid     geometry.Grid
	vehicles map[string]*vehicle.Vehicle
	// order holds ids in spawn order; iteration follows it so a run's
	// outcome never depends on map ordering.
	order    []string
	spawnAcc time.Duration
	settings Settings

	spawned   uint64
	completed uint64
	waitSum   time.Duration

	rng    *rand.Rand
	logger log.Log
	bus    bus.Bus
	now    func() time.Time
}

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	settings := cfg.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	return &Manager{
		grid:     cfg.Grid,
		vehicles: make(map[string]*vehicle.Vehicle),
		settings: settings,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		logger:   logger,
		bus:      cfg.Bus,
		now:      now,
	}
}

// neighborView is the read-only window vehicles get on the rest of the
// fleet. It reads the live maps without locking: vehicles only consult it
// from inside Update, which already holds the manager lock.
type neighborView struct {
	m *Manager
}

func (n neighborView) PositionsFrom(origin geometry.Direction, excludeID string) []geometry.Point {
	var out []geometry.Point
	for _, id := range n.m.order {
		if id == excludeID {
			continue
		}
		v := n.m.vehicles[id]
		if v.Route().From == origin && v.State() != vehicle.StateCompleted {
			out = append(out, v.Position())
		}
	}
	return out
}

// Update advances the whole fleet by dt: runs the spawn timer, ticks every
// vehicle in spawn order against this tick's lights, then sweeps out
// completed vehicles. Lifecycle events are published after the internal
// lock is released so handlers may call back into the manager.
func (m *Manager) Update(dt time.Duration, lights vehicle.Lights) {
	if dt <= 0 {
		return
	}

	m.mu.Lock()
	var events []bus.Event

	if rate := m.settings.SpawnRate; rate > 0 {
		interval := time.Duration(spawnBudgetMillis / rate * float64(time.Millisecond))
		m.spawnAcc += dt
		for m.spawnAcc >= interval {
			m.spawnAcc -= interval
			if ev, err := m.spawnRandomLocked(); err == nil {
				events = append(events, ev)
			}
		}
	}

	for _, id := range m.order {
		m.vehicles[id].Update(dt, lights, m.settings.MaxSpeed)
	}

	// Retire after the full pass so removal never disturbs this tick's
	// iteration order.
	live := m.order[:0]
	for _, id := range m.order {
		v := m.vehicles[id]
		if v.State() != vehicle.StateCompleted {
			live = append(live, id)
			continue
		}
		delete(m.vehicles, id)
		m.completed++
		m.waitSum += v.WaitTime()
		events = append(events, bus.NewEvent(EventVehicleCompleted, "fleet", Completion{
			ID:          v.ID(),
			Route:       v.Route(),
			Turn:        v.Turn(),
			WaitTime:    v.WaitTime(),
			CompletedAt: m.now(),
		}))
	}
	m.order = live
	m.mu.Unlock()

	m.publish(events)
}

// Spawn places one vehicle on the given route, subject to the same spawn
// clearance rule as automatic spawns.
func (m *Manager) Spawn(route geometry.Route, lane geometry.Lane) (string, error) {
	m.mu.Lock()
	id, err := m.spawnLocked(route, lane)
	var events []bus.Event
	if err == nil {
		events = append(events, bus.NewEvent(EventVehicleSpawned, "fleet", Spawned{
			ID:    id,
			Route: route,
			Lane:  lane,
		}))
	}
	m.mu.Unlock()

	m.publish(events)
	return id, err
}

// spawnRandomLocked rolls a random route and lane and attempts the spawn.
// Left turners start in the left lane, right turners in the right, straight
// traffic picks at random.
func (m *Manager) spawnRandomLocked() (bus.Event, error) {
	from := geometry.Directions[m.rng.Intn(len(geometry.Directions))]
	to := geometry.Direction((int(from) + 1 + m.rng.Intn(3)) % len(geometry.Directions))

	var lane geometry.Lane
	switch geometry.ClassifyTurn(from, to) {
	case geometry.TurnLeft:
		lane = geometry.LaneLeft
	case geometry.TurnRight:
		lane = geometry.LaneRight
	default:
		lane = geometry.Lane(m.rng.Intn(2))
	}

	route := geometry.Route{From: from, To: to}
	id, err := m.spawnLocked(route, lane)
	if err != nil {
		m.logger.Debug("spawn attempt dropped",
			log.String("from", from.String()),
			log.String("to", to.String()),
			log.Error(err))
		return nil, err
	}
	return bus.NewEvent(EventVehicleSpawned, "fleet", Spawned{ID: id, Route: route, Lane: lane}), nil
}

func (m *Manager) spawnLocked(route geometry.Route, lane geometry.Lane) (string, error) {
	spawn, err := m.grid.SpawnPoint(route.From, lane)
	if err != nil {
		return "", err
	}
	for _, id := range m.order {
		v := m.vehicles[id]
		if v.Route().From != route.From {
			continue
		}
		if spawn.Dist(v.Position()) < spawnGap {
			return "", fmt.Errorf("%w: %s within %g units", ErrSpawnBlocked, route.From, spawnGap)
		}
	}

	id := uuid.NewString()
	v, err := vehicle.New(vehicle.Config{
		ID:        id,
		Route:     route,
		Lane:      lane,
		Grid:      m.grid,
		Neighbors: neighborView{m: m},
		Logger:    m.logger,
		Now:       m.now,
	})
	if err != nil {
		return "", err
	}
	m.vehicles[id] = v
	m.order = append(m.order, id)
	m.spawned++
	return id, nil
}

func (m *Manager) publish(events []bus.Event) {
	if m.bus == nil {
		return
	}
	for _, ev := range events {
		if err := m.bus.Publish(ev); err != nil {
			m.logger.Warn("event delivery failed",
				log.String("type", ev.Type()), log.Error(err))
		}
	}
}

// Snapshot returns per-vehicle views in spawn order.
func (m *Manager) Snapshot() []vehicle.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]vehicle.Snapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.vehicles[id].Snapshot())
	}
	return out
}

// Stats returns the lifetime counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		Active:    len(m.order),
		Spawned:   m.spawned,
		Completed: m.completed,
	}
	if m.completed > 0 {
		s.AvgWait = m.waitSum / time.Duration(m.completed)
	}
	return s
}

func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

func (m *Manager) SetMaxSpeed(v float64) {
	m.mu.Lock()
	m.settings.MaxSpeed = v
	m.mu.Unlock()
}

func (m *Manager) SetSpawnRate(v float64) {
	m.mu.Lock()
	m.settings.SpawnRate = v
	m.mu.Unlock()
}
