package vehicle

import (
	"fmt"
	"math"
	"time"

	"github.com/crossflow/crossflow/internal/core/geometry"
	"github.com/crossflow/crossflow/internal/core/observability/log"
	"github.com/crossflow/crossflow/internal/core/path"
)

// Tuning constants, in simulation units and seconds.
const (
	// approachAccel is the acceleration while rolling up to the box.
	approachAccel = 30.0
	// crossAccel and crossBoost let vehicles clear the box promptly: while
	// crossing they accelerate harder and may exceed the configured cap.
	crossAccel = 40.0
	crossBoost = 1.2
	// stopLineRange: a red light is obeyed once the stop line is this close.
	stopLineRange = 30.0
	// followGap: a leader closer than this forces a stop, light or no light.
	followGap = 35.0
	// offscreenMargin: how far past a canvas edge an exiting vehicle is kept
	// before it completes.
	offscreenMargin = 50.0
)

// State is the lifecycle stage of a vehicle.
type State uint8

const (
	StateApproaching State = iota
	StateWaiting
	StateCrossing
	StateExiting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateApproaching:
		return "approaching"
	case StateWaiting:
		return "waiting"
	case StateCrossing:
		return "crossing"
	case StateExiting:
		return "exiting"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Light is a signal color.
type Light uint8

const (
	LightRed Light = iota
	LightYellow
	LightGreen
)

func (l Light) String() string {
	switch l {
	case LightRed:
		return "red"
	case LightYellow:
		return "yellow"
	case LightGreen:
		return "green"
	default:
		return "unknown"
	}
}

// Lights is the per-direction signal state, supplied fresh each tick by the
// light controller collaborator.
type Lights map[geometry.Direction]Light

// Neighbors is the read-only view a vehicle gets of the rest of the fleet.
// The fleet implements it; vehicles never hold a mutable fleet reference.
type Neighbors interface {
	// PositionsFrom lists the current positions of live vehicles that
	// entered from origin, excluding the vehicle with excludeID.
	PositionsFrom(origin geometry.Direction, excludeID string) []geometry.Point
}

// Snapshot is the read-only per-tick view handed to rendering and
// statistics collaborators.
type Snapshot struct {
	ID       string         `json:"id"`
	Position geometry.Point `json:"position"`
	Heading  float64        `json:"heading"`
	Speed    float64        `json:"speed"`
	Lane     geometry.Lane  `json:"lane"`
	State    string         `json:"state"`
	Route    geometry.Route `json:"route"`
	Progress float64        `json:"progress"`
}

// Config carries everything a vehicle needs at construction.
type Config struct {
	ID        string
	Route     geometry.Route
	Lane      geometry.Lane
	Grid      geometry.Grid
	Neighbors Neighbors
	Logger    log.Log
	// Now is the wall clock used for wait-time accounting. Defaults to
	// time.Now; tests pin it.
	Now func() time.Time
}

// Vehicle is one simulated car: a position/heading/speed triple driven
// through the approaching→waiting→crossing→exiting→completed lifecycle by
// light state and neighbor positions. The turn type is fixed by the route
// at construction; only the tactical lane changes around the turn.
type Vehicle struct {
	id    string
	route geometry.Route
	turn  geometry.TurnType
	lane  geometry.Lane

	pos     geometry.Point
	heading float64
	speed   float64
	state   State

	profile  *path.Profile
	progress float64
	pathDone bool

	waitStart time.Time
	waitTotal time.Duration
	lastLight Light

	enteredBox bool

	grid      geometry.Grid
	builder   path.Builder
	neighbors Neighbors
	logger    log.Log
	now       func() time.Time
}

// New places a vehicle on its spawn point, facing its travel direction.
func New(cfg Config) (*Vehicle, error) {
	if !cfg.Route.Valid() {
		return nil, fmt.Errorf("%w: %s -> %s", geometry.ErrInvalidRoute, cfg.Route.From, cfg.Route.To)
	}
	spawn, err := cfg.Grid.SpawnPoint(cfg.Route.From, cfg.Lane)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Vehicle{
		id:        cfg.ID,
		route:     cfg.Route,
		turn:      geometry.ClassifyTurn(cfg.Route.From, cfg.Route.To),
		lane:      cfg.Lane,
		pos:       spawn,
		heading:   cfg.Route.From.Heading(),
		state:     StateApproaching,
		lastLight: LightRed,
		grid:      cfg.Grid,
		builder:   path.NewBuilder(cfg.Grid),
		neighbors: cfg.Neighbors,
		logger:    logger.With(log.String("vehicle", cfg.ID)),
		now:       now,
	}, nil
}

func (v *Vehicle) ID() string               { return v.id }
func (v *Vehicle) Route() geometry.Route    { return v.route }
func (v *Vehicle) Turn() geometry.TurnType  { return v.turn }
func (v *Vehicle) Lane() geometry.Lane      { return v.lane }
func (v *Vehicle) Position() geometry.Point { return v.pos }
func (v *Vehicle) Heading() float64         { return v.heading }
func (v *Vehicle) Speed() float64           { return v.speed }
func (v *Vehicle) State() State             { return v.state }
func (v *Vehicle) Progress() float64        { return v.progress }

// WaitTime is the total time spent stopped at a red light so far.
func (v *Vehicle) WaitTime() time.Duration {
	total := v.waitTotal
	if !v.waitStart.IsZero() {
		total += v.now().Sub(v.waitStart)
	}
	return total
}

func (v *Vehicle) Snapshot() Snapshot {
	return Snapshot{
		ID:       v.id,
		Position: v.pos,
		Heading:  v.heading,
		Speed:    v.speed,
		Lane:     v.lane,
		State:    v.state.String(),
		Route:    v.route,
		Progress: v.progress,
	}
}

// Update advances the vehicle by dt given this tick's light state and the
// configured speed cap. Completed vehicles are inert.
func (v *Vehicle) Update(dt time.Duration, lights Lights, maxSpeed float64) {
	if v.state == StateCompleted || dt <= 0 {
		return
	}
	secs := dt.Seconds()
	light := v.lightFor(lights)

	if !v.enteredBox && v.grid.Inside(v.pos) {
		v.enteredBox = true
	}

	switch v.state {
	case StateApproaching:
		v.updateApproaching(secs, light, maxSpeed)
	case StateWaiting:
		v.updateWaiting(light)
	case StateCrossing:
		v.updateCrossing(secs, maxSpeed)
	case StateExiting:
		v.speed = maxSpeed
	}

	v.advance(secs)

	if v.state == StateExiting && v.grid.Offscreen(v.pos, offscreenMargin) {
		v.state = StateCompleted
		v.speed = 0
	}
}

// lightFor resolves this tick's signal for the origin direction. A missing
// entry is a malformed input: warn and reuse the last valid color rather
// than aborting the tick.
func (v *Vehicle) lightFor(lights Lights) Light {
	light, ok := lights[v.route.From]
	if !ok {
		v.logger.Warn("light state missing for origin, reusing last",
			log.String("origin", v.route.From.String()),
			log.String("last", v.lastLight.String()))
		return v.lastLight
	}
	v.lastLight = light
	return light
}

func (v *Vehicle) updateApproaching(secs float64, light Light, maxSpeed float64) {
	v.applyTacticalLane()

	atRed := light == LightRed
	stopDist := v.grid.DistanceToStop(v.route.From, v.pos)
	nearStop := stopDist >= 0 && stopDist <= stopLineRange

	aheadDist, hasAhead := v.carAhead()
	following := hasAhead && aheadDist < followGap

	switch {
	case (nearStop && atRed) || following:
		v.state = StateWaiting
		v.speed = 0
		// Only a genuine red-light stop counts toward wait time.
		if nearStop && atRed && v.waitStart.IsZero() {
			v.waitStart = v.now()
		}
	case v.grid.Inside(v.pos):
		v.enterCrossing()
	default:
		v.speed = math.Min(v.speed+approachAccel*secs, maxSpeed)
	}
}

func (v *Vehicle) updateWaiting(light Light) {
	v.speed = 0
	if light == LightGreen || light == LightYellow {
		if !v.waitStart.IsZero() {
			v.waitTotal += v.now().Sub(v.waitStart)
			v.waitStart = time.Time{}
		}
		v.state = StateCrossing
	}
}

func (v *Vehicle) updateCrossing(secs float64, maxSpeed float64) {
	if v.profile == nil && !v.pathDone && v.grid.Inside(v.pos) {
		v.bindPath()
	}
	if v.enteredBox && !v.grid.Inside(v.pos) {
		v.state = StateExiting
		v.applyTacticalLane()
		v.speed = maxSpeed
		return
	}
	v.speed = math.Min(v.speed+crossAccel*secs, maxSpeed*crossBoost)
}

// enterCrossing fires on the approaching→crossing transition, binding the
// turn path the moment the vehicle is inside the box.
func (v *Vehicle) enterCrossing() {
	v.state = StateCrossing
	if v.profile == nil {
		v.bindPath()
	}
}

func (v *Vehicle) bindPath() {
	profile, err := v.builder.Build(v.route, v.lane)
	if err != nil {
		v.logger.Warn("path build failed, keeping straight-line motion",
			log.Error(err))
		return
	}
	v.profile = profile
	v.progress = 0
}

// applyTacticalLane nudges turning vehicles into the lane their turn starts
// and ends in: lefts into lane 0, rights into lane 1. Straight traffic keeps
// its spawn lane. Applied while approaching and again once exiting so the
// vehicle reads as centered in its post-turn lane.
func (v *Vehicle) applyTacticalLane() {
	switch v.turn {
	case geometry.TurnLeft:
		v.lane = geometry.LaneLeft
	case geometry.TurnRight:
		v.lane = geometry.LaneRight
	}
}

// carAhead reports the signed distance to the closest vehicle strictly
// ahead along the origin direction's travel axis. Linear in the fleet size;
// acceptable for the intended scale of a single intersection.
func (v *Vehicle) carAhead() (float64, bool) {
	if v.neighbors == nil {
		return 0, false
	}
	best := math.MaxFloat64
	found := false
	for _, p := range v.neighbors.PositionsFrom(v.route.From, v.id) {
		d := v.grid.DistanceAlong(v.route.From, v.pos, p)
		if d > 0 && d < best {
			best = d
			found = true
		}
	}
	return best, found
}

// advance moves the vehicle: along its bound path by arc length when one is
// bound, otherwise straight along its heading.
func (v *Vehicle) advance(secs float64) {
	if v.speed == 0 {
		return
	}
	step := v.speed * secs
	if v.profile == nil {
		v.pos.X += math.Cos(v.heading) * step
		v.pos.Y += math.Sin(v.heading) * step
		return
	}

	dist := v.progress*v.profile.Total + step
	if dist >= v.profile.Total {
		// Clamp to the path end and resume straight-line motion toward the
		// exit side. The outbound heading, not the last segment's, rules
		// here: exit corrections can end slightly off-axis.
		v.pos = v.profile.End()
		v.heading = v.route.To.Opposite().Heading()
		v.progress = 1
		v.profile = nil
		v.pathDone = true
		return
	}
	v.pos, v.heading = v.profile.PositionAt(dist)
	v.progress = v.profile.Frac(dist)
}
