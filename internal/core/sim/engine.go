package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crossflow/crossflow/internal/core/fleet"
	"github.com/crossflow/crossflow/internal/core/geometry"
	"github.com/crossflow/crossflow/internal/core/observability/log"
	"github.com/crossflow/crossflow/internal/core/vehicle"
)

var (
	ErrNoFleet  = errors.New("engine needs a fleet")
	ErrNoLights = errors.New("engine needs a light provider")
)

// LightProvider supplies the per-direction signal state for a tick. The
// engine treats it as an external collaborator and never drives its cycle.
type LightProvider interface {
	Lights(now time.Time) vehicle.Lights
}

// Frame is the per-tick state view fanned out to sinks: the feed hub, the
// statistics collector, anything that watches the simulation.
type Frame struct {
	Tick     uint64             `json:"tick"`
	Time     time.Time          `json:"time"`
	Lights   map[string]string  `json:"lights"`
	Vehicles []vehicle.Snapshot `json:"vehicles"`
	Stats    fleet.Stats        `json:"stats"`
}

// Sink consumes frames. Push must not block; slow consumers buffer or drop
// on their side.
type Sink interface {
	Push(frame Frame)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(frame Frame)

func (f SinkFunc) Push(frame Frame) { f(frame) }

// Config carries the engine's collaborators.
type Config struct {
	Fleet  *fleet.Manager
	Lights LightProvider
	// Interval is the fixed step for Run. Defaults to 50ms.
	Interval time.Duration
	Logger   log.Log
	Now      func() time.Time
}

// Engine owns the simulation clock: each tick it reads the lights, advances
// the fleet, and fans the resulting frame out to registered sinks. Step runs
// one deterministic tick; Run drives Step from a wall-clock ticker.
type Engine struct {
	fleet    *fleet.Manager
	lights   LightProvider
	interval time.Duration
	logger   log.Log
	now      func() time.Time

	mu    sync.Mutex
	sinks []Sink
	tick  uint64
}

func New(cfg Config) (*Engine, error) {
	if cfg.Fleet == nil {
		return nil, ErrNoFleet
	}
	if cfg.Lights == nil {
		return nil, ErrNoLights
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		fleet:    cfg.Fleet,
		lights:   cfg.Lights,
		interval: interval,
		logger:   logger,
		now:      now,
	}, nil
}

// AddSink registers a frame consumer.
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	e.sinks = append(e.sinks, s)
	e.mu.Unlock()
}

// Step advances the simulation by exactly dt and returns the resulting
// frame. Negative and zero steps are ignored.
func (e *Engine) Step(dt time.Duration) Frame {
	now := e.now()
	lights := e.lights.Lights(now)
	e.fleet.Update(dt, lights)

	e.mu.Lock()
	e.tick++
	frame := Frame{
		Tick:     e.tick,
		Time:     now,
		Lights:   lightNames(lights),
		Vehicles: e.fleet.Snapshot(),
		Stats:    e.fleet.Stats(),
	}
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.Unlock()

	for _, s := range sinks {
		s.Push(frame)
	}
	return frame
}

// Run drives Step from a wall-clock ticker until the context ends. The
// elapsed time between ticks is used as the step, so a stalled scheduler
// slows the simulation rather than skipping it ahead.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("engine started", log.Duration("interval", e.interval))
	lastTime := e.now()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped", log.Uint64("ticks", e.Tick()))
			return nil
		case now := <-ticker.C:
			dt := now.Sub(lastTime)
			lastTime = now
			e.Step(dt)
		}
	}
}

// Tick returns the number of completed steps.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

func lightNames(lights vehicle.Lights) map[string]string {
	out := make(map[string]string, len(lights))
	for d, l := range lights {
		out[d.String()] = l.String()
	}
	return out
}

// AllLights builds a uniform light state, handy for tests and warm-up.
func AllLights(l vehicle.Light) vehicle.Lights {
	lights := make(vehicle.Lights, len(geometry.Directions))
	for _, d := range geometry.Directions {
		lights[d] = l
	}
	return lights
}
