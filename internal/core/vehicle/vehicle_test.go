package vehicle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/internal/core/geometry"
)

type stubNeighbors struct {
	points map[geometry.Direction][]geometry.Point
}

func (s stubNeighbors) PositionsFrom(origin geometry.Direction, _ string) []geometry.Point {
	return s.points[origin]
}

func allLights(l Light) Lights {
	lights := make(Lights, len(geometry.Directions))
	for _, d := range geometry.Directions {
		lights[d] = l
	}
	return lights
}

func newTestVehicle(t *testing.T, route geometry.Route, lane geometry.Lane, opts ...func(*Config)) *Vehicle {
	t.Helper()
	cfg := Config{
		ID:    "v-test",
		Route: route,
		Lane:  lane,
		Grid:  geometry.DefaultGrid(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	v, err := New(cfg)
	require.NoError(t, err)
	return v
}

func TestNew(t *testing.T) {
	t.Run("Spawns On Canvas Edge", func(t *testing.T) {
		v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft)

		require.Equal(t, geometry.Point{X: 412.5, Y: 0}, v.Position())
		require.InDelta(t, math.Pi/2, v.Heading(), 1e-9)
		require.Equal(t, StateApproaching, v.State())
		require.Zero(t, v.Speed())
		require.Equal(t, geometry.TurnStraight, v.Turn())
	})

	t.Run("Rejects Degenerate Route", func(t *testing.T) {
		_, err := New(Config{
			ID:    "bad",
			Route: geometry.Route{From: geometry.West, To: geometry.West},
			Grid:  geometry.DefaultGrid(),
		})
		require.ErrorIs(t, err, geometry.ErrInvalidRoute)
	})
}

func TestApproachAcceleration(t *testing.T) {
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft)
	green := allLights(LightGreen)

	v.Update(500*time.Millisecond, green, 20)
	require.InDelta(t, 15.0, v.Speed(), 1e-9)

	// Second tick would reach 30 but the cap bites.
	v.Update(500*time.Millisecond, green, 20)
	require.InDelta(t, 20.0, v.Speed(), 1e-9)
	require.InDelta(t, 17.5, v.Position().Y, 1e-9)
}

func TestRedLightStopAndRelease(t *testing.T) {
	now := time.Unix(1000, 0)
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft,
		func(cfg *Config) { cfg.Now = func() time.Time { return now } })

	g := geometry.DefaultGrid()
	red := allLights(LightRed)
	for i := 0; i < 200 && v.State() != StateWaiting; i++ {
		v.Update(50*time.Millisecond, red, 100)
	}
	require.Equal(t, StateWaiting, v.State())
	require.Zero(t, v.Speed())

	stopDist := g.DistanceToStop(geometry.North, v.Position())
	require.Greater(t, stopDist, 0.0)
	require.LessOrEqual(t, stopDist, 30.0)

	t.Run("Holds Position Through Red", func(t *testing.T) {
		held := v.Position()
		for i := 0; i < 20; i++ {
			v.Update(50*time.Millisecond, red, 100)
		}
		require.Equal(t, StateWaiting, v.State())
		require.Equal(t, held, v.Position())
	})

	t.Run("Green Releases And Books Wait Time", func(t *testing.T) {
		now = now.Add(3 * time.Second)
		v.Update(50*time.Millisecond, allLights(LightGreen), 100)
		require.Equal(t, StateCrossing, v.State())
		require.Equal(t, 3*time.Second, v.WaitTime())
	})
}

func TestCarAheadHold(t *testing.T) {
	neighbors := stubNeighbors{points: map[geometry.Direction][]geometry.Point{
		geometry.North: {{X: 412.5, Y: 30}},
	}}
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft,
		func(cfg *Config) { cfg.Neighbors = neighbors })
	green := allLights(LightGreen)

	// A leader 30 units ahead forces a stop even on green, but a stop that
	// is not at a red light books no wait time.
	v.Update(50*time.Millisecond, green, 50)
	require.Equal(t, StateWaiting, v.State())
	require.Zero(t, v.Speed())
	require.Zero(t, v.WaitTime())

	// The hold re-evaluates against the light, so green moves it on.
	v.Update(50*time.Millisecond, green, 50)
	require.Equal(t, StateCrossing, v.State())
}

func TestMissingLightFallsBackToLastSeen(t *testing.T) {
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft)

	// No entry for the origin at all: the vehicle treats the signal as its
	// last valid color, which starts out red, and still stops at the line.
	for i := 0; i < 200 && v.State() != StateWaiting; i++ {
		v.Update(50*time.Millisecond, Lights{}, 100)
	}
	require.Equal(t, StateWaiting, v.State())
}

func TestTacticalLane(t *testing.T) {
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.East}, geometry.LaneLeft)
	require.Equal(t, geometry.TurnRight, v.Turn())

	v.Update(50*time.Millisecond, allLights(LightGreen), 50)
	require.Equal(t, geometry.LaneRight, v.Lane())
}

func TestStraightTraversal(t *testing.T) {
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft)
	green := allLights(LightGreen)

	seen := map[State]bool{}
	for i := 0; i < 2000 && v.State() != StateCompleted; i++ {
		v.Update(50*time.Millisecond, green, 50)
		seen[v.State()] = true
	}

	require.Equal(t, StateCompleted, v.State())
	require.True(t, seen[StateCrossing])
	require.True(t, seen[StateExiting])
	require.Zero(t, v.Speed())
	require.Greater(t, v.Position().Y, 650.0)
	require.InDelta(t, 412.5, v.Position().X, 1e-9)
	require.InDelta(t, math.Pi/2, v.Heading(), 1e-9)
	require.Equal(t, 1.0, v.Progress())
}

func TestRightTurnTraversal(t *testing.T) {
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.East}, geometry.LaneLeft)
	green := allLights(LightGreen)

	for i := 0; i < 2000 && v.State() != StateCompleted; i++ {
		v.Update(50*time.Millisecond, green, 50)
	}

	require.Equal(t, StateCompleted, v.State())
	require.Equal(t, geometry.LaneRight, v.Lane())
	// Exits east through the right lane, resuming straight motion on the
	// outbound axis after the path unbinds.
	require.Greater(t, v.Position().X, 850.0)
	require.InDelta(t, 312.5, v.Position().Y, 1e-9)
	require.InDelta(t, 0, v.Heading(), 1e-9)
}

func TestCrossingSpeedBoost(t *testing.T) {
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft)
	green := allLights(LightGreen)

	peak := 0.0
	for i := 0; i < 2000 && v.State() != StateCompleted; i++ {
		v.Update(50*time.Millisecond, green, 50)
		if v.State() == StateCrossing {
			peak = math.Max(peak, v.Speed())
		}
	}
	require.Greater(t, peak, 50.0)
	require.LessOrEqual(t, peak, 60.0+1e-9)
}

func TestCompletedIsInert(t *testing.T) {
	v := newTestVehicle(t, geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft)
	green := allLights(LightGreen)
	for i := 0; i < 2000 && v.State() != StateCompleted; i++ {
		v.Update(50*time.Millisecond, green, 50)
	}
	require.Equal(t, StateCompleted, v.State())

	final := v.Position()
	v.Update(time.Second, green, 50)
	require.Equal(t, final, v.Position())
	require.Equal(t, StateCompleted, v.State())
}
