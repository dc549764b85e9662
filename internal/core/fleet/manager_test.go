package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/internal/core/events/bus"
	"github.com/crossflow/crossflow/internal/core/geometry"
	"github.com/crossflow/crossflow/internal/core/vehicle"
)

func allGreen() vehicle.Lights {
	lights := make(vehicle.Lights, len(geometry.Directions))
	for _, d := range geometry.Directions {
		lights[d] = vehicle.LightGreen
	}
	return lights
}

func allRed() vehicle.Lights {
	lights := make(vehicle.Lights, len(geometry.Directions))
	for _, d := range geometry.Directions {
		lights[d] = vehicle.LightRed
	}
	return lights
}

func TestSpawnClearance(t *testing.T) {
	m := NewManager(Config{Grid: geometry.DefaultGrid(), Settings: Settings{MaxSpeed: 50}})

	_, err := m.Spawn(geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft)
	require.NoError(t, err)

	t.Run("Same Origin Blocked", func(t *testing.T) {
		_, err := m.Spawn(geometry.Route{From: geometry.North, To: geometry.South}, geometry.LaneLeft)
		require.ErrorIs(t, err, ErrSpawnBlocked)

		// The adjacent lane is only a lane width away, still inside the gap.
		_, err = m.Spawn(geometry.Route{From: geometry.North, To: geometry.East}, geometry.LaneRight)
		require.ErrorIs(t, err, ErrSpawnBlocked)
	})

	t.Run("Other Origins Clear", func(t *testing.T) {
		_, err := m.Spawn(geometry.Route{From: geometry.South, To: geometry.North}, geometry.LaneLeft)
		require.NoError(t, err)
	})

	require.Equal(t, 2, m.Stats().Active)
}

func TestAutoSpawnRespectsClearance(t *testing.T) {
	// Spawn attempts fire every 100ms but nothing ever moves, so at most
	// one vehicle per origin can exist and later attempts are dropped.
	m := NewManager(Config{
		Grid:     geometry.DefaultGrid(),
		Settings: Settings{MaxSpeed: 0, SpawnRate: 100},
		Seed:     7,
	})
	m.Update(10*time.Second, allGreen())

	snap := m.Snapshot()
	require.NotEmpty(t, snap)
	require.LessOrEqual(t, len(snap), len(geometry.Directions))

	seen := map[geometry.Direction]bool{}
	for _, s := range snap {
		require.False(t, seen[s.Route.From], "two vehicles share origin %s", s.Route.From)
		seen[s.Route.From] = true
	}
	require.Equal(t, uint64(len(snap)), m.Stats().Spawned, "dropped attempts must not count as spawns")
}

func TestRetireEmitsCompletion(t *testing.T) {
	b := bus.New()
	var completions []Completion
	_, err := b.Subscribe(EventVehicleCompleted, func(e bus.Event) error {
		completions = append(completions, e.Data().(Completion))
		return nil
	})
	require.NoError(t, err)

	m := NewManager(Config{
		Grid:     geometry.DefaultGrid(),
		Settings: Settings{MaxSpeed: 80},
		Bus:      b,
	})
	id, err := m.Spawn(geometry.Route{From: geometry.West, To: geometry.East}, geometry.LaneRight)
	require.NoError(t, err)

	for i := 0; i < 3000 && m.Stats().Completed == 0; i++ {
		m.Update(50*time.Millisecond, allGreen())
	}

	stats := m.Stats()
	require.Equal(t, uint64(1), stats.Completed)
	require.Zero(t, stats.Active)
	require.Empty(t, m.Snapshot())

	require.Len(t, completions, 1)
	require.Equal(t, id, completions[0].ID)
	require.Equal(t, geometry.Route{From: geometry.West, To: geometry.East}, completions[0].Route)
	require.Zero(t, completions[0].WaitTime, "no red light was ever shown")
}

func TestWaitTimeReachesStats(t *testing.T) {
	now := time.Unix(5000, 0)
	m := NewManager(Config{
		Grid:     geometry.DefaultGrid(),
		Settings: Settings{MaxSpeed: 80},
		Now:      func() time.Time { return now },
	})
	_, err := m.Spawn(geometry.Route{From: geometry.East, To: geometry.West}, geometry.LaneLeft)
	require.NoError(t, err)

	// Hold red long enough for the vehicle to reach the line and sit: the
	// approach from the canvas edge takes a little over five seconds.
	for i := 0; i < 200; i++ {
		m.Update(50*time.Millisecond, allRed())
		now = now.Add(50 * time.Millisecond)
	}
	for i := 0; i < 3000 && m.Stats().Completed == 0; i++ {
		m.Update(50*time.Millisecond, allGreen())
		now = now.Add(50 * time.Millisecond)
	}

	stats := m.Stats()
	require.Equal(t, uint64(1), stats.Completed)
	require.Greater(t, stats.AvgWait, time.Duration(0))
	require.LessOrEqual(t, stats.AvgWait, 5*time.Second)
}

func TestDeterministicRuns(t *testing.T) {
	run := func() *Manager {
		m := NewManager(Config{
			Grid:     geometry.DefaultGrid(),
			Settings: Settings{MaxSpeed: 50, SpawnRate: 20},
			Seed:     42,
		})
		for i := 0; i < 200; i++ {
			m.Update(100*time.Millisecond, allGreen())
		}
		return m
	}

	a, b := run(), run()
	require.Equal(t, a.Stats(), b.Stats())

	sa, sb := a.Snapshot(), b.Snapshot()
	require.Equal(t, len(sa), len(sb))
	for i := range sa {
		require.Equal(t, sa[i].Route, sb[i].Route, "vehicle %d", i)
		require.Equal(t, sa[i].Position, sb[i].Position, "vehicle %d", i)
		require.Equal(t, sa[i].State, sb[i].State, "vehicle %d", i)
	}
}

func TestLiveSettings(t *testing.T) {
	m := NewManager(Config{Grid: geometry.DefaultGrid()})
	require.Equal(t, DefaultSettings(), m.Settings())

	m.SetMaxSpeed(25)
	m.SetSpawnRate(1)
	require.Equal(t, Settings{MaxSpeed: 25, SpawnRate: 1}, m.Settings())
}
