package injector

import (
	"time"

	"github.com/google/wire"

	"github.com/crossflow/crossflow/internal/core/config"
	"github.com/crossflow/crossflow/internal/core/events/bus"
	"github.com/crossflow/crossflow/internal/core/fleet"
	"github.com/crossflow/crossflow/internal/core/geometry"
	"github.com/crossflow/crossflow/internal/core/observability/log"
	"github.com/crossflow/crossflow/internal/core/sim"
	"github.com/crossflow/crossflow/internal/transport/feed"
)

// ProviderSet wires the whole simulation object graph, short of the light
// provider, which the caller supplies.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideGrid,
	ProvideBus,
	ProvideFleet,
	ProvideHub,
	ProvideEngine,
)

// ProvideConfig loads configuration from path; an empty path yields the
// defaults.
func ProvideConfig(path string) (*config.Config, error) {
	return config.LoadFile(path)
}

func ProvideLogger(cfg *config.Config) (*log.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return log.New(level), nil
}

func ProvideGrid(cfg *config.Config) (geometry.Grid, error) {
	return cfg.Grid()
}

func ProvideBus() bus.Bus {
	return bus.New()
}

func ProvideFleet(cfg *config.Config, grid geometry.Grid, logger *log.Logger, b bus.Bus) *fleet.Manager {
	return fleet.NewManager(fleet.Config{
		Grid:     grid,
		Settings: cfg.Settings(),
		Seed:     cfg.Traffic.Seed,
		Logger:   logger,
		Bus:      b,
	})
}

func ProvideHub(logger *log.Logger) *feed.Hub {
	return feed.NewHub(logger)
}

func ProvideEngine(cfg *config.Config, m *fleet.Manager, lights sim.LightProvider, logger *log.Logger) (*sim.Engine, error) {
	return sim.New(sim.Config{
		Fleet:    m,
		Lights:   lights,
		Interval: time.Duration(cfg.Traffic.TickMillis) * time.Millisecond,
		Logger:   logger,
	})
}
