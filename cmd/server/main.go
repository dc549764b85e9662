package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crossflow/crossflow/internal/core/events/bus"
	"github.com/crossflow/crossflow/internal/core/fleet"
	"github.com/crossflow/crossflow/internal/core/geometry"
	"github.com/crossflow/crossflow/internal/core/observability/log"
	"github.com/crossflow/crossflow/internal/core/sim"
	"github.com/crossflow/crossflow/internal/core/vehicle"
	"github.com/crossflow/crossflow/internal/injector"
	"github.com/crossflow/crossflow/internal/transport/feed"
)

// cycler runs the fixed signal program: the north-south axis gets green
// while east-west holds red, a yellow interval closes the phase, then the
// axes swap.
type cycler struct {
	green  time.Duration
	yellow time.Duration
	start  time.Time
}

func (c *cycler) Lights(now time.Time) vehicle.Lights {
	phase := c.green + c.yellow
	off := now.Sub(c.start) % (2 * phase)

	nsActive := off < phase
	active := vehicle.LightGreen
	if off%phase >= c.green {
		active = vehicle.LightYellow
	}

	lights := make(vehicle.Lights, 4)
	if nsActive {
		lights[geometry.North], lights[geometry.South] = active, active
		lights[geometry.East], lights[geometry.West] = vehicle.LightRed, vehicle.LightRed
	} else {
		lights[geometry.East], lights[geometry.West] = active, active
		lights[geometry.North], lights[geometry.South] = vehicle.LightRed, vehicle.LightRed
	}
	return lights
}

// throttle trims the engine's per-tick frames down to the configured
// snapshot rate before they reach the feed hub.
type throttle struct {
	sink sim.Sink
	min  time.Duration
	last time.Time
}

func (t *throttle) Push(f sim.Frame) {
	if !t.last.IsZero() && f.Time.Sub(t.last) < t.min {
		return
	}
	t.last = f.Time
	t.sink.Push(f)
}

func main() {
	configPath := flag.String("config", "", "path to a yaml or json config file")
	flag.Parse()

	cfg, err := injector.ProvideConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := injector.ProvideLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	grid, err := injector.ProvideGrid(cfg)
	if err != nil {
		logger.Fatal("grid", log.Error(err))
	}
	b := injector.ProvideBus()
	manager := injector.ProvideFleet(cfg, grid, logger, b)
	hub := injector.ProvideHub(logger)

	lights := &cycler{
		green:  time.Duration(cfg.Lights.GreenMillis) * time.Millisecond,
		yellow: time.Duration(cfg.Lights.YellowMillis) * time.Millisecond,
		start:  time.Now(),
	}
	engine, err := injector.ProvideEngine(cfg, manager, lights, logger)
	if err != nil {
		logger.Fatal("engine", log.Error(err))
	}
	engine.AddSink(&throttle{
		sink: hub,
		min:  time.Second / time.Duration(cfg.Feed.SnapshotHz),
	})

	if _, err := b.Subscribe(fleet.EventVehicleCompleted, func(e bus.Event) error {
		c := e.Data().(fleet.Completion)
		logger.Debug("vehicle completed",
			log.String("vehicle", c.ID),
			log.String("from", c.Route.From.String()),
			log.String("to", c.Route.To.String()),
			log.Duration("wait", c.WaitTime))
		return nil
	}); err != nil {
		logger.Fatal("subscribe", log.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws := feed.NewWSServer(cfg.Feed.WebSocketAddr, hub, logger)
	quicSrv := feed.NewQUICServer(cfg.Feed.QUICAddr, hub, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(ctx)
	})
	g.Go(func() error {
		if err := ws.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := quicSrv.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return quicSrv.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", log.Error(err))
	}
	logger.Info("shutdown complete")
}
