package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/config"
	"github.com/san-kum/heaterloop/internal/feedback"
	"github.com/san-kum/heaterloop/internal/loop"
	"github.com/san-kum/heaterloop/internal/metrics"
	"github.com/san-kum/heaterloop/internal/plant"
	"github.com/san-kum/heaterloop/internal/series"
	"github.com/san-kum/heaterloop/internal/storage"
	"github.com/san-kum/heaterloop/internal/telemetry"
	"github.com/san-kum/heaterloop/internal/units"
	"github.com/san-kum/heaterloop/internal/viz"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// trackingBand is the outlet error in kelvin counted as on target.
	trackingBand      = 0.5
	seriesWatchPeriod = time.Second
)

type Options struct {
	// Headless runs without the terminal view.
	Headless bool
	// Duration stops the run after the given time; zero runs until the
	// context is cancelled or the operator quits.
	Duration time.Duration
	Theme    string
}

// App holds every task of one process. Build it with New, then call Run
// once.
type App struct {
	cfg  *config.Config
	opts Options
	log  *logrus.Entry

	Board      *cell.Board
	Series     *series.Set
	Collector  *metrics.Collector
	Metrics    []metrics.Metric
	Driver     *loop.Driver
	Probe      *loop.Probe
	Bridge     *telemetry.Bridge
	Supervisor *telemetry.Supervisor
	// Loopback and Plant are set when the process simulates its own server.
	Loopback *telemetry.Loopback
	Plant    *plant.Runner

	view *viz.Model
}

// Seed derives the initial board values from cfg.
func Seed(cfg *config.Config) cell.Seed {
	return cell.Seed{
		Address:      cfg.Telemetry.Address,
		PumpPressure: units.Pressure(cfg.Plant.InitialPumpPressure),
		InletTemp:    units.Celsius(cfg.Control.InletReference),
		HeaterPower:  units.Watts(cfg.Control.Bias),
		OutletTemp:   units.Celsius(cfg.Control.OutletReference),
		HeaterFlow:   units.MassRate(cfg.Plant.MassFlow),
	}
}

// New validates cfg and builds the tasks. Cell ownership is settled here,
// so a conflicting claim fails before anything runs.
func New(cfg *config.Config, opts Options, logger *logrus.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:       cfg,
		opts:      opts,
		log:       logger.WithField("component", "app"),
		Series:    series.NewSet(series.Windows{Flow: cfg.Series.FlowWindow.Duration, Temperature: cfg.Series.TemperatureWindow.Duration}),
		Collector: metrics.NewCollector(),
		Metrics:   metrics.Standard(cfg.Control.Bias, trackingBand),
	}
	seed := Seed(cfg)
	a.Board = cell.NewBoard(seed)
	base := logrus.NewEntry(logger)

	strategy, err := feedback.FromConfig(cfg.Control, a.Board.HeaterPower.Read)
	if err != nil {
		return nil, fmt.Errorf("control strategy: %w", err)
	}
	if a.Driver, err = loop.NewDriver(a.Board, a.Series, strategy, cfg.Control.Period.Duration, base, a.Collector); err != nil {
		return nil, err
	}
	a.Driver.AddObserver(a.Collector)
	for _, m := range a.Metrics {
		a.Driver.AddObserver(m)
	}

	if cfg.Probe.Enabled {
		op, err := loop.NewProbeOperator()
		if err != nil {
			return nil, fmt.Errorf("probe: %w", err)
		}
		if a.Probe, err = loop.NewProbe(op, a.Board.ProbeInput, a.Series.Probe, cfg.Probe.Period.Duration, base, a.Collector); err != nil {
			return nil, err
		}
	}

	tcfg := cfg.Telemetry
	a.Bridge, err = telemetry.NewBridge(a.Board, telemetry.BridgeConfig{
		Namespace: tcfg.Namespace,
		Period:    tcfg.Period.Duration,
		Timeout:   tcfg.RequestTimeout.Duration,
	}, base, a.Collector)
	if err != nil {
		return nil, err
	}

	var dialer telemetry.Dialer = telemetry.OPCUADialer{RequestTimeout: tcfg.RequestTimeout.Duration}
	if tcfg.Loopback {
		a.Loopback = telemetry.NewLoopback(tcfg.Namespace)
		if a.Plant, err = plant.NewRunner(cfg.Plant, a.Loopback, base, a.Collector); err != nil {
			return nil, err
		}
		a.Plant.Seed(seed, a.Board.Valves.Read())
		dialer = a.Loopback
	}

	a.Supervisor = telemetry.NewSupervisor(telemetry.SupervisorConfig{
		Port:          tcfg.Port,
		Path:          tcfg.Path,
		RetryInterval: tcfg.RetryInterval.Duration,
		DialTimeout:   tcfg.RequestTimeout.Duration,
	}, dialer, a.Bridge, a.Board.Address, base)
	a.Supervisor.OnTransition = a.Collector.ObserveTransition

	if !opts.Headless {
		src := viz.Sources{
			Board:       a.Board,
			Series:      a.Series,
			Status:      a.Supervisor,
			Metrics:     a.Metrics,
			Mode:        cfg.Control.Mode,
			ManualPower: cfg.Control.Mode == config.ModeManual,
			Theme:       opts.Theme,
		}
		if a.Driver.Params() != nil {
			src.Tuner = a.Driver
		}
		m, err := viz.NewModel(src)
		if err != nil {
			return nil, fmt.Errorf("view: %w", err)
		}
		a.view = &m
	}
	return a, nil
}

// Endpoint describes where the telemetry session goes.
func (a *App) Endpoint() string {
	if a.Loopback != nil {
		return "loopback"
	}
	host := strings.TrimSpace(a.Board.Address.Read())
	if host == "" {
		host = telemetry.LocalAddress()
	}
	ep, err := telemetry.Endpoint(host, a.cfg.Telemetry.Port, a.cfg.Telemetry.Path)
	if err != nil {
		return host
	}
	return ep
}

// Run starts every task and blocks until ctx is done, the duration elapses,
// the operator quits or a task fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.opts.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, a.opts.Duration)
		defer stop()
	}

	var rec *storage.Recorder
	if a.cfg.Record.Enabled {
		var err error
		rec, err = storage.New(a.cfg.Record.Dir).Start(storage.RunMetadata{
			Mode:     a.cfg.Control.Mode,
			Endpoint: a.Endpoint(),
			Period:   a.cfg.Control.Period.Seconds(),
		})
		if err != nil {
			return fmt.Errorf("recorder: %w", err)
		}
		a.Driver.AddObserver(rec)
		a.log.WithField("run", rec.ID()).Info("recording")
	}

	a.log.WithFields(logrus.Fields{
		"mode":     a.cfg.Control.Mode,
		"endpoint": a.Endpoint(),
		"headless": a.opts.Headless,
	}).Info("starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Supervisor.Run(gctx) })
	g.Go(func() error { return a.Driver.Run(gctx) })
	g.Go(func() error { return a.Collector.WatchSeries(gctx, a.Series, seriesWatchPeriod) })
	if a.Probe != nil {
		g.Go(func() error { return a.Probe.Run(gctx) })
	}
	if a.Plant != nil {
		g.Go(func() error { return a.Plant.Run(gctx) })
	}
	if addr := a.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return a.Collector.Serve(gctx, addr, a.log) })
	}
	if a.view != nil {
		g.Go(func() error {
			defer cancel()
			return a.runView(gctx)
		})
	} else {
		g.Go(func() error { return a.evictSeries(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	summary := metrics.Values(a.Metrics)
	if rec != nil {
		if cerr := rec.Close(summary); cerr != nil {
			a.log.WithError(cerr).Error("closing recording")
			err = errors.Join(err, cerr)
		}
	}
	fields := logrus.Fields{}
	for name, v := range summary {
		fields[name] = v
	}
	a.log.WithFields(fields).Info("stopped")
	return err
}

// evictSeries keeps the buffers inside their windows when no view prunes
// them frame by frame.
func (a *App) evictSeries(ctx context.Context) error {
	ticker := time.NewTicker(seriesWatchPeriod)
	defer ticker.Stop()
	for {
		if n := a.Series.DrainAll(); n > 0 {
			a.log.WithField("points", n).Trace("series evicted")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *App) runView(ctx context.Context) error {
	p := tea.NewProgram(*a.view, tea.WithAltScreen())
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()
	_, err := p.Run()
	return err
}
