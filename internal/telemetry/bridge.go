package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/units"
	"github.com/sirupsen/logrus"
)

// TickObserver receives the outcome of every periodic tick.
type TickObserver interface {
	ObserveTick(loop string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveTick(string, time.Duration, error) {}

type BridgeConfig struct {
	Namespace uint16
	Period    time.Duration
	// Timeout bounds each read and each write.
	Timeout time.Duration
}

type Bridge struct {
	cfg   BridgeConfig
	board *cell.Board
	log   *logrus.Entry
	obs   TickObserver

	outlet     *cell.Writer[units.Temperature]
	ctahFlow   *cell.Writer[units.MassRate]
	heaterFlow *cell.Writer[units.MassRate]
	calcTime   *cell.Writer[float64]
	valves     *cell.Writer[cell.Valves]

	readList []NodeID

	mu       sync.RWMutex
	last     Readings
	haveLast bool
}

// NewBridge claims the telemetry-owned cells of board.
func NewBridge(board *cell.Board, cfg BridgeConfig, log *logrus.Entry, obs TickObserver) (*Bridge, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("telemetry: bridge period must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if obs == nil {
		obs = nopObserver{}
	}
	b := &Bridge{
		cfg:      cfg,
		board:    board,
		log:      log.WithField("component", "telemetry.bridge"),
		obs:      obs,
		readList: ReadList(cfg.Namespace),
	}
	var err error
	if b.outlet, err = board.OutletTemp.Claim(cell.Telemetry); err != nil {
		return nil, err
	}
	if b.ctahFlow, err = board.CTAHFlow.Claim(cell.Telemetry); err != nil {
		return nil, err
	}
	if b.heaterFlow, err = board.HeaterFlow.Claim(cell.Telemetry); err != nil {
		return nil, err
	}
	if b.calcTime, err = board.CalcTime.Claim(cell.Telemetry); err != nil {
		return nil, err
	}
	if b.valves, err = board.Valves.Claim(cell.Telemetry); err != nil {
		return nil, err
	}
	return b, nil
}

// Run ticks until ctx is cancelled or the session fails.
func (b *Bridge) Run(ctx context.Context, sess Session) error {
	ticker := time.NewTicker(b.cfg.Period)
	defer ticker.Stop()

	for {
		if err := b.Tick(ctx, sess); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsSessionFatal(err) {
				b.log.WithError(err).Error("session failed")
				return err
			}
			b.log.WithError(err).Warn("telemetry tick failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one read-then-write cycle.
func (b *Bridge) Tick(ctx context.Context, sess Session) error {
	start := time.Now()
	err := b.tick(ctx, sess)
	b.obs.ObserveTick("telemetry", time.Since(start), err)
	return err
}

func (b *Bridge) tick(ctx context.Context, sess Session) error {
	var errs []error

	rctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	vals, err := sess.Read(rctx, b.readList)
	cancel()
	if err != nil {
		err = fmt.Errorf("read: %w", err)
		if IsSessionFatal(err) {
			return err
		}
		errs = append(errs, err)
	} else if r, err := DecodeReadings(vals); err != nil {
		errs = append(errs, err)
	} else {
		b.publish(r)
	}

	cmds := Commands{
		PumpPressure: b.board.PumpPressure.Read(),
		Inlet:        b.board.InletTemp.Read(),
		HeaterPower:  b.board.HeaterPower.Read(),
	}
	wctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	err = sess.Write(wctx, cmds.Encode(b.cfg.Namespace))
	cancel()
	if err != nil {
		errs = append(errs, fmt.Errorf("write: %w", err))
	}

	if b.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		b.log.WithFields(logrus.Fields{
			"pump_pa":   cmds.PumpPressure,
			"bt11_degc": cmds.Inlet,
			"power_kw":  cmds.HeaterPower.Kilowatts(),
		}).Debug("telemetry tick")
	}
	return errors.Join(errs...)
}

func (b *Bridge) publish(r Readings) {
	b.outlet.Write(r.Outlet)
	b.ctahFlow.Write(r.CTAHFlow)
	b.heaterFlow.Write(r.HeaterFlow)
	b.calcTime.Write(r.CalcTime)
	b.valves.Write(r.Valves)

	b.mu.Lock()
	b.last = r
	b.haveLast = true
	b.mu.Unlock()
}

// Latest returns the most recent decoded read batch.
func (b *Bridge) Latest() (Readings, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}
