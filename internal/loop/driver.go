package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/dynamo"
	"github.com/san-kum/heaterloop/internal/feedback"
	"github.com/san-kum/heaterloop/internal/series"
	"github.com/san-kum/heaterloop/internal/telemetry"
	"github.com/san-kum/heaterloop/internal/units"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTickPanic wraps a panic recovered from a strategy computation.
	ErrTickPanic = errors.New("loop: tick panicked")
	// ErrNotTunable is returned by Tune when the strategy has no live parameters.
	ErrNotTunable = errors.New("loop: strategy has no tunable parameters")
)

// Record is one committed control tick.
type Record struct {
	Time         float64
	Sample       feedback.Sample
	Result       feedback.Result
	HeaterPower  units.Power
	PumpPressure units.Pressure
	HeaterFlow   units.MassRate
	// Written is false when the operator owns the heater power.
	Written bool
}

type Observer interface {
	OnTick(r Record)
}

type Driver struct {
	board    *cell.Board
	buffers  *series.Set
	strategy feedback.Strategy
	period   time.Duration
	log      *logrus.Entry
	ticks    telemetry.TickObserver

	power  *cell.Writer[units.Power]
	last   float64
	ticked bool

	// tuning guards the strategy against SetParam while it computes
	tuning sync.Mutex

	mu        sync.Mutex
	observers []Observer
}

// NewDriver claims the heater power cell for the controller unless the
// strategy leaves it to the operator.
func NewDriver(board *cell.Board, buffers *series.Set, strategy feedback.Strategy, period time.Duration, log *logrus.Entry, ticks telemetry.TickObserver) (*Driver, error) {
	if period <= 0 {
		return nil, fmt.Errorf("loop: period must be positive")
	}
	d := &Driver{
		board:    board,
		buffers:  buffers,
		strategy: strategy,
		period:   period,
		log:      log.WithFields(logrus.Fields{"component": "loop.driver", "strategy": strategy.Name()}),
		ticks:    ticks,
	}
	if _, manual := strategy.(*feedback.Manual); !manual {
		w, err := board.HeaterPower.Claim(cell.Controller)
		if err != nil {
			return nil, fmt.Errorf("heater power: %w", err)
		}
		d.power = w
	}
	return d, nil
}

func (d *Driver) AddObserver(o Observer) {
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
}

func (d *Driver) Strategy() feedback.Strategy { return d.strategy }

// Params returns the strategy's live parameters, or nil when it has none.
func (d *Driver) Params() map[string]float64 {
	c, ok := d.strategy.(dynamo.Configurable)
	if !ok {
		return nil
	}
	d.tuning.Lock()
	defer d.tuning.Unlock()
	return c.GetParams()
}

// Tune sets a strategy parameter between ticks. Safe to call from any
// goroutine.
func (d *Driver) Tune(name string, value float64) error {
	c, ok := d.strategy.(dynamo.Configurable)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTunable, d.strategy.Name())
	}
	d.tuning.Lock()
	defer d.tuning.Unlock()
	if err := c.SetParam(name, value); err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{"param": name, "value": value}).Info("strategy tuned")
	return nil
}

// Run ticks every period until ctx is cancelled. Tick time is seconds since
// Run started.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := d.Tick(now.Sub(start).Seconds()); err != nil {
				d.log.WithError(err).Warn("control tick failed")
			}
		}
	}
}

// Tick runs one control computation at time t.
func (d *Driver) Tick(t float64) (Record, error) {
	start := time.Now()
	rec, err := d.tick(t)
	if d.ticks != nil {
		d.ticks.ObserveTick("control", time.Since(start), err)
	}
	return rec, err
}

func (d *Driver) tick(t float64) (Record, error) {
	if d.ticked && t < d.last {
		return Record{Time: t}, fmt.Errorf("%w: tick at %v after %v", series.ErrTimeRegression, t, d.last)
	}
	rec := Record{
		Time: t,
		Sample: feedback.Sample{
			Inlet:  d.board.InletTemp.Read(),
			Outlet: d.board.OutletTemp.Read(),
		},
	}

	res, err := d.compute(rec.Sample, t)
	if err != nil {
		return rec, err
	}
	rec.Result = res

	if !res.Hold && d.power != nil {
		d.power.Write(res.Command)
		rec.Written = true
	}
	rec.HeaterPower = d.board.HeaterPower.Read()
	rec.PumpPressure = d.board.PumpPressure.Read()
	rec.HeaterFlow = d.board.HeaterFlow.Read()

	d.last, d.ticked = t, true
	if err := d.record(rec); err != nil {
		return rec, err
	}

	if d.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		d.log.WithFields(logrus.Fields{
			"t":         t,
			"bt11_degc": rec.Sample.Inlet,
			"bt12_degc": rec.Sample.Outlet,
			"expected":  res.ExpectedOutlet,
			"power_kw":  rec.HeaterPower.Kilowatts(),
			"clamped":   res.Clamped,
		}).Debug("control tick")
	}

	d.mu.Lock()
	observers := d.observers
	d.mu.Unlock()
	for _, o := range observers {
		o.OnTick(rec)
	}
	return rec, nil
}

// compute runs the strategy, undoing its state change if it panics.
func (d *Driver) compute(s feedback.Sample, t float64) (res feedback.Result, err error) {
	d.tuning.Lock()
	defer d.tuning.Unlock()
	snap := d.strategy.Snapshot()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = fmt.Errorf("%w: %v", ErrTickPanic, r)
		if rerr := d.strategy.Restore(snap); rerr != nil {
			err = fmt.Errorf("%w (restore: %v)", err, rerr)
		}
		res = feedback.Result{}
	}()
	return d.strategy.Compute(s, t)
}

func (d *Driver) record(r Record) error {
	return errors.Join(
		d.buffers.Heater.Append(series.Point{T: r.Time, V: []float64{
			r.Sample.Inlet.Celsius(), r.HeaterPower.Kilowatts(), r.Sample.Outlet.Celsius(),
		}}),
		d.buffers.Reference.Append(series.Point{T: r.Time, V: []float64{r.Result.ExpectedOutlet.Celsius()}}),
		d.buffers.Flow.Append(series.Point{T: r.Time, V: []float64{
			r.PumpPressure.Pascals(), r.HeaterFlow.KilogramsPerSecond(),
		}}),
	)
}
