package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/config"
	"github.com/san-kum/heaterloop/internal/dynamo"
	"github.com/san-kum/heaterloop/internal/feedback"
	"github.com/san-kum/heaterloop/internal/series"
	"github.com/san-kum/heaterloop/internal/telemetry"
	"github.com/san-kum/heaterloop/internal/units"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// scripted counts its calls as state and misbehaves on chosen calls. It
// panics at most once.
type scripted struct {
	calls   int
	panicOn int
	failOn  int
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Compute(in feedback.Sample, t float64) (feedback.Result, error) {
	s.calls++
	if s.calls == s.panicOn {
		s.panicOn = 0
		panic("division by zero")
	}
	if s.calls == s.failOn {
		return feedback.Result{}, errBoom
	}
	return feedback.Result{
		Command:        units.Watts(1000 * float64(s.calls)),
		ExpectedOutlet: in.Outlet,
	}, nil
}

func (s *scripted) Snapshot() any { return s.calls }

func (s *scripted) Restore(snap any) error {
	s.calls = snap.(int)
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	records []Record
	ticks   map[string]int
	errs    int
}

func (r *recordingObserver) OnTick(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveTick(loop string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticks == nil {
		r.ticks = make(map[string]int)
	}
	r.ticks[loop]++
	if err != nil {
		r.errs++
	}
}

func (r *recordingObserver) count(loop string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks[loop]
}

func quietLog() *logrus.Entry {
	log, _ := test.NewNullLogger()
	return logrus.NewEntry(log)
}

func steadyBoard() *cell.Board {
	return cell.NewBoard(cell.Seed{
		PumpPressure: 1600,
		InletTemp:    79.12,
		HeaterPower:  units.Watts(8000),
		OutletTemp:   102.41,
		HeaterFlow:   0.18,
	})
}

func newDriver(t *testing.T, board *cell.Board, s feedback.Strategy, obs *recordingObserver) (*Driver, *series.Set) {
	t.Helper()
	buffers := series.NewSet(series.DefaultWindows())
	var ticks telemetry.TickObserver
	if obs != nil {
		ticks = obs
	}
	d, err := NewDriver(board, buffers, s, 100*time.Millisecond, quietLog(), ticks)
	require.NoError(t, err)
	if obs != nil {
		d.AddObserver(obs)
	}
	return d, buffers
}

func TestDriverTickWritesCommandAndAppends(t *testing.T) {
	board := steadyBoard()
	s, err := feedback.FromConfig(config.DefaultConfig().Control, nil)
	require.NoError(t, err)
	obs := &recordingObserver{}
	d, buffers := newDriver(t, board, s, obs)

	for i := 0; i < 5; i++ {
		rec, err := d.Tick(float64(i) * 0.1)
		require.NoError(t, err)
		assert.True(t, rec.Written)
		assert.InDelta(t, 8000, rec.HeaterPower.Watts(), 1e-9)
	}

	assert.Equal(t, cell.Controller, board.HeaterPower.Owner())
	assert.Equal(t, 5, buffers.Heater.Len())
	assert.Equal(t, 5, buffers.Reference.Len())
	assert.Equal(t, 5, buffers.Flow.Len())

	last, ok := buffers.Heater.Latest()
	require.True(t, ok)
	assert.InDelta(t, 0.4, last.T, 1e-12)
	assert.InDelta(t, 79.12, last.V[0], 1e-12)
	assert.InDelta(t, 8.0, last.V[1], 1e-12)
	assert.InDelta(t, 102.41, last.V[2], 1e-12)

	flow, _ := buffers.Flow.Latest()
	assert.InDelta(t, 1600, flow.V[0], 1e-12)
	assert.InDelta(t, 0.18, flow.V[1], 1e-12)

	assert.Len(t, obs.records, 5)
	assert.Equal(t, 5, obs.count("control"))
	assert.Zero(t, obs.errs)
}

func TestDriverPanicLeavesStrategyIntact(t *testing.T) {
	board := steadyBoard()
	s := &scripted{panicOn: 2}
	obs := &recordingObserver{}
	d, buffers := newDriver(t, board, s, obs)

	_, err := d.Tick(0)
	require.NoError(t, err)
	assert.InDelta(t, 1000, board.HeaterPower.Read().Watts(), 1e-9)

	_, err = d.Tick(0.1)
	require.ErrorIs(t, err, ErrTickPanic)
	assert.Contains(t, err.Error(), "division by zero")
	assert.Equal(t, 1, s.calls, "state rolled back")
	assert.InDelta(t, 1000, board.HeaterPower.Read().Watts(), 1e-9, "no write on failure")
	assert.Equal(t, 1, buffers.Heater.Len())

	// the next tick carries on from the pre-panic state
	rec, err := d.Tick(0.2)
	require.NoError(t, err)
	assert.InDelta(t, 2000, rec.HeaterPower.Watts(), 1e-9)
	assert.Len(t, obs.records, 2)
	assert.Equal(t, 1, obs.errs)
}

func TestDriverErrorSkipsWrite(t *testing.T) {
	board := steadyBoard()
	s := &scripted{failOn: 1}
	d, buffers := newDriver(t, board, s, nil)

	_, err := d.Tick(0)
	require.ErrorIs(t, err, errBoom)
	assert.InDelta(t, 8000, board.HeaterPower.Read().Watts(), 1e-9)
	assert.Zero(t, buffers.Heater.Len())
}

func TestDriverManualLeavesPowerToOperator(t *testing.T) {
	board := steadyBoard()
	operator, err := board.HeaterPower.Claim(cell.Operator)
	require.NoError(t, err)
	operator.Write(units.Kilowatts(5))

	cfg := config.DefaultConfig().Control
	cfg.Mode = config.ModeManual
	s, err := feedback.FromConfig(cfg, board.HeaterPower.Read)
	require.NoError(t, err)
	d, buffers := newDriver(t, board, s, nil)

	rec, err := d.Tick(0)
	require.NoError(t, err)
	assert.False(t, rec.Written)
	assert.True(t, rec.Result.Hold)
	assert.InDelta(t, 5000, rec.HeaterPower.Watts(), 1e-9)
	assert.Equal(t, cell.Operator, board.HeaterPower.Owner())

	p, _ := buffers.Heater.Latest()
	assert.InDelta(t, 5.0, p.V[1], 1e-12)
}

func TestNewDriverRefusesOwnedPower(t *testing.T) {
	board := steadyBoard()
	_, err := board.HeaterPower.Claim(cell.Operator)
	require.NoError(t, err)

	s, err := feedback.FromConfig(config.DefaultConfig().Control, nil)
	require.NoError(t, err)
	_, err = NewDriver(board, series.NewSet(series.DefaultWindows()), s, time.Second, quietLog(), nil)
	assert.ErrorIs(t, err, cell.ErrWriterClaimed)

	_, err = NewDriver(steadyBoard(), series.NewSet(series.DefaultWindows()), s, 0, quietLog(), nil)
	assert.Error(t, err)
}

func TestDriverTimeRegressionIsTickLocal(t *testing.T) {
	board := steadyBoard()
	s := &scripted{}
	d, buffers := newDriver(t, board, s, nil)

	_, err := d.Tick(1)
	require.NoError(t, err)
	_, err = d.Tick(0.5)
	assert.ErrorIs(t, err, series.ErrTimeRegression)
	assert.Equal(t, 1, s.calls)
	assert.InDelta(t, 1000, board.HeaterPower.Read().Watts(), 1e-9)
	assert.Equal(t, 1, buffers.Heater.Len())

	_, err = d.Tick(1)
	assert.NoError(t, err)
}

func pidCascadeDriver(t *testing.T, board *cell.Board, period time.Duration) *Driver {
	t.Helper()
	cfg := config.DefaultConfig().Control
	cfg.Mode = config.ModePIDCascade
	s, err := feedback.FromConfig(cfg, nil)
	require.NoError(t, err)
	d, err := NewDriver(board, series.NewSet(series.DefaultWindows()), s, period, quietLog(), nil)
	require.NoError(t, err)
	return d
}

func TestDriverTuneChangesNextTick(t *testing.T) {
	board := steadyBoard()
	hot, err := board.OutletTemp.Claim(cell.Telemetry)
	require.NoError(t, err)
	hot.Write(units.Celsius(104.41))
	d := pidCascadeDriver(t, board, time.Second)

	rec, err := d.Tick(0)
	require.NoError(t, err)
	assert.Less(t, rec.HeaterPower.Watts(), 8000.0)

	params := d.Params()
	assert.Contains(t, params, "outer.Ki")
	assert.Contains(t, params, "inner.Kd")
	require.NoError(t, d.Tune("outer.Kp", 0))
	require.NoError(t, d.Tune("outer.Ki", 0))
	assert.Equal(t, 0.0, d.Params()["outer.Kp"])

	rec, err = d.Tick(1)
	require.NoError(t, err)
	assert.InDelta(t, 8000, rec.HeaterPower.Watts(), 1e-9, "outer block silenced")

	assert.ErrorIs(t, d.Tune("outer.Target", 1), dynamo.ErrUnknownParameter)
	assert.ErrorIs(t, d.Tune("Kp", 1), dynamo.ErrUnknownParameter)
}

func TestDriverTuneNeedsConfigurableStrategy(t *testing.T) {
	d, _ := newDriver(t, steadyBoard(), &scripted{}, nil)
	assert.Nil(t, d.Params())
	assert.ErrorIs(t, d.Tune("outer.Kp", 1), ErrNotTunable)
}

func TestDriverTuneWhileRunning(t *testing.T) {
	d := pidCascadeDriver(t, steadyBoard(), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 200; i++ {
		require.NoError(t, d.Tune("inner.Kp", float64(i%5)))
		_ = d.Params()
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 4.0, d.Params()["inner.Kp"])
}

func TestDriverRunStopsOnCancel(t *testing.T) {
	board := steadyBoard()
	obs := &recordingObserver{}
	buffers := series.NewSet(series.DefaultWindows())
	d, err := NewDriver(board, buffers, &scripted{}, 10*time.Millisecond, quietLog(), obs)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return obs.count("control") >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("driver did not stop")
	}
	assert.GreaterOrEqual(t, buffers.Heater.Len(), 3)
}
