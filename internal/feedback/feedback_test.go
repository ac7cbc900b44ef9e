package feedback

import (
	"errors"
	"testing"

	"github.com/san-kum/heaterloop/internal/config"
	"github.com/san-kum/heaterloop/internal/dynamo"
	"github.com/san-kum/heaterloop/internal/tf"
	"github.com/san-kum/heaterloop/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// failing errors on every call after the first n.
type failing struct {
	n     int
	calls int
}

func (f *failing) Advance(in, t float64) (float64, error) {
	f.calls++
	if f.calls > f.n {
		return 0, errBoom
	}
	return in, nil
}

func (f *failing) Snapshot() any          { return f.calls }
func (f *failing) Restore(snap any) error { f.calls = snap.(int); return nil }

func gain(t *testing.T, k float64) *tf.TransferFunction {
	t.Helper()
	g, err := tf.FirstOrder(k, 0, 0)
	require.NoError(t, err)
	return g
}

func lag(t *testing.T, k, tau float64) *tf.TransferFunction {
	t.Helper()
	g, err := tf.FirstOrder(k, tau, 0)
	require.NoError(t, err)
	return g
}

func testReference(t *testing.T) Reference {
	return Reference{
		Inlet:  units.Celsius(79.12),
		Outlet: units.Celsius(102.41),
		Model:  gain(t, 0.5),
	}
}

func TestParallelSumFloorClamp(t *testing.T) {
	s := NewParallelSum(testReference(t), units.Kilowatts(8), 0,
		Branch{Name: "a", Gain: 1000, Op: gain(t, -6)},
		Branch{Name: "b", Gain: 1000, Op: gain(t, -4)},
	)

	res, err := s.Compute(Sample{Inlet: units.Celsius(80.12)}, 0)
	require.NoError(t, err)
	assert.Equal(t, units.Power(0), res.Command)
	assert.True(t, res.Clamped)
	assert.InDelta(t, 102.91, res.ExpectedOutlet.Celsius(), 1e-9)
}

func TestParallelSumAboveFloor(t *testing.T) {
	s := NewParallelSum(testReference(t), units.Kilowatts(8), 0,
		Branch{Name: "a", Gain: 1000, Op: gain(t, 1.5)},
		Branch{Name: "b", Gain: -500, Op: gain(t, 1)},
	)

	res, err := s.Compute(Sample{Inlet: units.Celsius(81.12)}, 0)
	require.NoError(t, err)
	// 8000 + 1000*3 - 500*2
	assert.InDelta(t, 10000, res.Command.Watts(), 1e-6)
	assert.False(t, res.Clamped)
	assert.InDelta(t, 2, float64(res.InletDeviation), 1e-9)
}

func TestParallelSumRollsBackOnBranchFailure(t *testing.T) {
	slow := lag(t, 1, 2)
	bad := &failing{n: 3}
	s := NewParallelSum(testReference(t), units.Kilowatts(8), 0,
		Branch{Name: "slow", Gain: 100, Op: slow},
		Branch{Name: "bad", Gain: 100, Op: bad},
	)

	hot := Sample{Inlet: units.Celsius(85)}
	for i := 0; i < 3; i++ {
		_, err := s.Compute(hot, float64(i)*0.1)
		require.NoError(t, err)
	}
	before := slow.Snapshot()

	_, err := s.Compute(hot, 0.3)
	require.ErrorIs(t, err, errBoom)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad", se.Stage)
	assert.Equal(t, before, slow.Snapshot())
	assert.Equal(t, 3, bad.calls)
}

func TestParallelSumDefaultsAtSteadyState(t *testing.T) {
	s, err := FromConfig(config.DefaultConfig().Control, nil)
	require.NoError(t, err)
	require.Equal(t, "parallel-sum", s.Name())

	steady := Sample{Inlet: units.Celsius(79.12), Outlet: units.Celsius(102.41)}
	for i := 0; i < 20; i++ {
		res, err := s.Compute(steady, float64(i)*0.1)
		require.NoError(t, err)
		assert.InDelta(t, 8000, res.Command.Watts(), 1e-9)
		assert.InDelta(t, 102.41, res.ExpectedOutlet.Celsius(), 1e-9)
	}
}

func TestParallelSumReactsToInletRise(t *testing.T) {
	s, err := FromConfig(config.DefaultConfig().Control, nil)
	require.NoError(t, err)

	var res Result
	for i := 0; i < 50; i++ {
		res, err = s.Compute(Sample{Inlet: units.Celsius(80.12)}, float64(i)*0.1)
		require.NoError(t, err)
	}
	assert.NotEqual(t, 8000.0, res.Command.Watts())
	assert.GreaterOrEqual(t, res.Command.Watts(), 0.0)
}

func TestCascadeChainsStages(t *testing.T) {
	c := NewCascade(testReference(t), 100, units.Watts(1000), 0, gain(t, 2), gain(t, 3))

	res, err := c.Compute(Sample{Inlet: units.Celsius(80.12)}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1600, res.Command.Watts(), 1e-6)
	assert.False(t, res.Clamped)

	res, err = c.Compute(Sample{Inlet: units.Celsius(69.12)}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, units.Power(0), res.Command)
	assert.True(t, res.Clamped)
}

func TestCascadeStageErrorNamesStage(t *testing.T) {
	first := lag(t, 1, 1)
	c := NewCascade(testReference(t), 100, 0, 0, first, &failing{})

	_, err := c.Compute(Sample{Inlet: units.Celsius(80)}, 0)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "cascade[1]", se.Stage)
	assert.Equal(t, 0.0, first.Output())
}

func pidCascade(t *testing.T) Strategy {
	t.Helper()
	cfg := config.DefaultConfig().Control
	cfg.Mode = config.ModePIDCascade
	s, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	return s
}

func TestPIDCascadeConvergesToBias(t *testing.T) {
	s := pidCascade(t)
	steady := Sample{Inlet: units.Celsius(79.12), Outlet: units.Celsius(102.41)}

	var res Result
	var err error
	for i := 0; i < 100; i++ {
		res, err = s.Compute(steady, float64(i)*0.1)
		require.NoError(t, err)
	}
	assert.InDelta(t, 0, float64(res.ErrorSignal), 1e-9)
	assert.InDelta(t, 8000, res.Command.Watts(), 1e-6)
}

func TestPIDCascadeHasNoFloor(t *testing.T) {
	s := pidCascade(t)
	res, err := s.Compute(Sample{Inlet: units.Celsius(79.12), Outlet: units.Celsius(200)}, 0)
	require.NoError(t, err)
	assert.Less(t, res.Command.Watts(), 0.0)
	assert.False(t, res.Clamped)
	assert.Less(t, float64(res.ErrorSignal), 0.0)
}

func TestPIDCascadeHotOutletCutsPower(t *testing.T) {
	s := pidCascade(t)
	hot := Sample{Inlet: units.Celsius(79.12), Outlet: units.Celsius(103.41)}

	var res Result
	var err error
	for i := 0; i < 20; i++ {
		res, err = s.Compute(hot, float64(i)*0.1)
		require.NoError(t, err)
	}
	assert.Less(t, res.Command.Watts(), 8000.0)
}

func TestPIDCascadeParams(t *testing.T) {
	s := pidCascade(t).(*PIDCascade)
	params := s.GetParams()
	assert.Len(t, params, 8)
	assert.InDelta(t, 1.0/60, params["outer.Ki"], 1e-12)
	assert.InDelta(t, 10, params["inner.Kd"], 1e-12)

	require.NoError(t, s.SetParam("inner.Tf", 2))
	assert.Equal(t, 2.0, s.GetParams()["inner.Tf"])
	assert.ErrorIs(t, s.SetParam("inner.Tf", -1), dynamo.ErrParameterBounds)
	assert.ErrorIs(t, s.SetParam("middle.Kp", 1), dynamo.ErrUnknownParameter)
	assert.ErrorIs(t, s.SetParam("outer", 1), dynamo.ErrUnknownParameter)
}

func TestManualHoldsOperatorPower(t *testing.T) {
	cfg := config.DefaultConfig().Control
	cfg.Mode = config.ModeManual
	s, err := FromConfig(cfg, func() units.Power { return units.Kilowatts(5) })
	require.NoError(t, err)

	res, err := s.Compute(Sample{Inlet: units.Celsius(79.12)}, 0)
	require.NoError(t, err)
	assert.True(t, res.Hold)
	assert.InDelta(t, 5000, res.Command.Watts(), 1e-9)

	_, err = FromConfig(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestFromConfigModes(t *testing.T) {
	power := func() units.Power { return 0 }
	for _, mode := range config.Modes {
		t.Run(mode, func(t *testing.T) {
			cfg := config.DefaultConfig().Control
			cfg.Mode = mode
			s, err := FromConfig(cfg, power)
			require.NoError(t, err)
			assert.Equal(t, mode, s.Name())
		})
	}

	cfg := config.DefaultConfig().Control
	cfg.Mode = "bang-bang"
	_, err := FromConfig(cfg, power)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = config.DefaultConfig().Control
	cfg.Reference.Den = []float64{0}
	_, err = FromConfig(cfg, power)
	assert.ErrorIs(t, err, tf.ErrSingular)
}

func TestStrategySnapshotRestore(t *testing.T) {
	s := pidCascade(t)
	hot := Sample{Inlet: units.Celsius(80), Outlet: units.Celsius(103)}
	_, err := s.Compute(hot, 0)
	require.NoError(t, err)

	snap := s.Snapshot()
	a, err := s.Compute(hot, 0.1)
	require.NoError(t, err)
	require.NoError(t, s.Restore(snap))
	b, err := s.Compute(hot, 0.1)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := pidCascade(t)
	assert.ErrorIs(t, other.Restore(snap), tf.ErrSnapshot)
}
