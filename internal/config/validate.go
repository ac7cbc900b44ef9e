package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"

	"github.com/san-kum/heaterloop/internal/integrators"
	"github.com/san-kum/heaterloop/internal/tf"
	"github.com/sirupsen/logrus"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Validate reports every problem found; the process should refuse to start
// on error.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	positive := map[string]Duration{
		"telemetry.period":          c.Telemetry.Period,
		"telemetry.retry_interval":  c.Telemetry.RetryInterval,
		"control.period":            c.Control.Period,
		"series.flow_window":        c.Series.FlowWindow,
		"series.temperature_window": c.Series.TemperatureWindow,
		"plant.period":              c.Plant.Period,
	}
	if c.Probe.Enabled {
		positive["probe.period"] = c.Probe.Period
	}
	for name, d := range positive {
		if d.Duration <= 0 {
			bad("%s must be positive, got %s", name, d)
		}
	}

	if c.Telemetry.Port <= 0 || c.Telemetry.Port > 65535 {
		bad("telemetry.port %d out of range", c.Telemetry.Port)
	}
	if c.Telemetry.Path != url.PathEscape(c.Telemetry.Path) {
		bad("telemetry.path %q must be a single path segment", c.Telemetry.Path)
	}

	ctl := c.Control
	if !slices.Contains(Modes, ctl.Mode) {
		bad("control.mode %q is not one of %v", ctl.Mode, Modes)
	}
	for name, v := range map[string]float64{
		"control.inlet_reference_degc":  ctl.InletReference,
		"control.outlet_reference_degc": ctl.OutletReference,
		"control.bias_watts":            ctl.Bias,
		"control.floor_watts":           ctl.Floor,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad("%s is not finite", name)
		}
	}
	checkTF(bad, "control.reference", ctl.Reference)

	switch ctl.Mode {
	case ModeParallelSum:
		if len(ctl.Branches) == 0 {
			bad("control.branches must not be empty in %s mode", ctl.Mode)
		}
		for i, b := range ctl.Branches {
			checkBranch(bad, fmt.Sprintf("control.branches[%d]", i), b)
		}
	case ModeCascade:
		checkBranch(bad, "control.cascade", ctl.Cascade)
	case ModePIDCascade:
		p := ctl.PID
		if p.IntegralTime <= 0 {
			bad("control.pid.integral_time must be positive")
		}
		if p.DerivativeTime < 0 || p.FilterRatio < 0 {
			bad("control.pid derivative_time and filter_ratio must not be negative")
		}
		if p.OuterGain <= 0 {
			bad("control.pid.outer_gain must be positive")
		}
	}

	pl := c.Plant
	if pl.Nodes < 1 {
		bad("plant.nodes must be at least 1")
	}
	for name, v := range map[string]float64{
		"plant.mass_flow_kg_s":    pl.MassFlow,
		"plant.specific_heat":     pl.SpecificHeat,
		"plant.fluid_capacity":    pl.FluidCapacity,
		"plant.shell_capacity":    pl.ShellCapacity,
		"plant.shell_conductance": pl.ShellConductance,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			bad("%s must be positive", name)
		}
	}
	if pl.AmbientConductance < 0 || pl.FlowCoefficient < 0 || pl.OutletResolution < 0 {
		bad("plant conductances, flow coefficient and resolution must not be negative")
	}
	if integrators.ByName(pl.Integrator) == nil {
		bad("plant.integrator %q unknown", pl.Integrator)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		bad("log.level: %v", err)
	}

	return errors.Join(errs...)
}

func checkBranch(bad func(string, ...any), where string, b BranchConfig) {
	if math.IsNaN(b.Gain) || math.IsInf(b.Gain, 0) {
		bad("%s.gain is not finite", where)
	}
	if len(b.Stages) == 0 {
		bad("%s.stages must not be empty", where)
	}
	for i, s := range b.Stages {
		checkTF(bad, fmt.Sprintf("%s.stages[%d]", where, i), s)
	}
}

func checkTF(bad func(string, ...any), where string, c TFConfig) {
	if _, err := c.Build(); err != nil {
		bad("%s: %v", where, err)
	}
}

// Build constructs the transfer function described by c.
func (c TFConfig) Build() (*tf.TransferFunction, error) {
	g, err := tf.New(c.Num, c.Den, c.Delay)
	if err != nil {
		return nil, err
	}
	if c.MaxStep < 0 || math.IsNaN(c.MaxStep) {
		return nil, fmt.Errorf("max_step %v must not be negative", c.MaxStep)
	}
	if c.Integrator == "" {
		if c.MaxStep > 0 {
			g.WithIntegrator(integrators.NewRK4(), c.MaxStep)
		}
		return g, nil
	}
	integ := integrators.ByName(c.Integrator)
	if integ == nil {
		return nil, fmt.Errorf("integrator %q unknown", c.Integrator)
	}
	return g.WithIntegrator(integ, c.MaxStep), nil
}
