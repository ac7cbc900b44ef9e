package feedback

import (
	"fmt"

	"github.com/san-kum/heaterloop/internal/config"
	"github.com/san-kum/heaterloop/internal/control"
	"github.com/san-kum/heaterloop/internal/tf"
	"github.com/san-kum/heaterloop/internal/units"
)

// FromConfig builds the strategy named by cfg.Mode. manualPower is read by
// the manual strategy and may be nil otherwise.
func FromConfig(cfg config.ControlConfig, manualPower func() units.Power) (Strategy, error) {
	model, err := cfg.Reference.Build()
	if err != nil {
		return nil, fmt.Errorf("reference model: %w", err)
	}
	ref := Reference{
		Inlet:  units.Celsius(cfg.InletReference),
		Outlet: units.Celsius(cfg.OutletReference),
		Model:  model,
	}
	bias := units.Watts(cfg.Bias)
	floor := units.Watts(cfg.Floor)

	switch cfg.Mode {
	case config.ModeParallelSum:
		branches := make([]Branch, 0, len(cfg.Branches))
		for i, bc := range cfg.Branches {
			op, err := buildChain(bc.Stages)
			if err != nil {
				return nil, fmt.Errorf("branch %d (%s): %w", i, bc.Name, err)
			}
			name := bc.Name
			if name == "" {
				name = fmt.Sprintf("branch-%d", i)
			}
			branches = append(branches, Branch{Name: name, Gain: units.ThermalConductance(bc.Gain), Op: op})
		}
		return NewParallelSum(ref, bias, floor, branches...), nil

	case config.ModeCascade:
		stages := make([]tf.Operator, 0, len(cfg.Cascade.Stages))
		for i, sc := range cfg.Cascade.Stages {
			g, err := sc.Build()
			if err != nil {
				return nil, fmt.Errorf("cascade stage %d: %w", i, err)
			}
			stages = append(stages, g)
		}
		return NewCascade(ref, units.ThermalConductance(cfg.Cascade.Gain), bias, floor, stages...), nil

	case config.ModePIDCascade:
		p := cfg.PID
		inner, err := control.NewDerivative(p.InnerGain, p.DerivativeTime, p.FilterRatio)
		if err != nil {
			return nil, fmt.Errorf("inner block: %w", err)
		}
		outer, err := control.NewIntegral(p.OuterGain, p.IntegralTime)
		if err != nil {
			return nil, fmt.Errorf("outer block: %w", err)
		}
		return NewPIDCascade(ref, inner, outer, units.ThermalConductance(p.Gain), bias), nil

	case config.ModeManual:
		if manualPower == nil {
			return nil, fmt.Errorf("%w: manual mode needs a power source", config.ErrInvalid)
		}
		return NewManual(ref, manualPower), nil
	}
	return nil, fmt.Errorf("%w: control mode %q", config.ErrInvalid, cfg.Mode)
}

func buildChain(stages []config.TFConfig) (tf.Operator, error) {
	ops := make([]tf.Operator, 0, len(stages))
	for i, sc := range stages {
		g, err := sc.Build()
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		ops = append(ops, g)
	}
	if len(ops) == 1 {
		return ops[0], nil
	}
	return tf.Chain(ops...), nil
}
