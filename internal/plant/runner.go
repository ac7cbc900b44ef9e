package plant

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/config"
	"github.com/san-kum/heaterloop/internal/telemetry"
	"github.com/san-kum/heaterloop/internal/units"
	"github.com/sirupsen/logrus"
)

// Server is the server-side view of the plant's variables.
type Server interface {
	Get(name string) (telemetry.Value, bool)
	Set(name string, v telemetry.Value)
}

// Runner steps the heater against a server on a fixed period. Inputs are
// whatever clients last wrote; outputs are published for the next read.
type Runner struct {
	server      Server
	heater      *Heater
	period      time.Duration
	coefficient float64
	log         *logrus.Entry
	obs         telemetry.TickObserver

	last time.Time
}

func NewRunner(cfg config.PlantConfig, server Server, log *logrus.Entry, obs telemetry.TickObserver) (*Runner, error) {
	if cfg.Period.Duration <= 0 {
		return nil, fmt.Errorf("plant: period must be positive")
	}
	h, err := NewHeater(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{
		server:      server,
		heater:      h,
		period:      cfg.Period.Duration,
		coefficient: cfg.FlowCoefficient,
		log:         log.WithField("component", "plant"),
		obs:         obs,
	}, nil
}

func (r *Runner) Heater() *Heater { return r.heater }

// Seed publishes a full set of node values and settles the heater at the
// matching steady state, so the first client read decodes cleanly.
func (r *Runner) Seed(s cell.Seed, v cell.Valves) {
	flows := BranchFlows(s.PumpPressure, v, r.coefficient)
	r.heater.Settle(Inputs{Power: s.HeaterPower, Inlet: s.InletTemp, Flow: flows.Heater})

	r.server.Set(telemetry.NodePumpPressure, telemetry.Float(s.PumpPressure.Pascals()))
	r.server.Set(telemetry.NodeInletTemp, telemetry.Float(s.InletTemp.Celsius()))
	r.server.Set(telemetry.NodeHeaterPower, telemetry.Float(s.HeaterPower.Kilowatts()))
	r.server.Set(telemetry.NodeHeaterValve, telemetry.Bool(v.Heater))
	r.server.Set(telemetry.NodeDHXValve, telemetry.Bool(v.DHX))
	r.server.Set(telemetry.NodeCTAHValve, telemetry.Bool(v.CTAH))
	r.publish(flows, 0)
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.last = time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(r.last)
			r.last = now
			// a stalled process must not make the plant jump
			if dt > 10*r.period {
				dt = 10 * r.period
			}
			if err := r.Step(dt.Seconds()); err != nil {
				r.log.WithError(err).Warn("plant step failed")
			}
		}
	}
}

// Step advances the plant by dt seconds of simulated time.
func (r *Runner) Step(dt float64) error {
	start := time.Now()
	err := r.step(dt)
	elapsed := time.Since(start)
	if r.obs != nil {
		r.obs.ObserveTick("plant", elapsed, err)
	}
	return err
}

func (r *Runner) step(dt float64) error {
	in, valves, err := r.inputs()
	if err != nil {
		return err
	}
	pressure := units.Pressure(r.float(telemetry.NodePumpPressure, 0))
	flows := BranchFlows(pressure, valves, r.coefficient)
	in.Flow = flows.Heater

	start := time.Now()
	if err := r.heater.Advance(in, dt); err != nil {
		return err
	}
	r.publish(flows, time.Since(start))
	return nil
}

func (r *Runner) inputs() (Inputs, cell.Valves, error) {
	var in Inputs
	inlet, err := r.value(telemetry.NodeInletTemp).Float()
	if err != nil {
		return in, cell.Valves{}, fmt.Errorf("plant: %s: %w", telemetry.NodeInletTemp, err)
	}
	kw, err := r.value(telemetry.NodeHeaterPower).Float()
	if err != nil {
		return in, cell.Valves{}, fmt.Errorf("plant: %s: %w", telemetry.NodeHeaterPower, err)
	}
	in.Inlet = units.Celsius(inlet)
	in.Power = units.Kilowatts(kw)

	v := cell.Valves{
		Heater: r.flag(telemetry.NodeHeaterValve, true),
		DHX:    r.flag(telemetry.NodeDHXValve, false),
		CTAH:   r.flag(telemetry.NodeCTAHValve, true),
	}
	return in, v, nil
}

func (r *Runner) value(name string) telemetry.Value {
	v, ok := r.server.Get(name)
	if !ok {
		return telemetry.Empty("BadNodeIdUnknown")
	}
	return v
}

func (r *Runner) float(name string, def float64) float64 {
	f, err := r.value(name).Float()
	if err != nil {
		return def
	}
	return f
}

func (r *Runner) flag(name string, def bool) bool {
	b, err := r.value(name).Bool()
	if err != nil {
		return def
	}
	return b
}

func (r *Runner) publish(f Flows, calc time.Duration) {
	r.server.Set(telemetry.NodeCTAHFlow, telemetry.Float(f.CTAH.KilogramsPerSecond()))
	r.server.Set(telemetry.NodeHeaterFlow, telemetry.Float(f.Heater.KilogramsPerSecond()))
	r.server.Set(telemetry.NodeOutletTemp, telemetry.Float(r.heater.Outlet().Celsius()))
	r.server.Set(telemetry.NodeCalcTime, telemetry.Float(float64(calc.Microseconds())/1000))
}
