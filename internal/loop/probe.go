package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/series"
	"github.com/san-kum/heaterloop/internal/telemetry"
	"github.com/san-kum/heaterloop/internal/tf"
	"github.com/sirupsen/logrus"
)

// NewProbeOperator is the demonstration response: a decaying sine
// (1, 0.5 Hz, 1.5 Hz decay) plus an underdamped second order
// (gain 1, 1 s, zeta 0.45), both delayed by one second.
func NewProbeOperator() (tf.Operator, error) {
	sine, err := tf.DecayingSine(1, 0.5, 1.5, 1)
	if err != nil {
		return nil, err
	}
	second, err := tf.Underdamped(1, 1, 0.45, 1)
	if err != nil {
		return nil, err
	}
	return tf.Sum(sine, second), nil
}

type Probe struct {
	op     tf.Operator
	input  *cell.Cell[float64]
	buf    *series.Buffer
	period time.Duration
	log    *logrus.Entry
	ticks  telemetry.TickObserver
}

func NewProbe(op tf.Operator, input *cell.Cell[float64], buf *series.Buffer, period time.Duration, log *logrus.Entry, ticks telemetry.TickObserver) (*Probe, error) {
	if period <= 0 {
		return nil, fmt.Errorf("loop: probe period must be positive")
	}
	if buf.Arity() != 2 {
		return nil, fmt.Errorf("%w: probe buffer %s has arity %d", series.ErrArity, buf.Name(), buf.Arity())
	}
	return &Probe{
		op:     op,
		input:  input,
		buf:    buf,
		period: period,
		log:    log.WithField("component", "loop.probe"),
		ticks:  ticks,
	}, nil
}

func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := p.Tick(now.Sub(start).Seconds()); err != nil {
				p.log.WithError(err).Warn("probe tick failed")
			}
		}
	}
}

// Tick advances the operator on the current input and records the pair.
func (p *Probe) Tick(t float64) (float64, error) {
	start := time.Now()
	u := p.input.Read()
	y, err := p.op.Advance(u, t)
	if err == nil {
		err = p.buf.Append(series.Point{T: t, V: []float64{u, y}})
	}
	if p.ticks != nil {
		p.ticks.ObserveTick("probe", time.Since(start), err)
	}
	return y, err
}
