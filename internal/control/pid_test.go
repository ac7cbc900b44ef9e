package control

import (
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/san-kum/heaterloop/internal/dynamo"
	"github.com/san-kum/heaterloop/internal/tf"
)

func TestIntegralAccumulates(test *testing.T) {
	t := NewWithT(test)
	p, err := NewIntegral(2, 4)
	t.Expect(err).NotTo(HaveOccurred())

	var u float64
	for i := 0; i <= 10; i++ {
		u, err = p.Advance(1, float64(i)*0.1)
		t.Expect(err).NotTo(HaveOccurred())
	}
	// Kp*e + Ki*integral = 2*1 + 0.5*1.0
	t.Expect(u).To(BeNumerically("~", 2.5, 1e-9))
	t.Expect(p.Integral()).To(BeNumerically("~", 1.0, 1e-9))
}

func TestIntegralRejectsZeroTime(test *testing.T) {
	t := NewWithT(test)
	_, err := NewIntegral(1, 0)
	t.Expect(err).To(MatchError(dynamo.ErrParameterBounds))
}

func TestDerivativeFilterSmoothsStep(test *testing.T) {
	t := NewWithT(test)
	raw, _ := NewDerivative(1, 1, 0)
	filtered, _ := NewDerivative(1, 1, 0.5)

	for _, p := range []*PID{raw, filtered} {
		_, err := p.Advance(0, 0)
		t.Expect(err).NotTo(HaveOccurred())
	}
	ur, _ := raw.Advance(1, 0.1)
	uf, _ := filtered.Advance(1, 0.1)

	t.Expect(ur).To(BeNumerically("~", 1+10, 1e-9))
	t.Expect(uf).To(BeNumerically("<", ur))
	t.Expect(uf).To(BeNumerically(">", 1))
}

func TestAntiWindupHoldsIntegral(test *testing.T) {
	t := NewWithT(test)
	p := NewPID(0, 1, 0)
	p.OutMax = 0.5

	for i := 0; i <= 20; i++ {
		_, err := p.Advance(1, float64(i)*0.1)
		t.Expect(err).NotTo(HaveOccurred())
	}
	t.Expect(p.Output()).To(Equal(0.5))
	t.Expect(p.Integral()).To(BeNumerically("<=", 0.6))
}

func TestSnapshotRestore(test *testing.T) {
	t := NewWithT(test)
	p, _ := NewIntegral(1, 1)
	p.Advance(1, 0)
	p.Advance(1, 0.1)
	snap := p.Snapshot()

	a, _ := p.Advance(2, 0.2)
	t.Expect(p.Restore(snap)).To(Succeed())
	b, _ := p.Advance(2, 0.2)
	t.Expect(a).To(Equal(b))

	q := NewPID(1, 0, 0)
	t.Expect(q.Restore(snap)).To(MatchError(tf.ErrSnapshot))
}

func TestAdvanceRejectsBadInput(test *testing.T) {
	t := NewWithT(test)
	p := NewPID(1, 1, 0)
	p.Advance(1, 1)

	_, err := p.Advance(math.NaN(), 2)
	t.Expect(err).To(MatchError(tf.ErrNonFinite))
	_, err = p.Advance(1, 0.5)
	t.Expect(err).To(MatchError(tf.ErrTimeReversed))
}

func TestParams(test *testing.T) {
	t := NewWithT(test)
	p := NewPID(1, 2, 3)

	t.Expect(p.GetParams()).To(HaveKeyWithValue("Ki", 2.0))
	t.Expect(p.SetParam("Kd", 0.5)).To(Succeed())
	t.Expect(p.Kd).To(Equal(0.5))
	t.Expect(p.SetParam("Target", 1)).To(MatchError(dynamo.ErrUnknownParameter))
	t.Expect(p.SetParam("Tf", -1)).To(MatchError(dynamo.ErrParameterBounds))
}
