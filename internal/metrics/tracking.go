package metrics

import (
	"math"
	"sync"

	"github.com/san-kum/heaterloop/internal/loop"
)

// Tracking is the fraction of ticks where BT-12 stayed within band kelvin of
// the reference model's expected outlet.
type Tracking struct {
	name string
	band float64

	mu         sync.Mutex
	violations int
	samples    int
}

func NewTracking(band float64) *Tracking {
	return &Tracking{
		name: "tracking",
		band: band,
	}
}

func (s *Tracking) Name() string {
	return s.name
}

func (s *Tracking) OnTick(r loop.Record) {
	miss := r.Sample.Outlet.Sub(r.Result.ExpectedOutlet)
	s.mu.Lock()
	s.samples++
	if math.Abs(float64(miss)) > s.band {
		s.violations++
	}
	s.mu.Unlock()
}

func (s *Tracking) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Tracking) Reset() {
	s.mu.Lock()
	s.violations = 0
	s.samples = 0
	s.mu.Unlock()
}
