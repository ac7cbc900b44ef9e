package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestStateIsValid(t *testing.T) {
	tests := []struct {
		name string
		s    State
		want bool
	}{
		{"empty", State{}, true},
		{"finite", State{1, -2, 3e9}, true},
		{"nan", State{1, math.NaN()}, false},
		{"inf", State{math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := State{1, 2}
	c := s.Clone()
	c[0] = 9
	if s[0] != 1 {
		t.Error("clone aliases original")
	}
}

func TestStateDotAndNorm(t *testing.T) {
	s := State{3, 4}
	if s.Norm() != 5 {
		t.Errorf("Norm() = %v, want 5", s.Norm())
	}
	if got := s.Dot([]float64{2}); got != 6 {
		t.Errorf("Dot() = %v, want 6", got)
	}
}

func TestSimulationErrorUnwrap(t *testing.T) {
	err := &SimulationError{Step: 3, Time: 0.3, Wrapped: ErrInvalidState}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("expected errors.Is to see wrapped sentinel")
	}
	if err.Error() == "" {
		t.Error("empty message")
	}
}
