package tf

import "errors"

var (
	// ErrSingular indicates a zero leading denominator or a numerator of
	// higher degree than the denominator.
	ErrSingular = errors.New("tf: singular or improper transfer function")

	// ErrNonFinite indicates NaN or Inf in an input, the state or the output.
	ErrNonFinite = errors.New("tf: non-finite value")

	// ErrTimeReversed indicates Advance was called with an earlier time.
	ErrTimeReversed = errors.New("tf: time went backwards")

	// ErrSnapshot indicates Restore received a snapshot taken from another operator.
	ErrSnapshot = errors.New("tf: snapshot does not belong to this operator")
)
