package hmmlib

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfiguration indicates a model or configuration with
	// inconsistent dimensions or invalid probability values.
	ErrConfiguration = errors.New("hmmlib: invalid configuration")

	// ErrSymbol indicates a sequence symbol that is not in the
	// alphabet of the model.
	ErrSymbol = errors.New("hmmlib: symbol not in alphabet")

	// ErrNotBuilt is returned by inference methods called before Build.
	ErrNotBuilt = errors.New("hmmlib: trellis has not been built")

	// ErrOrder is returned when a pass is requested before the pass it
	// depends on has completed for the current model.
	ErrOrder = errors.New("hmmlib: pass run out of order")

	// ErrNotConverged is matched by the error returned when Baum-Welch
	// training reaches the iteration cap.
	ErrNotConverged = errors.New("hmmlib: EM did not converge")
)

// NotConvergedError reports that Baum-Welch training stopped at the
// iteration cap before the change in log-likelihood dropped below
// the threshold.
type NotConvergedError struct {
	Iterations int
	Delta      float64
	Threshold  float64
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("hmmlib: EM did not converge after %d iterations (|delta|=%g, threshold %g)",
		e.Iterations, e.Delta, e.Threshold)
}

// Is makes errors.Is(err, ErrNotConverged) succeed.
func (e *NotConvergedError) Is(target error) bool {
	return target == ErrNotConverged
}

// configErrorf returns an error wrapping ErrConfiguration.
func configErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}
