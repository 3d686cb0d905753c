// Package dispatch maps each routed intent to exactly one execution backend
// and normalizes every result, including failures, into an Outcome. Nothing
// raises past this boundary.
package dispatch

import (
	"errors"
	"time"
)

// ErrTimeout classifies outcomes whose backend exceeded its bound. Partial
// output may still be present alongside it.
var ErrTimeout = errors.New("execution timed out")

// Outcome is the normalized result of one backend call.
type Outcome struct {
	Success  bool
	Response string
	Err      error
	Duration time.Duration
}

// failed builds a failure outcome retaining any partial response.
func failed(response string, err error, duration time.Duration) Outcome {
	return Outcome{Response: response, Err: err, Duration: duration}
}

// succeeded builds a success outcome.
func succeeded(response string, duration time.Duration) Outcome {
	return Outcome{Success: true, Response: response, Duration: duration}
}
