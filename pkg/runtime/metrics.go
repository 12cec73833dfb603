package runtime

import "time"

// Metrics receives timing and volume information from an Evaluation.
// Implementations must be cheap; they are called inside the fixpoint loop.
type Metrics interface {
	// BlockExecuted is called after every block execution.
	BlockExecuted(block string, d time.Duration)
	// BlockCheck is called after the blocks affected by a commit have been
	// selected.
	BlockCheck(d time.Duration)
	// Committed is called after every round commit.
	Committed(added, removed int)
	// FixpointCompleted is called once per fixpoint. converged is false when
	// the round cap stopped the loop.
	FixpointCompleted(rounds int, d time.Duration, converged bool)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) BlockExecuted(string, time.Duration)        {}
func (NoopMetrics) BlockCheck(time.Duration)                   {}
func (NoopMetrics) Committed(int, int)                         {}
func (NoopMetrics) FixpointCompleted(int, time.Duration, bool) {}
