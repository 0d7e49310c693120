// Package errors provides standardized error handling patterns for the flowgraph
// runtime. It classifies errors into three retry-relevant buckets (Transient,
// Invalid, Fatal) and layers the runtime's own error taxonomy on top: ConfigError,
// TypeMismatch, TimestampRegression/Monotonicity, QueueFull, Unavailable,
// FailedPrecondition, Cancelled, and CalculatorError.
//
// # Wrapping
//
// All wrapping follows "component.method: action failed: %w":
//
//	errors.WrapInvalid(err, "Scheduler", "dispatch", "node lookup")
//
// # Classification
//
//	if errors.IsTransient(err) {
//	    // safe to retry with backoff
//	}
//
// Classification survives wrapping and composes with errors.Is/As.
package errors
