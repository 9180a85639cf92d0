// Package timelyerr defines the fatal error kinds surfaced by the progress
// protocol (spec §7). Every kind is a concrete pointer type implementing
// error, in the same shape as the corpus's eventloop typed errors
// (TypeError, RangeError, TimeoutError). ConfigurationError,
// CapabilityMisuseError and TransportFailureError carry a Cause field
// returned by Unwrap; PanicError's Unwrap returns its recovered Value when
// that value is an error; NonAdvancingCycleError wraps nothing and has no
// Unwrap method.
package timelyerr

import "fmt"

// ConfigurationError reports a malformed CLI/hostfile configuration. No
// dataflow is built when this is returned.
type ConfigurationError struct {
	Option  string
	Cause   error
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("timely: configuration error (%s): %s", e.Option, e.Message)
	}
	return fmt.Sprintf("timely: configuration error (%s)", e.Option)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// Location is the minimal shape needed to describe a cycle without
// introducing an import cycle with package progress; reachability and
// worker both convert their own Location type to/from this one.
type Location struct {
	Operator int
	Port     int
	Output   bool
}

// NonAdvancingCycleError reports a dataflow cycle for which the compiled
// reachability found no strictly-advancing summary (spec §4.3 invariant c,
// §8 E4).
type NonAdvancingCycleError struct {
	Dataflow int
	Cycle    []Location
}

func (e *NonAdvancingCycleError) Error() string {
	return fmt.Sprintf("timely: dataflow %d has a non-advancing cycle through %v", e.Dataflow, e.Cycle)
}

// CapabilityMisuseError reports a downgrade to an incomparable timestamp, or
// a send at a timestamp not dominated by any held capability (spec §4.5).
// The invocation that produced it is aborted and its hosting dataflow torn
// down.
type CapabilityMisuseError struct {
	Location  Location
	Attempted string
	Cause     error
}

func (e *CapabilityMisuseError) Error() string {
	return fmt.Sprintf("timely: capability misuse at %v: %s", e.Location, e.Attempted)
}

func (e *CapabilityMisuseError) Unwrap() error { return e.Cause }

// TransportFailureError reports an unrecoverable connection loss. The
// worker unwinds all dataflows and the process should exit non-zero.
type TransportFailureError struct {
	Channel uint64
	Cause   error
}

func (e *TransportFailureError) Error() string {
	return fmt.Sprintf("timely: transport failure on channel %d: %v", e.Channel, e.Cause)
}

func (e *TransportFailureError) Unwrap() error { return e.Cause }

// PanicError wraps a value recovered from an operator invocation panic. It
// mirrors the corpus's eventloop.PanicError shape so that Unwrap works when
// the recovered value is itself an error.
type PanicError struct {
	Location Location
	Value    any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("timely: operator at %v panicked: %v", e.Location, e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsFatal reports whether err is one of the dataflow-fatal kinds this
// package defines. The worker uses this to decide whether to tear down only
// the offending dataflow (true) or propagate further (false, e.g. a plain
// bug surfaced some other way).
func IsFatal(err error) bool {
	switch err.(type) {
	case *ConfigurationError, *NonAdvancingCycleError, *CapabilityMisuseError, *TransportFailureError, *PanicError:
		return true
	default:
		return false
	}
}
