// Package progress holds the universal, timestamp-generic currency of the
// protocol: locations, edges, pointstamps, antichains, and change batches
// (spec §3, §4.2).
package progress

import "fmt"

// PortKind tags a Location as naming an operator's input (Target) or output
// (Source) port.
type PortKind uint8

const (
	// Target identifies an input port.
	Target PortKind = iota
	// Source identifies an output port.
	Source
)

func (k PortKind) String() string {
	if k == Source {
		return "source"
	}
	return "target"
}

// Location identifies a single port of a single operator within one
// dataflow. Operator indices are assigned densely from zero at graph
// construction (spec §3).
type Location struct {
	Operator int
	Port     int
	Kind     PortKind
}

func (l Location) String() string {
	return fmt.Sprintf("%s(op=%d,port=%d)", l.Kind, l.Operator, l.Port)
}

// Edge connects an output port to an input port. An output port may fan out
// to many targets; each input port has exactly one source (spec §3).
type Edge struct {
	From Location // Kind == Source
	To   Location // Kind == Target
}

// Pointstamp is a (Location, Timestamp) pair, the universe over which
// progress counts live (spec §3).
type Pointstamp[T any] struct {
	Location  Location
	Timestamp T
}
