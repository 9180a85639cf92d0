// Package order defines the timestamp and path-summary algebra that the
// rest of this module is generic over (spec §3, §4.1).
//
// A Timestamp is any type with a LessEqual partial order; a Summary is a
// partial function over a Timestamp type that also carries its own partial
// order plus composition (FollowedBy). Both constraints are expressed using
// Go's "curiously recurring" generic pattern (the type parameter is the
// concrete type implementing the interface), since Go has no notion of a
// static "Self" type.
package order

// Timestamp is a partially ordered set with a LessEqual relation. T is the
// concrete timestamp type implementing it.
type Timestamp[T any] interface {
	// LessEqual reports whether the receiver is less than or equal to
	// other, under the type's partial order.
	LessEqual(other T) bool
}

// Equal reports whether a and b are the same point in the partial order
// (a <= b && b <= a). Defined once here rather than duplicated as a method
// requirement on every Timestamp implementation.
func Equal[T Timestamp[T]](a, b T) bool {
	return a.LessEqual(b) && b.LessEqual(a)
}

// Summary is a path summary: a partial function T -> T describing the
// minimum advancement a timestamp undergoes along some path, plus its own
// partial order and composition. S is the concrete summary type.
type Summary[S any, T any] interface {
	// ResultsIn applies the summary to t, returning the advanced timestamp,
	// or ok=false if the timestamp cannot pass (e.g. a bounded loop
	// exceeded).
	ResultsIn(t T) (result T, ok bool)

	// FollowedBy composes the receiver with other, in that order, returning
	// the combined summary, or ok=false if the composition is not defined.
	FollowedBy(other S) (combined S, ok bool)

	// LessEqual reports whether the receiver requires no more advancement
	// than other, for every timestamp (s1 <= s2 iff s1(t) <= s2(t) for all
	// t). The minimal/identity summary is <= every other summary of its
	// type.
	LessEqual(other S) bool

	// Advances reports whether the summary is guaranteed to strictly
	// advance every timestamp it is applied to (ResultsIn(t) != t, and in
	// fact ResultsIn(t) properly dominates t). Used by the reachability
	// engine's cycle check (spec §3 invariant c).
	Advances() bool
}
