package order

// Product pairs an Outer timestamp with an Inner Nat loop coordinate into a
// single pointwise-ordered timestamp — the "pair-product of timestamps"
// instantiation named in spec §3. It is the internal timestamp of a nested
// Subgraph (spec §4.6): Outer is whatever timestamp type the enclosing
// scope uses, and Inner is the loop-iteration counter local to the
// subgraph. The Inner coordinate is fixed to Nat (rather than itself
// generic) because Go methods cannot introduce additional type parameters
// beyond those declared on the receiver's type.
type Product[Outer Timestamp[Outer]] struct {
	Outer Outer
	Inner Nat
}

func (p Product[Outer]) LessEqual(other Product[Outer]) bool {
	return p.Outer.LessEqual(other.Outer) && p.Inner.LessEqual(other.Inner)
}

// ProductSummary composes an outer summary with a NatSummary over the inner
// loop coordinate, component-wise.
type ProductSummary[OuterS Summary[OuterS, Outer], Outer Timestamp[Outer]] struct {
	Outer OuterS
	Inner NatSummary
}

func (s ProductSummary[OuterS, Outer]) ResultsIn(t Product[Outer]) (Product[Outer], bool) {
	outer, ok := s.Outer.ResultsIn(t.Outer)
	if !ok {
		return Product[Outer]{}, false
	}
	inner, ok := s.Inner.ResultsIn(t.Inner)
	if !ok {
		return Product[Outer]{}, false
	}
	return Product[Outer]{Outer: outer, Inner: inner}, true
}

func (s ProductSummary[OuterS, Outer]) FollowedBy(other ProductSummary[OuterS, Outer]) (ProductSummary[OuterS, Outer], bool) {
	outer, ok := s.Outer.FollowedBy(other.Outer)
	if !ok {
		return ProductSummary[OuterS, Outer]{}, false
	}
	inner, ok := s.Inner.FollowedBy(other.Inner)
	if !ok {
		return ProductSummary[OuterS, Outer]{}, false
	}
	return ProductSummary[OuterS, Outer]{Outer: outer, Inner: inner}, true
}

func (s ProductSummary[OuterS, Outer]) LessEqual(other ProductSummary[OuterS, Outer]) bool {
	return s.Outer.LessEqual(other.Outer) && s.Inner.LessEqual(other.Inner)
}

// Advances holds if either coordinate is guaranteed to strictly advance,
// which suffices for the reachability engine's cycle check: a loop that
// strictly advances its inner coordinate terminates even if the outer
// coordinate never moves (spec §4.10).
func (s ProductSummary[OuterS, Outer]) Advances() bool {
	return s.Outer.Advances() || s.Inner.Advances()
}

// ToInner embeds an Outer timestamp into a Product at the start of its
// owning subgraph's loop (Inner = MinNat), matching spec §3's
// to_inner(o) refinement requirement.
func ToInner[Outer Timestamp[Outer]](o Outer) Product[Outer] {
	return Product[Outer]{Outer: o, Inner: MinNat}
}

// Summarize projects a Product back onto its Outer coordinate, matching
// spec §3's summarize(i) requirement (the outer timestamp an inner one
// implies once it leaves the subgraph).
func Summarize[Outer Timestamp[Outer]](p Product[Outer]) Outer {
	return p.Outer
}

var (
	_ Timestamp[Product[Nat]]                  = Product[Nat]{}
	_ Summary[ProductSummary[NatSummary, Nat], Product[Nat]] = ProductSummary[NatSummary, Nat]{}
)
