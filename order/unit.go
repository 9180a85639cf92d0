package order

// Unit is the trivial timestamp: a single point, used at the root of a
// dataflow that has no top-level timestamp coordinate of its own (spec §3:
// "a unit type are all valid instantiations").
type Unit struct{}

func (Unit) LessEqual(Unit) bool { return true }

// UnitSummary is the only summary over Unit: the identity. Composing it
// with itself always yields itself, and it never advances — which is
// correct, since a cycle at the root scope would need a non-trivial
// timestamp coordinate to be well-formed.
type UnitSummary struct{}

func (UnitSummary) ResultsIn(Unit) (Unit, bool)            { return Unit{}, true }
func (UnitSummary) FollowedBy(UnitSummary) (UnitSummary, bool) { return UnitSummary{}, true }
func (UnitSummary) LessEqual(UnitSummary) bool             { return true }
func (UnitSummary) Advances() bool                         { return false }

var (
	_ Timestamp[Unit]             = Unit{}
	_ Summary[UnitSummary, Unit]  = UnitSummary{}
)
