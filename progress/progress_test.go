package progress

import "testing"

type intTS int

func (a intTS) LessEqual(b intTS) bool { return a <= b }

func TestAntichainInsertIdempotentAndMinimal(t *testing.T) {
	a := NewAntichain[intTS]()
	if !a.Insert(5) {
		t.Fatal(`first insert should change the antichain`)
	}
	if a.Insert(7) {
		t.Fatal(`inserting a dominated (larger) element must be a no-op`)
	}
	if len(a.Elements()) != 1 || a.Elements()[0] != 5 {
		t.Fatalf(`expected [5], got %v`, a.Elements())
	}
	if !a.Insert(3) {
		t.Fatal(`inserting a dominating (smaller) element must change the antichain`)
	}
	if len(a.Elements()) != 1 || a.Elements()[0] != 3 {
		t.Fatalf(`expected [3] after a smaller element displaces 5, got %v`, a.Elements())
	}
}

func TestAntichainEqualElementNotDuplicated(t *testing.T) {
	a := NewAntichain[intTS]()
	a.Insert(2)
	a.Insert(2) // idempotent re-insert of the same element
	if len(a.Elements()) != 1 {
		t.Fatalf(`re-inserting an equal element must not duplicate it, got %v`, a.Elements())
	}
}

func TestAntichainDominatesAndLessEqual(t *testing.T) {
	a := NewAntichain[intTS](3, 9)
	if len(a.Elements()) != 1 {
		t.Fatalf(`9 is dominated by 3, expected a single element, got %v`, a.Elements())
	}
	if !a.Dominates(10) {
		t.Fatal(`expected 3 <= 10 to dominate`)
	}
	if a.Dominates(1) {
		t.Fatal(`did not expect 3 <= 1`)
	}

	behind := NewAntichain[intTS](5)
	ahead := NewAntichain[intTS](3)
	if !ahead.LessEqual(behind) {
		t.Fatal(`expected {3} <= {5}`)
	}
	if behind.LessEqual(ahead) {
		t.Fatal(`did not expect {5} <= {3}`)
	}
}

func TestAntichainEmpty(t *testing.T) {
	a := NewAntichain[intTS]()
	if !a.IsEmpty() {
		t.Fatal(`expected a fresh antichain to be empty`)
	}
	a.Insert(1)
	if a.IsEmpty() {
		t.Fatal(`expected non-empty after insert`)
	}
}

func TestChangeBatchUpdateCompacts(t *testing.T) {
	cb := NewChangeBatch[int]()
	cb.Update(1, 3)
	cb.Update(1, -3)
	if !cb.IsEmpty() {
		t.Fatal(`expected zero-delta to be compacted away`)
	}
	cb.Update(2, 1)
	cb.Update(2, 1)
	if cb.Get(2) != 2 {
		t.Fatalf(`expected accumulation to 2, got %d`, cb.Get(2))
	}
}

func TestChangeBatchDrainInto(t *testing.T) {
	a := NewChangeBatch[int]()
	a.Update(1, 5)
	a.Update(2, -2)
	b := NewChangeBatch[int]()
	b.Update(1, 1)

	a.DrainInto(b)
	if !a.IsEmpty() {
		t.Fatal(`expected the drained batch to be empty`)
	}
	if b.Get(1) != 6 || b.Get(2) != -2 {
		t.Fatalf(`unexpected merged state: 1=%d 2=%d`, b.Get(1), b.Get(2))
	}
}

func TestChangeBatchAdditivity(t *testing.T) {
	// spec §8 property 3: update(a.then(b)) == update(a) followed by update(b).
	merged := NewChangeBatch[int]()
	merged.Update(1, 2)
	then := NewChangeBatch[int]()
	then.Update(1, 3)
	then.DrainInto(merged)

	sequential := NewChangeBatch[int]()
	sequential.Update(1, 2)
	sequential.Update(1, 3)

	if merged.Get(1) != sequential.Get(1) {
		t.Fatalf(`expected equal accumulation, got %d vs %d`, merged.Get(1), sequential.Get(1))
	}
}
