package bitset

import "testing"

func TestSetClearTest(t *testing.T) {
	s := New(130) // spans three words
	for _, i := range []int{0, 1, 63, 64, 65, 129} {
		if s.Test(i) {
			t.Fatalf("bit %d set before Set", i)
		}
		s.Set(i)
		if !s.Test(i) {
			t.Fatalf("bit %d not set after Set", i)
		}
	}
	if got, want := s.Count(), 6; got != want {
		t.Fatalf("Count() = %d, want %d", got, want)
	}
	s.Clear(64)
	if s.Test(64) {
		t.Fatal("bit 64 still set after Clear")
	}
	if got, want := s.Count(), 5; got != want {
		t.Fatalf("Count() after Clear = %d, want %d", got, want)
	}
}

func TestIsSupersetOf(t *testing.T) {
	ready := New(10)
	guard := New(10)

	ready.Set(1)
	ready.Set(3)
	guard.Set(1)

	if !ready.IsSupersetOf(guard) {
		t.Fatal("ready should be superset of guard")
	}

	guard.Set(5) // ready doesn't have bit 5
	if ready.IsSupersetOf(guard) {
		t.Fatal("ready should not be superset of guard anymore")
	}
}

func TestOrAndAndNot(t *testing.T) {
	a := New(64)
	b := New(64)
	a.Set(1)
	a.Set(2)
	b.Set(2)
	b.Set(3)

	and := a.Clone()
	and.And(b)
	if got, want := and.Slice(), []int{2}; !equalInts(got, want) {
		t.Fatalf("And = %v, want %v", got, want)
	}

	or := a.Clone()
	or.Or(b)
	if got, want := or.Slice(), []int{1, 2, 3}; !equalInts(got, want) {
		t.Fatalf("Or = %v, want %v", got, want)
	}

	andNot := a.Clone()
	andNot.AndNot(b)
	if got, want := andNot.Slice(), []int{1}; !equalInts(got, want) {
		t.Fatalf("AndNot = %v, want %v", got, want)
	}
}

func TestRangeStopsEarly(t *testing.T) {
	s := New(10)
	s.Set(1)
	s.Set(2)
	s.Set(3)
	var seen []int
	s.Range(func(i int) bool {
		seen = append(seen, i)
		return i != 2
	})
	if got, want := seen, []int{1, 2}; !equalInts(got, want) {
		t.Fatalf("Range = %v, want %v", got, want)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
