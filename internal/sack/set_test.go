package sack

import "testing"

func TestPackageSetBasics(t *testing.T) {
	pool := newPool()
	s := newPackageSet(pool)

	s.Add(3)
	s.Add(70)
	if !s.Contains(3) || !s.Contains(70) {
		t.Fatal("expected members present")
	}
	if s.Contains(4) {
		t.Fatal("unexpected member")
	}
	if s.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s.Size())
	}

	s.Remove(3)
	if s.Contains(3) {
		t.Fatal("Remove did not remove")
	}
	if s.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", s.Size())
	}
}

func TestPackageSetAlgebra(t *testing.T) {
	pool := newPool()
	a := newPackageSet(pool)
	b := newPackageSet(pool)
	for _, id := range []PackageID{1, 2, 3, 100} {
		a.Add(id)
	}
	for _, id := range []PackageID{2, 3, 4} {
		b.Add(id)
	}

	union := a.Union(b)
	for _, id := range []PackageID{1, 2, 3, 4, 100} {
		if !union.Contains(id) {
			t.Errorf("union missing %d", id)
		}
	}

	inter := a.Intersection(b)
	if inter.Size() != 2 || !inter.Contains(2) || !inter.Contains(3) {
		t.Fatalf("unexpected intersection: %v", inter.Slice())
	}

	diff := a.Difference(b)
	if diff.Size() != 2 || !diff.Contains(1) || !diff.Contains(100) {
		t.Fatalf("unexpected difference: %v", diff.Slice())
	}

	sym := a.SymmetricDifference(b)
	want := map[PackageID]bool{1: true, 100: true, 4: true}
	if sym.Size() != len(want) {
		t.Fatalf("unexpected symmetric difference: %v", sym.Slice())
	}
	for id := range want {
		if !sym.Contains(id) {
			t.Errorf("symmetric difference missing %d", id)
		}
	}
}

func TestPackageSetSubsetSuperset(t *testing.T) {
	pool := newPool()
	small := newPackageSet(pool)
	big := newPackageSet(pool)
	small.Add(5)
	big.Add(5)
	big.Add(6)

	if !small.IsSubsetOf(big) {
		t.Fatal("expected small to be a subset of big")
	}
	if !big.IsSupersetOf(small) {
		t.Fatal("expected big to be a superset of small")
	}
	if big.IsSubsetOf(small) {
		t.Fatal("big should not be a subset of small")
	}
}

func TestPackageSetClonesIndependently(t *testing.T) {
	pool := newPool()
	a := newPackageSet(pool)
	a.Add(9)
	clone := a.Clone()
	clone.Add(10)

	if a.Contains(10) {
		t.Fatal("mutating clone affected original")
	}
	if !clone.Contains(9) || !clone.Contains(10) {
		t.Fatal("clone missing expected members")
	}
}

func TestPackageSetAcrossPoolsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic combining sets from different pools")
		}
	}()
	a := newPackageSet(newPool())
	b := newPackageSet(newPool())
	a.Union(b)
}

func TestPackageSetEachAscending(t *testing.T) {
	pool := newPool()
	s := newPackageSet(pool)
	ids := []PackageID{200, 1, 64, 63, 65}
	for _, id := range ids {
		s.Add(id)
	}
	var seen []PackageID
	s.Each(func(id PackageID) { seen = append(seen, id) })
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("Each did not yield ascending order: %v", seen)
		}
	}
}
