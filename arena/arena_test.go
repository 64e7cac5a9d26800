package arena

import "testing"

func TestNonOverlappingLifetimesReuseBytes(t *testing.T) {
	p := NewPlanner(1)
	a, err := p.Allocate(100, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Allocate(100, 3, 5)
	if err != nil {
		t.Fatal(err)
	}
	layout, err := p.Plan()
	if err != nil {
		t.Fatal(err)
	}
	if layout.ScratchBytes != 100 {
		t.Errorf("ScratchBytes = %d, want 100 (non-overlapping lifetimes should share bytes)", layout.ScratchBytes)
	}
	if layout.Offsets[a] != layout.Offsets[b] {
		t.Errorf("expected a and b to share an offset, got %d and %d", layout.Offsets[a], layout.Offsets[b])
	}
}

func TestOverlappingLifetimesDoNotShareBytes(t *testing.T) {
	p := NewPlanner(1)
	a, err := p.Allocate(100, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Allocate(100, 2, 6)
	if err != nil {
		t.Fatal(err)
	}
	layout, err := p.Plan()
	if err != nil {
		t.Fatal(err)
	}
	if layout.ScratchBytes < 200 {
		t.Errorf("ScratchBytes = %d, want >= 200 (overlapping lifetimes must not share bytes)", layout.ScratchBytes)
	}
	offA, offB := layout.Offsets[a], layout.Offsets[b]
	if !(offA+100 <= offB || offB+100 <= offA) {
		t.Errorf("a [%d,%d) and b [%d,%d) overlap", offA, offA+100, offB, offB+100)
	}
}

func TestAlignmentRoundsUp(t *testing.T) {
	p := NewPlanner(16)
	a, _ := p.Allocate(1, 0, 1)
	b, _ := p.Allocate(1, 1, 1)
	layout, err := p.Plan()
	if err != nil {
		t.Fatal(err)
	}
	if layout.Offsets[b] != 16 {
		t.Errorf("Offsets[b] = %d, want 16 (size 1 rounded up to alignment 16)", layout.Offsets[b])
	}
	_ = a
}

func TestColocationPlacesSecondImmediatelyAfterFirst(t *testing.T) {
	p := NewPlanner(1)
	a, err := p.Allocate(64, 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Allocate(64, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ColocateWith(b, a); err != nil {
		t.Fatal(err)
	}
	layout, err := p.Plan()
	if err != nil {
		t.Fatal(err)
	}
	if layout.Offsets[b] != layout.Offsets[a]+64 {
		t.Errorf("Offsets[b] = %d, want %d (immediately after a)", layout.Offsets[b], layout.Offsets[a]+64)
	}
}

func TestColocationMismatchedAlignment(t *testing.T) {
	p := NewPlanner(1)
	a, _ := p.Allocate(64, 0, 3)
	r := p.byID[a]
	r.alignment = 8

	b, _ := p.Allocate(64, 1, 3)
	if err := p.ColocateWith(b, a); err != nil {
		t.Fatal(err)
	}
	_, err := p.Plan()
	if err == nil {
		t.Fatal("expected an error for mismatched alignment in colocation")
	}
}

func TestZeroByteSizeRejected(t *testing.T) {
	p := NewPlanner(1)
	if _, err := p.Allocate(0, 0, 1); err == nil {
		t.Error("expected ErrZeroByteSize")
	}
}

func TestInvalidLifetimeRejected(t *testing.T) {
	p := NewPlanner(1)
	if _, err := p.Allocate(10, 5, 2); err == nil {
		t.Error("expected ErrInvalidLifetime")
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	build := func() Layout {
		p := NewPlanner(4)
		for i := 0; i < 20; i++ {
			birth := i % 5
			death := birth + 2
			if _, err := p.Allocate(32+i, birth, death); err != nil {
				t.Fatal(err)
			}
		}
		layout, err := p.Plan()
		if err != nil {
			t.Fatal(err)
		}
		return layout
	}
	l1 := build()
	l2 := build()
	if l1.ScratchBytes != l2.ScratchBytes {
		t.Fatalf("non-deterministic ScratchBytes: %d vs %d", l1.ScratchBytes, l2.ScratchBytes)
	}
}

func TestThreeOverlappingBuffersPackIntoTwoSlots(t *testing.T) {
	// a and c never overlap (a dies at 1, c born at 2), b overlaps both.
	p := NewPlanner(1)
	a, _ := p.Allocate(50, 0, 1)
	b, _ := p.Allocate(50, 0, 3)
	c, _ := p.Allocate(50, 2, 3)
	layout, err := p.Plan()
	if err != nil {
		t.Fatal(err)
	}
	if layout.ScratchBytes != 100 {
		t.Errorf("ScratchBytes = %d, want 100", layout.ScratchBytes)
	}
	if layout.Offsets[a] != layout.Offsets[c] {
		t.Errorf("a and c should reuse the same slot, got %d and %d", layout.Offsets[a], layout.Offsets[c])
	}
	if layout.Offsets[b] == layout.Offsets[a] {
		t.Errorf("b overlaps a and must not share its offset")
	}
}
