// Package arena implements the scratch-memory planner described in spec §4:
// given a sequence of allocations with known birth/death lifetimes, pack
// them greedily into one contiguous byte region that never lets two
// overlapping lifetimes share bytes, with one added wrinkle (concat
// colocation, see ColocateWith) for buffers that must sit directly adjacent
// to each other.
//
// Allocations are placed in birth order, each into the lowest free byte
// extent wide enough to hold it among buffers whose lifetime overlaps,
// computed once up front rather than reallocated per call.
package arena

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// ErrZeroByteSize is returned when an allocation of size 0 is requested.
var ErrZeroByteSize = errors.New("arena: allocation byte size must be positive")

// ErrInvalidLifetime is returned when death precedes birth.
var ErrInvalidLifetime = errors.New("arena: death index must be >= birth index")

// AllocationID identifies a single planned allocation.
type AllocationID uuid.UUID

func newAllocationID() AllocationID {
	return AllocationID(uuid.New())
}

func (id AllocationID) String() string {
	return uuid.UUID(id).String()
}

// request is a pending allocation before planning runs.
type request struct {
	id        AllocationID
	byteSize  int
	birth     int
	death     int
	alignment int
	colocate  *AllocationID // non-nil if this request must sit immediately after another
}

// Planner collects allocation requests keyed by an op index (birth/death are
// both expressed in that index space, i.e. "the op number at which this
// buffer starts/stops being read") and produces a single packed layout.
type Planner struct {
	defaultAlignment int
	requests         []*request
	byID             map[AllocationID]*request
}

// NewPlanner creates a Planner. alignment is applied to every allocation's
// byte size before packing, rounding it up to the next multiple; pass 1 for
// no alignment.
func NewPlanner(alignment int) *Planner {
	if alignment < 1 {
		alignment = 1
	}
	return &Planner{
		defaultAlignment: alignment,
		byID:             make(map[AllocationID]*request),
	}
}

// Allocate registers a transient buffer that is live across op indices
// [birth, death] inclusive, and returns the id the planner will use to
// report its offset after Plan.
func (p *Planner) Allocate(byteSize, birth, death int) (AllocationID, error) {
	if byteSize <= 0 {
		return AllocationID{}, ErrZeroByteSize
	}
	if death < birth {
		return AllocationID{}, ErrInvalidLifetime
	}
	r := &request{
		id:        newAllocationID(),
		byteSize:  byteSize,
		birth:     birth,
		death:     death,
		alignment: p.defaultAlignment,
	}
	p.requests = append(p.requests, r)
	p.byID[r.id] = r
	return r.id, nil
}

// ColocateWith constrains id's placement to sit at exactly
// offset(after) + byteSize(after) (i.e. directly following "after" in the
// arena, with no gap) so a consumer that expects the two buffers as one
// contiguous logical extent (a ConcatConv's two sources, per spec §4.1) can
// read them without a copy. Both allocations must already be registered.
// Plan returns ErrColocationMismatch when the two allocations have
// different alignments. The planner does not know element types: the
// same-element-size rule from SPEC_FULL.md is applied by the graph, which
// only calls ColocateWith for concat sources of equal element byte size.
func (p *Planner) ColocateWith(id, after AllocationID) error {
	r, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("arena: unknown allocation %s", id)
	}
	if _, ok := p.byID[after]; !ok {
		return fmt.Errorf("arena: unknown allocation %s", after)
	}
	a := after
	r.colocate = &a
	return nil
}

// ErrColocationMismatch is returned by Plan when a colocation constraint
// cannot be honored.
var ErrColocationMismatch = errors.New("arena: colocation constraint cannot be satisfied")

// Layout is the result of planning: a byte offset per allocation and the
// total scratch byte size needed to hold all of them.
type Layout struct {
	Offsets      map[AllocationID]int
	ScratchBytes int
}

// extent is a free or occupied byte range during packing.
type extent struct {
	begin, end int // [begin, end)
}

// planItem is one unit the packer places: either a single allocation, or (for
// a colocated pair) the two allocations merged into one reserved span so the
// free-space packer never hands an unrelated buffer the bytes a colocated
// pair will occupy.
type planItem struct {
	birth, death int
	size         int // already rounded
	place        func(off int)
}

// Plan computes a deterministic packed layout. It processes allocations in
// birth order (ties broken by registration order, which is stable because
// requests is append-only), placing each into the lowest free byte extent
// wide enough to hold it among buffers whose lifetime overlaps, a
// "first empty extent wins" policy. On death, a buffer's bytes return to
// the free pool and are coalesced with adjacent free extents.
//
// A colocated pair (see ColocateWith) is merged into a single planItem
// spanning both allocations' combined lifetime before packing, rather than
// given an offset after the fact: planning the base alone and bolting the
// colocated allocation on afterward would let an unrelated, later-processed
// buffer claim the exact bytes the colocated allocation needs.
func (p *Planner) Plan() (Layout, error) {
	colocatedBy := make(map[AllocationID]*request) // base id -> colocated request
	isColocated := make(map[AllocationID]bool)
	for _, r := range p.requests {
		if r.colocate != nil {
			colocatedBy[*r.colocate] = r
			isColocated[r.id] = true
		}
	}

	offsets := make(map[AllocationID]int, len(p.requests))
	items := make([]planItem, 0, len(p.requests))
	for _, r := range p.requests {
		if isColocated[r.id] {
			continue // folded into its base's planItem below
		}
		r := r
		if coloc, ok := colocatedBy[r.id]; ok {
			if coloc.alignment != r.alignment {
				return Layout{}, fmt.Errorf("%w: %s and %s have different alignments", ErrColocationMismatch, coloc.id, r.id)
			}
			baseSize := roundUp(r.byteSize, r.alignment)
			colocSize := roundUp(coloc.byteSize, coloc.alignment)
			birth, death := r.birth, r.death
			if coloc.birth < birth {
				birth = coloc.birth
			}
			if coloc.death > death {
				death = coloc.death
			}
			items = append(items, planItem{
				birth: birth,
				death: death,
				size:  baseSize + colocSize,
				place: func(off int) {
					offsets[r.id] = off
					offsets[coloc.id] = off + baseSize
				},
			})
			continue
		}
		size := roundUp(r.byteSize, r.alignment)
		items = append(items, planItem{
			birth: r.birth,
			death: r.death,
			size:  size,
			place: func(off int) { offsets[r.id] = off },
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].birth < items[j].birth
	})

	var free []extent
	var scratchBytes int
	var active []planItem // currently live, for coalescing on death boundaries
	var activeOff []int

	release := func(uptoIndex int) {
		remainingItems := active[:0]
		remainingOff := activeOff[:0]
		for i, a := range active {
			if a.death < uptoIndex {
				off := activeOff[i]
				free = append(free, extent{off, off + a.size})
			} else {
				remainingItems = append(remainingItems, a)
				remainingOff = append(remainingOff, activeOff[i])
			}
		}
		active = remainingItems
		activeOff = remainingOff
		sort.Slice(free, func(i, j int) bool { return free[i].begin < free[j].begin })
		free = coalesce(free)
	}

	for _, it := range items {
		release(it.birth)

		off, ok := takeFromFree(free, it.size)
		if ok {
			free = removeFromFree(free, off, it.size)
			slog.Debug("arena: reused free extent", "offset", off, "size", it.size, "birth", it.birth, "death", it.death)
		} else {
			off = scratchBytes
			scratchBytes += it.size
			slog.Debug("arena: growing scratch region", "offset", off, "size", it.size, "newTotal", scratchBytes)
		}
		it.place(off)
		active = append(active, it)
		activeOff = append(activeOff, off)
	}

	return Layout{Offsets: offsets, ScratchBytes: scratchBytes}, nil
}

func takeFromFree(free []extent, size int) (int, bool) {
	for _, e := range free {
		if e.end-e.begin >= size {
			return e.begin, true
		}
	}
	return 0, false
}

func removeFromFree(free []extent, begin, size int) []extent {
	out := make([]extent, 0, len(free)+1)
	for _, e := range free {
		if e.begin == begin {
			if remBegin, remEnd := begin+size, e.end; remEnd > remBegin {
				out = append(out, extent{remBegin, remEnd})
			}
			continue
		}
		out = append(out, e)
	}
	return out
}

func coalesce(free []extent) []extent {
	if len(free) == 0 {
		return free
	}
	out := free[:1]
	for _, e := range free[1:] {
		last := &out[len(out)-1]
		if e.begin == last.end {
			last.end = e.end
			continue
		}
		out = append(out, e)
	}
	return out
}

func roundUp(length, pad int) int {
	if pad <= 1 {
		return length
	}
	return (length + pad - 1) / pad * pad
}
