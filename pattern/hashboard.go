// Package pattern maintains the per-cell local pattern hash of a Hex board.
//
// Every padded cell carries a 12-bit code: one base-4 digit per neighbour
// direction holding that neighbour's colour. Placing a stone touches exactly
// the six neighbouring codes. Shifting a code left by two and or-ing in the
// colour about to move yields a Key into a gamma table.
package pattern

import (
	"fmt"
	"strings"

	"github.com/brensch/hexgamma/board"
)

const (
	KeyBits = 14
	NumKeys = 1 << KeyBits
)

// Key indexes a gamma table: (hash << 2) | colour.
type Key uint32

// Color returns the low two bits of the key.
func (k Key) Color() board.Color { return board.Color(k & 3) }

// Hash returns the neighbour pattern part of the key.
func (k Key) Hash() uint32 { return uint32(k) >> 2 }

// HashBoard is not safe for concurrent mutation. Playouts running in
// parallel each need their own copy (see Clone).
type HashBoard struct {
	geo    *board.Geometry
	hashes []uint32
	played []bool
	colors []board.Color
}

// NewHashBoard returns an empty board. Guard cells hold the Guard sentinel and
// are permanently played; interior cells start from the guard contribution
// of their border neighbours.
func NewHashBoard(geo *board.Geometry) *HashBoard {
	n := geo.Cells()
	h := &HashBoard{
		geo:    geo,
		hashes: make([]uint32, n),
		played: make([]bool, n),
		colors: make([]board.Color, n),
	}
	for p := 0; p < n; p++ {
		if geo.IsGuard(p) {
			h.hashes[p] = uint32(board.Guard)
			h.played[p] = true
			h.colors[p] = board.Guard
		}
	}
	for _, p := range geo.Interior() {
		h.hashes[p] = h.recompute(p)
	}
	return h
}

// recompute derives a cell's code from its neighbours' colours.
func (h *HashBoard) recompute(p int) uint32 {
	var sum uint32
	for d := board.Direction(0); d < board.NumDirections; d++ {
		sum += uint32(h.colors[h.geo.Neighbor(p, d)]) * board.Multipliers[d]
	}
	return sum
}

// Change places colour c on interior cell p. It only adds: p must not have
// been played before, and stones are never removed.
func (h *HashBoard) Change(p int, c board.Color) {
	for d := board.Direction(0); d < board.NumDirections; d++ {
		n := h.geo.Neighbor(p, d)
		if h.colors[n] == board.Guard {
			continue
		}
		// p sits in the opposite direction as seen from n.
		h.hashes[n] += uint32(c) * board.Multipliers[d.Opposite()]
	}
	h.played[p] = true
	h.colors[p] = c
}

// Hash returns the gamma-table key for colour c moving to p.
func (h *HashBoard) Hash(c board.Color, p int) Key {
	return Key(h.hashes[p]<<2 | uint32(c))
}

// AllHashes exposes the full padded grid, guards included. Callers must not
// modify it.
func (h *HashBoard) AllHashes() []uint32 { return h.hashes }

// PlayedFlags parallels AllHashes; guards are always true.
func (h *HashBoard) PlayedFlags() []bool { return h.played }

// Size is the padded cell count, (N+2)².
func (h *HashBoard) Size() int { return len(h.hashes) }

func (h *HashBoard) Geometry() *board.Geometry { return h.geo }

func (h *HashBoard) Played(p int) bool       { return h.played[p] }
func (h *HashBoard) Color(p int) board.Color { return h.colors[p] }
func (h *HashBoard) CellHash(p int) uint32   { return h.hashes[p] }

// Clone returns an independent copy sharing only the geometry.
func (h *HashBoard) Clone() *HashBoard {
	out := &HashBoard{
		geo:    h.geo,
		hashes: make([]uint32, len(h.hashes)),
		played: make([]bool, len(h.played)),
		colors: make([]board.Color, len(h.colors)),
	}
	out.CopyFrom(h)
	return out
}

// CopyFrom restores h to the state of src without allocating. Both boards
// must share a geometry.
func (h *HashBoard) CopyFrom(src *HashBoard) {
	if h.geo != src.geo {
		panic("pattern: CopyFrom across geometries")
	}
	copy(h.hashes, src.hashes)
	copy(h.played, src.played)
	copy(h.colors, src.colors)
}

// String dumps the padded grid: '+' for played cells, '-' otherwise.
func (h *HashBoard) String() string {
	var b strings.Builder
	stride := h.geo.Stride()
	for r := 0; r < stride; r++ {
		for c := 0; c < stride; c++ {
			p := r*stride + c
			mark := '-'
			if h.played[p] {
				mark = '+'
			}
			fmt.Fprintf(&b, "%c%9d ", mark, h.hashes[p])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
