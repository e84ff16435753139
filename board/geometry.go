// Package board defines the padded Hex board geometry shared by the pattern
// hash grid and the weighted sampler.
//
// A logical N×N board is stored as an (N+2)×(N+2) row-major grid with a ring
// of guard cells, so every interior cell has six addressable neighbours and
// hot loops never bounds-check. All tables are built once by NewGeometry and
// are read-only afterwards; a *Geometry may be shared freely between
// goroutines.
package board

import (
	"errors"
	"fmt"
)

// MaxSize is the largest supported board. Columns are a single letter.
const MaxSize = 26

var ErrBoardSize = errors.New("unsupported board size")

// Direction indexes the six hex neighbours of a cell.
type Direction int

const (
	NorthEast Direction = iota // p - stride + 1
	East                       // p + 1
	SouthEast                  // p + stride
	SouthWest                  // p + stride - 1
	West                       // p - 1
	NorthWest                  // p - stride
	NumDirections
)

// Opposite returns the direction pointing back from the neighbour.
func (d Direction) Opposite() Direction {
	return (d + 3) % NumDirections
}

// Multipliers is the positional weight of each direction in a pattern hash:
// one base-4 digit per direction.
var Multipliers = [NumDirections]uint32{1, 4, 16, 64, 256, 1024}

// Geometry holds the coordinate tables for one board size.
type Geometry struct {
	size    int
	stride  int
	offsets [NumDirections]int

	toPadded []int // logical index -> padded index
	toLogic  []int // padded index -> logical index, -1 for guards
	rowOf    []int // padded index -> padded row
}

// NewGeometry builds the tables for an N×N board.
func NewGeometry(size int) (*Geometry, error) {
	if size < 1 || size > MaxSize {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrBoardSize, size, MaxSize)
	}

	stride := size + 2
	g := &Geometry{
		size:     size,
		stride:   stride,
		offsets:  [NumDirections]int{-stride + 1, 1, stride, stride - 1, -1, -stride},
		toPadded: make([]int, size*size),
		toLogic:  make([]int, stride*stride),
		rowOf:    make([]int, stride*stride),
	}

	for p := range g.toLogic {
		g.toLogic[p] = -1
		g.rowOf[p] = p / stride
	}
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			p := (r+1)*stride + c + 1
			g.toPadded[r*size+c] = p
			g.toLogic[p] = r*size + c
		}
	}
	return g, nil
}

// MustGeometry is NewGeometry for sizes known to be valid.
func MustGeometry(size int) *Geometry {
	g, err := NewGeometry(size)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Geometry) Size() int   { return g.size }
func (g *Geometry) Stride() int { return g.stride }

// Cells is the number of padded cells, guards included.
func (g *Geometry) Cells() int { return g.stride * g.stride }

// PaddedIndex maps a 0-based logical (row, col) to its padded index.
func (g *Geometry) PaddedIndex(row, col int) int {
	return g.toPadded[row*g.size+col]
}

// PaddedFromLogical maps a row-major logical index in [0, N²).
func (g *Geometry) PaddedFromLogical(i int) int {
	return g.toPadded[i]
}

// Logical is the inverse of PaddedFromLogical. ok is false for guards.
func (g *Geometry) Logical(p int) (i int, ok bool) {
	i = g.toLogic[p]
	return i, i >= 0
}

// RowBucket returns the padded row of p. Guard rows are 0 and N+1.
func (g *Geometry) RowBucket(p int) int {
	return g.rowOf[p]
}

func (g *Geometry) IsGuard(p int) bool {
	return g.toLogic[p] < 0
}

// Offset is the padded index delta for direction d.
func (g *Geometry) Offset(d Direction) int {
	return g.offsets[d]
}

func (g *Geometry) Neighbor(p int, d Direction) int {
	return p + g.offsets[d]
}

// Neighbors returns the six neighbours of an interior cell in Direction order.
func (g *Geometry) Neighbors(p int) [NumDirections]int {
	var out [NumDirections]int
	for d, off := range g.offsets {
		out[d] = p + off
	}
	return out
}

// Interior returns every non-guard padded index in logical order.
func (g *Geometry) Interior() []int {
	out := make([]int, len(g.toPadded))
	copy(out, g.toPadded)
	return out
}
