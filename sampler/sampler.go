// Package sampler draws board cells with probability proportional to a
// per-cell weight ("gamma").
//
// Weights live on the padded grid together with one partial sum per padded
// row and a grand total. A move changes at most seven cells spread over three
// rows, so Change is O(1); Random walks the row sums and then one row, so it
// is O(N). A Fenwick tree would make Random O(log N) but is not worth it at
// Hex board sizes.
package sampler

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/brensch/hexgamma/board"
)

// Source yields uniform values in [0, 1). *math/rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

var ErrWeights = errors.New("invalid weights")

// Sampler is not safe for concurrent use.
type Sampler struct {
	geo *board.Geometry
	src Source

	weights []float64 // per padded cell, guards always 0
	rows    []float64 // per padded row
	total   float64

	// dead cells (guards and played cells) keep weight 0 whatever Change is given.
	dead []bool

	// incremental updates since the last exact resum, and how many to allow
	changes     int
	resyncEvery int
}

// New returns a sampler with every weight zero.
func New(geo *board.Geometry, src Source) *Sampler {
	s := &Sampler{
		geo:     geo,
		src:     src,
		weights: make([]float64, geo.Cells()),
		rows:    make([]float64, geo.Stride()),
		dead:    make([]bool, geo.Cells()),
	}
	// Every playout makes at least this many Changes.
	s.resyncEvery = max(1, geo.Size()*geo.Size()/2)
	for p := range s.dead {
		s.dead[p] = geo.IsGuard(p)
	}
	return s
}

// FillWeights loads an N×N row-major weight matrix and recomputes every
// aggregate from scratch. It starts a new episode: cells zeroed by earlier
// Change calls become samplable again. On error the sampler is unchanged.
func (s *Sampler) FillWeights(w []float64) error {
	n := s.geo.Size()
	if len(w) != n*n {
		return fmt.Errorf("%w: got %d values for a %dx%d board", ErrWeights, len(w), n, n)
	}
	for i, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weight[%d]=%v", ErrWeights, i, v)
		}
	}

	for p := range s.weights {
		s.weights[p] = 0
		s.dead[p] = s.geo.IsGuard(p)
	}
	for i, v := range w {
		s.weights[s.geo.PaddedFromLogical(i)] = v
	}
	s.Resync()
	return nil
}

// Change zeroes p and gives its six neighbours the weights in w, ordered by
// board.Direction. Only the three rows around p are touched. Guard and
// already played neighbours stay at 0; negative, NaN and infinite weights
// count as 0.
func (s *Sampler) Change(p int, w [board.NumDirections]float64) {
	r := s.geo.RowBucket(p)
	s.total -= s.rows[r-1] + s.rows[r] + s.rows[r+1]

	s.set(p, 0)
	s.dead[p] = true
	for d := board.Direction(0); d < board.NumDirections; d++ {
		n := s.geo.Neighbor(p, d)
		if s.dead[n] {
			continue
		}
		v := w[d]
		if !(v > 0) || math.IsInf(v, 1) {
			v = 0
		}
		s.set(n, v)
	}

	s.total += s.rows[r-1] + s.rows[r] + s.rows[r+1]

	s.changes++
	if s.changes >= s.resyncEvery {
		s.Resync()
	}
}

func (s *Sampler) set(p int, v float64) {
	s.rows[s.geo.RowBucket(p)] += v - s.weights[p]
	s.weights[p] = v
}

// Resync recomputes the row sums and total exactly from the weights.
func (s *Sampler) Resync() {
	stride := s.geo.Stride()
	s.total = 0
	for r := range s.rows {
		var sum float64
		for _, v := range s.weights[r*stride : (r+1)*stride] {
			sum += v
		}
		s.rows[r] = sum
		s.total += sum
	}
	s.changes = 0
}

// Random returns a padded cell index drawn proportionally to its weight.
// ok is false when no cell has positive weight.
func (s *Sampler) Random() (p int, ok bool) {
	if !(s.total > 0) {
		return -1, false
	}

	r := s.src.Float64() * s.total
	if r >= s.total {
		r = math.Nextafter(s.total, 0)
	}
	if r < 0 {
		r = 0
	}

	n, stride := s.geo.Size(), s.geo.Stride()
	row := 0
	for i := 1; i <= n; i++ {
		if r < s.rows[i] {
			row = i
			break
		}
		r -= s.rows[i]
	}
	if row == 0 {
		return s.lastPositive(1, n)
	}

	base := row * stride
	for j := 1; j <= n; j++ {
		w := s.weights[base+j]
		if r < w {
			return base + j, true
		}
		r -= w
	}
	// The row sum drifted above its cells; settle for the row's last live cell.
	return s.lastPositive(row, row)
}

// lastPositive scans rows [from, to] backwards for a cell with weight, then
// the rest of the board. Only reached through rounding at the scan tails.
func (s *Sampler) lastPositive(from, to int) (int, bool) {
	stride := s.geo.Stride()
	for _, rng := range [][2]int{{from, to}, {1, s.geo.Size()}} {
		for r := rng[1]; r >= rng[0]; r-- {
			for c := s.geo.Size(); c >= 1; c-- {
				if p := r*stride + c; s.weights[p] > 0 {
					return p, true
				}
			}
		}
	}
	s.Resync()
	return -1, false
}

func (s *Sampler) Weight(p int) float64      { return s.weights[p] }
func (s *Sampler) RowSum(row int) float64    { return s.rows[row] }
func (s *Sampler) Total() float64            { return s.total }
func (s *Sampler) Geometry() *board.Geometry { return s.geo }

// Clone returns an independent copy drawing from src, or from the same source
// when src is nil.
func (s *Sampler) Clone(src Source) *Sampler {
	if src == nil {
		src = s.src
	}
	out := &Sampler{
		geo:     s.geo,
		src:     src,
		weights: append([]float64(nil), s.weights...),
		rows:    append([]float64(nil), s.rows...),
		total:   s.total,
		dead:    append([]bool(nil), s.dead...),
		changes: s.changes,

		resyncEvery: s.resyncEvery,
	}
	return out
}

// String prints the logical weights with each row's sum and the total.
func (s *Sampler) String() string {
	var b strings.Builder
	n, stride := s.geo.Size(), s.geo.Stride()
	for r := 1; r <= n; r++ {
		for c := 1; c <= n; c++ {
			fmt.Fprintf(&b, "%g ", s.weights[r*stride+c])
		}
		fmt.Fprintf(&b, " sum = %g\n", s.rows[r])
	}
	fmt.Fprintf(&b, "all_sum = %g\n", s.total)
	return b.String()
}
