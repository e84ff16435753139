// Package engine applies moves to the pattern hash grid and the weighted
// sampler in lockstep and runs sampled playouts on top of them.
package engine

import (
	"errors"
	"fmt"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/gamma"
	"github.com/brensch/hexgamma/pattern"
	"github.com/brensch/hexgamma/sampler"
)

var ErrIllegalMove = errors.New("illegal move")

// Engine owns one HashBoard and one Sampler for a single game. It is not safe
// for concurrent use; workers each build their own and share the Geometry
// and Table, which are read-only.
type Engine struct {
	geo    *board.Geometry
	table  gamma.Table
	src    sampler.Source
	hashes *pattern.HashBoard
	samp   *sampler.Sampler

	toMove board.Color
	turn   int

	scratch []float64
}

// New builds an engine with an empty board and Black to move. A nil table
// weights every pattern equally.
func New(geo *board.Geometry, table gamma.Table, src sampler.Source) (*Engine, error) {
	if table == nil {
		table = gamma.Uniform(1)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		geo:     geo,
		table:   table,
		src:     src,
		samp:    sampler.New(geo, src),
		scratch: make([]float64, geo.Size()*geo.Size()),
	}
	if err := e.Reset(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset clears the board. Every cell starts weighted by its pattern as a
// Black move.
func (e *Engine) Reset() error {
	e.hashes = pattern.NewHashBoard(e.geo)
	for i := range e.scratch {
		p := e.geo.PaddedFromLogical(i)
		e.scratch[i] = e.table.Lookup(e.hashes.Hash(board.Black, p))
	}
	if err := e.samp.FillWeights(e.scratch); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	e.toMove = board.Black
	e.turn = 0
	return nil
}

// Play places c at padded index p and returns the key of the move as it was
// played, taken before the grid update. Neighbour weights are refreshed for
// the colour to move next.
func (e *Engine) Play(c board.Color, p int) (pattern.Key, error) {
	if c != board.Black && c != board.White {
		return 0, fmt.Errorf("%w: %w: %v", ErrIllegalMove, board.ErrUnknownColor, c)
	}
	if p < 0 || p >= e.geo.Cells() || e.geo.IsGuard(p) {
		return 0, fmt.Errorf("%w: cell %d is off the board", ErrIllegalMove, p)
	}
	if e.hashes.Played(p) {
		return 0, fmt.Errorf("%w: %s is occupied", ErrIllegalMove, e.geo.FormatCoord(p))
	}

	key := e.hashes.Hash(c, p)
	e.hashes.Change(p, c)

	next := c.Opponent()
	var w [board.NumDirections]float64
	for d, n := range e.geo.Neighbors(p) {
		if e.hashes.Played(n) {
			continue
		}
		w[d] = e.table.Lookup(e.hashes.Hash(next, n))
	}
	e.samp.Change(p, w)

	e.toMove = next
	e.turn++
	return key, nil
}

// PlayText parses a colour token and a coordinate such as "c3" and plays it.
func (e *Engine) PlayText(colorToken, coord string) (pattern.Key, error) {
	c, err := board.ParseColor(colorToken)
	if err != nil {
		return 0, err
	}
	p, err := e.geo.ParseCoord(coord)
	if err != nil {
		return 0, err
	}
	return e.Play(c, p)
}

// Sample draws a cell from the sampler without playing it.
func (e *Engine) Sample() (int, bool) {
	return e.samp.Random()
}

func (e *Engine) ToMove() board.Color        { return e.toMove }
func (e *Engine) Turn() int                  { return e.turn }
func (e *Engine) Geometry() *board.Geometry  { return e.geo }
func (e *Engine) Table() gamma.Table         { return e.table }
func (e *Engine) Hashes() *pattern.HashBoard { return e.hashes }
func (e *Engine) Sampler() *sampler.Sampler  { return e.samp }
func (e *Engine) Source() sampler.Source     { return e.src }
func (e *Engine) Occupant(p int) board.Color { return e.hashes.Color(p) }
func (e *Engine) Legal(p int) bool           { return !e.geo.IsGuard(p) && !e.hashes.Played(p) }

// Clone returns an engine sharing no mutable state with e, drawing from src
// (or e's source when src is nil). Branch from a clone to explore a line and
// discard it to take the move back.
func (e *Engine) Clone(src sampler.Source) *Engine {
	if src == nil {
		src = e.src
	}
	return &Engine{
		geo:     e.geo,
		table:   e.table,
		src:     src,
		hashes:  e.hashes.Clone(),
		samp:    e.samp.Clone(src),
		toMove:  e.toMove,
		turn:    e.turn,
		scratch: make([]float64, len(e.scratch)),
	}
}
