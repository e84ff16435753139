package engine

import (
	"fmt"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/pattern"
)

// Move is one ply of a playout, with the sampler state it was drawn from.
type Move struct {
	Turn   int
	Color  board.Color
	Pos    int
	Key    pattern.Key
	Weight float64 // weight of Pos when drawn, 0 for uniform fallback draws
	Total  float64
}

// Playout alternates colours, drawing each move from the sampler, until the
// board is full. Once no cell has positive weight the remaining moves are
// drawn uniformly from the empty cells. onMove, if set, sees every move
// after it has been applied.
func (e *Engine) Playout(onMove func(Move)) []Move {
	moves := make([]Move, 0, e.geo.Size()*e.geo.Size()-e.turn)
	for {
		total := e.samp.Total()
		p, ok := e.samp.Random()
		weight := 0.0
		if ok {
			weight = e.samp.Weight(p)
		} else {
			p, ok = e.uniformEmpty()
			if !ok {
				break
			}
			total = 0
		}

		c := e.toMove
		key, err := e.Play(c, p)
		if err != nil {
			// The sampler never yields dead cells.
			panic(fmt.Sprintf("engine: sampler drew %s: %v", e.geo.FormatCoord(p), err))
		}

		m := Move{Turn: e.turn - 1, Color: c, Pos: p, Key: key, Weight: weight, Total: total}
		moves = append(moves, m)
		if onMove != nil {
			onMove(m)
		}
	}
	return moves
}

func (e *Engine) uniformEmpty() (int, bool) {
	empty := 0
	for _, p := range e.geo.Interior() {
		if !e.hashes.Played(p) {
			empty++
		}
	}
	if empty == 0 {
		return -1, false
	}

	k := int(e.src.Float64() * float64(empty))
	if k >= empty {
		k = empty - 1
	}
	for _, p := range e.geo.Interior() {
		if e.hashes.Played(p) {
			continue
		}
		if k == 0 {
			return p, true
		}
		k--
	}
	return -1, false
}

// Winner returns the colour that has connected its two edges, or Empty.
// Black joins the top and bottom rows, White the left and right columns.
func (e *Engine) Winner() board.Color {
	switch {
	case e.connected(board.Black):
		return board.Black
	case e.connected(board.White):
		return board.White
	}
	return board.Empty
}

func (e *Engine) connected(c board.Color) bool {
	n, stride := e.geo.Size(), e.geo.Stride()
	seen := make([]bool, e.geo.Cells())
	stack := make([]int, 0, n*n)

	// Start edge is padded row 1 for Black and padded column 1 for White.
	for i := 1; i <= n; i++ {
		p := stride + i
		if c == board.White {
			p = i*stride + 1
		}
		if e.hashes.Color(p) == c {
			seen[p] = true
			stack = append(stack, p)
		}
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c == board.Black && e.geo.RowBucket(p) == n {
			return true
		}
		if c == board.White && p%stride == n {
			return true
		}
		for _, q := range e.geo.Neighbors(p) {
			if !seen[q] && e.hashes.Color(q) == c {
				seen[q] = true
				stack = append(stack, q)
			}
		}
	}
	return false
}
