package pattern

import (
	"strings"

	"github.com/brensch/hexgamma/board"
)

const glyphs = ".#oX"

// Diagram renders a key as a three-line hex picture using ".#oX" for
// empty, black, white and guard. Black moving next to a black stone on its
// east, with the border above, prints as:
//
//	 X X
//	. # #
//	 . .
func Diagram(k Key) string {
	h := k.Hash()
	digit := func(d board.Direction) byte {
		return glyphs[(h/board.Multipliers[d])&3]
	}

	var b strings.Builder
	b.Grow(20)
	b.WriteByte(' ')
	b.WriteByte(digit(board.NorthWest))
	b.WriteByte(' ')
	b.WriteByte(digit(board.NorthEast))
	b.WriteByte('\n')
	b.WriteByte(digit(board.West))
	b.WriteByte(' ')
	b.WriteByte(glyphs[k.Color()])
	b.WriteByte(' ')
	b.WriteByte(digit(board.East))
	b.WriteByte('\n')
	b.WriteByte(' ')
	b.WriteByte(digit(board.SouthWest))
	b.WriteByte(' ')
	b.WriteByte(digit(board.SouthEast))
	b.WriteByte('\n')
	return b.String()
}
