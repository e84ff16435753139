package board

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrBadCoord = errors.New("invalid coordinate")

// ParseCoord resolves text such as "a1" or "k11" to a padded index.
// The letter selects the column from 'a'; the digits are a 1-based row.
func (g *Geometry) ParseCoord(text string) (int, error) {
	if len(text) < 2 || len(text) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadCoord, text)
	}
	col := int(text[0]) - 'a'
	if col < 0 || col >= g.size {
		return 0, fmt.Errorf("%w: %q: column out of range", ErrBadCoord, text)
	}
	for i := 1; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrBadCoord, text)
		}
	}
	row, _ := strconv.Atoi(text[1:])
	if row < 1 || row > g.size {
		return 0, fmt.Errorf("%w: %q: row out of range", ErrBadCoord, text)
	}
	return g.PaddedIndex(row-1, col), nil
}

// CoordText formats a 0-based logical (row, col).
func (g *Geometry) CoordText(row, col int) string {
	return string(rune('a'+col)) + strconv.Itoa(row+1)
}

// FormatCoord is the inverse of ParseCoord. Guards format as "guard(p)".
func (g *Geometry) FormatCoord(p int) string {
	i, ok := g.Logical(p)
	if !ok {
		return fmt.Sprintf("guard(%d)", p)
	}
	return g.CoordText(i/g.size, i%g.size)
}
