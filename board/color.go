package board

import (
	"errors"
	"fmt"
)

// Color is a 2-bit cell colour. Empty contributes nothing to a pattern hash;
// Guard marks the synthetic border and never appears on a playable cell.
type Color uint8

const (
	Empty Color = iota
	Black
	White
	Guard
)

var ErrUnknownColor = errors.New("unknown color")

// Opponent returns the other player. Empty and Guard map to themselves.
func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return c
	}
}

func (c Color) String() string {
	switch c {
	case Empty:
		return "empty"
	case Black:
		return "black"
	case White:
		return "white"
	case Guard:
		return "guard"
	default:
		return fmt.Sprintf("color(%d)", uint8(c))
	}
}

// ParseColor accepts the case-sensitive tokens "black" and "white".
func ParseColor(token string) (Color, error) {
	switch token {
	case "black":
		return Black, nil
	case "white":
		return White, nil
	}
	return Empty, fmt.Errorf("%w: %q", ErrUnknownColor, token)
}
