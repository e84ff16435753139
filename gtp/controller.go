package gtp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/engine"
	"github.com/brensch/hexgamma/pattern"
	"github.com/brensch/hexgamma/stats"
)

// Controller serves one session: a game engine plus the pattern statistics
// gathered from the moves played on it.
type Controller struct {
	eng   *engine.Engine
	stats *stats.Collector
}

func NewController(eng *engine.Engine, col *stats.Collector) *Controller {
	return &Controller{eng: eng, stats: col}
}

func (c *Controller) Engine() *engine.Engine  { return c.eng }
func (c *Controller) Stats() *stats.Collector { return c.stats }

// NewRepl returns a Repl with every controller command registered.
// Pattern overflow is fatal.
func (c *Controller) NewRepl() *Repl {
	r := NewRepl(stats.ErrPatternOverflow)
	c.Register(r)
	return r
}

func (c *Controller) Register(r *Repl) {
	r.Register("newgame", c.newGame)
	r.Register("play", c.play)
	r.Register("print", c.print(false))
	r.Register("print_verbose", c.print(true))
	r.Register("hash", c.hash)
	r.Register("sample", c.sample)
	r.Register("showboard", c.showBoard)
	r.Register("weights", c.weights)
	r.Register("list_commands", func([]string) (string, error) {
		return strings.Join(r.Commands(), "\n"), nil
	})
	r.Register("quit", func([]string) (string, error) { return "", ErrQuit })
}

func (c *Controller) newGame(args []string) (string, error) {
	if err := wantArgs(args, 0); err != nil {
		return "", err
	}
	return "", c.eng.Reset()
}

func (c *Controller) play(args []string) (string, error) {
	if err := wantArgs(args, 2); err != nil {
		return "", err
	}
	key, err := c.eng.PlayText(args[0], args[1])
	if err != nil {
		return "", err
	}
	h := c.eng.Hashes()
	if err := c.stats.ReportPatternUse([]pattern.Key{key}, h.AllHashes(), h.PlayedFlags()); err != nil {
		return "", err
	}
	return "", nil
}

func (c *Controller) print(verbose bool) Handler {
	return func(args []string) (string, error) {
		if err := wantArgs(args, 0); err != nil {
			return "", err
		}
		var b strings.Builder
		if err := c.stats.Print(&b, verbose); err != nil {
			return "", err
		}
		return b.String(), nil
	}
}

func (c *Controller) hash(args []string) (string, error) {
	if err := wantArgs(args, 2); err != nil {
		return "", err
	}
	col, err := board.ParseColor(args[0])
	if err != nil {
		return "", err
	}
	p, err := c.eng.Geometry().ParseCoord(args[1])
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(c.eng.Hashes().Hash(col, p)), 10), nil
}

func (c *Controller) sample(args []string) (string, error) {
	if err := wantArgs(args, 0); err != nil {
		return "", err
	}
	p, ok := c.eng.Sample()
	if !ok {
		return "", fmt.Errorf("no cell has positive weight")
	}
	return c.eng.Geometry().FormatCoord(p), nil
}

func (c *Controller) showBoard(args []string) (string, error) {
	if err := wantArgs(args, 0); err != nil {
		return "", err
	}
	return "\n" + c.eng.Hashes().String(), nil
}

func (c *Controller) weights(args []string) (string, error) {
	if err := wantArgs(args, 0); err != nil {
		return "", err
	}
	return "\n" + c.eng.Sampler().String(), nil
}

func wantArgs(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: want %d arguments, got %d", ErrSyntax, n, len(args))
	}
	return nil
}
