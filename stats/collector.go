// Package stats gathers pattern-usage histograms from played games: how often
// each pattern key was chosen versus how often it was on offer.
package stats

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/brensch/hexgamma/pattern"
	"github.com/brensch/hexgamma/store"
)

// ErrPatternOverflow means a key fell outside the gamma table's domain: the
// board and table configuration disagree. Callers treat it as fatal.
var ErrPatternOverflow = errors.New("pattern key exceeds table size")

// Collector is not safe for concurrent use; give each worker its own and
// Merge them.
type Collector struct {
	uses        []uint32
	occurrences []uint32
}

func NewCollector() *Collector {
	return &Collector{
		uses:        make([]uint32, pattern.NumKeys),
		occurrences: make([]uint32, pattern.NumKeys),
	}
}

// ReportPatternUse records that the keys in used were played on a board whose
// padded hashes and played flags are existing and played. A used key also
// counts as an occurrence for the other player's colour, and every unplayed
// cell counts as an occurrence for both colours.
func (c *Collector) ReportPatternUse(used []pattern.Key, existing []uint32, played []bool) error {
	limit := uint64(len(c.occurrences) - 1)
	for _, k := range used {
		if uint64(k) > limit {
			return fmt.Errorf("%w: used key %d > %d", ErrPatternOverflow, k, limit)
		}
	}
	for i, h := range existing {
		if played[i] {
			continue
		}
		if uint64(h)*4+3 > limit {
			return fmt.Errorf("%w: cell %d hash %d > %d", ErrPatternOverflow, i, h, limit)
		}
	}

	for _, k := range used {
		c.uses[k]++
		c.occurrences[k]++
		c.occurrences[k&^3|(3-k&3)]++
	}
	for i, h := range existing {
		if !played[i] {
			c.occurrences[h*4+1]++
			c.occurrences[h*4+2]++
		}
	}
	return nil
}

// Print writes "key: uses / occurrences" for every key seen. Verbose output
// precedes each line with a separator and the pattern diagram.
func (c *Collector) Print(w io.Writer, verbose bool) error {
	bw := bufio.NewWriter(w)
	for k, occ := range c.occurrences {
		if occ == 0 {
			continue
		}
		if verbose {
			bw.WriteString("----\n")
			bw.WriteString(pattern.Diagram(pattern.Key(k)))
		}
		fmt.Fprintf(bw, "%d: %d / %d\n", k, c.uses[k], occ)
	}
	return bw.Flush()
}

// Merge adds other's counters into c.
func (c *Collector) Merge(other *Collector) {
	for k := range c.uses {
		c.uses[k] += other.uses[k]
		c.occurrences[k] += other.occurrences[k]
	}
}

func (c *Collector) Reset() {
	clear(c.uses)
	clear(c.occurrences)
}

// Uses and Occurrences expose the histograms read-only.
func (c *Collector) Uses() []uint32        { return c.uses }
func (c *Collector) Occurrences() []uint32 { return c.occurrences }

// Rows converts every seen key to a parquet row tagged with sessionID.
func (c *Collector) Rows(sessionID string, boardSize int) []store.PatternRow {
	var rows []store.PatternRow
	for k, occ := range c.occurrences {
		if occ == 0 {
			continue
		}
		key := pattern.Key(k)
		rows = append(rows, store.PatternRow{
			SessionID:   sessionID,
			BoardSize:   int32(boardSize),
			Key:         int32(k),
			Hash:        int32(key.Hash()),
			Color:       int32(key.Color()),
			Uses:        int64(c.uses[k]),
			Occurrences: int64(occ),
		})
	}
	return rows
}

// AddRows adds counters read back from a statistics file.
func (c *Collector) AddRows(rows []store.PatternRow) error {
	for _, r := range rows {
		if r.Key < 0 || int(r.Key) >= len(c.uses) {
			return fmt.Errorf("%w: stored key %d", ErrPatternOverflow, r.Key)
		}
	}
	for _, r := range rows {
		c.uses[r.Key] += uint32(r.Uses)
		c.occurrences[r.Key] += uint32(r.Occurrences)
	}
	return nil
}
