// Package gamma holds the pattern-probability table that turns pattern keys
// into sampler weights.
package gamma

import (
	"errors"
	"fmt"
	"math"

	"github.com/brensch/hexgamma/pattern"
	"github.com/brensch/hexgamma/store"
)

var ErrTable = errors.New("invalid gamma table")

// Table maps every pattern.Key to a non-negative weight.
type Table []float32

// Uniform returns a table with the same weight for every key.
func Uniform(v float32) Table {
	t := make(Table, pattern.NumKeys)
	for i := range t {
		t[i] = v
	}
	return t
}

// Lookup returns the weight for k, or 0 outside the table's domain.
func (t Table) Lookup(k pattern.Key) float64 {
	if int(k) >= len(t) {
		return 0
	}
	return float64(t[k])
}

func (t Table) Validate() error {
	if len(t) != pattern.NumKeys {
		return fmt.Errorf("%w: %d entries, want %d", ErrTable, len(t), pattern.NumKeys)
	}
	for k, v := range t {
		if v < 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: gamma[%d]=%v", ErrTable, k, v)
		}
	}
	return nil
}

// FromStats estimates gammas from gather counters as a smoothed play rate:
// (uses + prior) / (occurrences + 2·prior). Keys never seen get 0.5.
func FromStats(uses, occurrences []uint32, prior float64) Table {
	t := make(Table, pattern.NumKeys)
	for k := range t {
		var u, o float64
		if k < len(uses) {
			u = float64(uses[k])
		}
		if k < len(occurrences) {
			o = float64(occurrences[k])
		}
		if o+2*prior == 0 {
			t[k] = 0.5
			continue
		}
		t[k] = float32((u + prior) / (o + 2*prior))
	}
	return t
}

// Load reads a table written by Save. Keys absent from the file get 0.
func Load(path string) (Table, error) {
	rows, err := store.ReadGammaTable(path)
	if err != nil {
		return nil, err
	}
	t := make(Table, pattern.NumKeys)
	for _, r := range rows {
		if r.Key < 0 || int(r.Key) >= len(t) {
			return nil, fmt.Errorf("%w: key %d outside [0, %d)", ErrTable, r.Key, len(t))
		}
		t[r.Key] = r.Gamma
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Save writes the non-zero entries of t.
func (t Table) Save(path string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	rows := make([]store.GammaRow, 0, len(t))
	for k, v := range t {
		if v != 0 {
			rows = append(rows, store.GammaRow{Key: int32(k), Gamma: v})
		}
	}
	return store.WriteGammaTable(path, rows)
}
