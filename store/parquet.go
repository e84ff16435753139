// Package store persists pattern statistics, gamma tables and self-play move
// records as zstd-compressed Parquet files. Every file is written under a
// temporary name and renamed into place so readers never see partial files.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const (
	SchemaPatternStats = "pattern_stats_v1"
	SchemaGammaTable   = "gamma_table_v1"
	SchemaMoves        = "playout_moves_v1"
)

// PatternRow is one gamma-table key with its gather counters.
//
// Key is (hash << 2) | colour. Uses counts how often the pattern was played;
// Occurrences counts how often it was available to either player.
type PatternRow struct {
	SessionID   string `parquet:"session_id,dict"`
	BoardSize   int32  `parquet:"board_size"`
	Key         int32  `parquet:"key"`
	Hash        int32  `parquet:"hash"`
	Color       int32  `parquet:"color"`
	Uses        int64  `parquet:"uses"`
	Occurrences int64  `parquet:"occurrences"`
}

// GammaRow is a single non-zero entry of a gamma table.
type GammaRow struct {
	Key   int32   `parquet:"key"`
	Gamma float32 `parquet:"gamma"`
}

// MoveRow is one move of a sampled playout.
//
// Weight is the sampler weight of the chosen cell at draw time and Total the
// grand total it was drawn against, so Weight/Total is the move probability.
type MoveRow struct {
	GameID    string  `parquet:"game_id,dict"`
	BoardSize int32   `parquet:"board_size"`
	Turn      int32   `parquet:"turn"`
	Color     string  `parquet:"color,dict"`
	Coord     string  `parquet:"coord,dict"`
	Key       int32   `parquet:"key"`
	Weight    float32 `parquet:"weight"`
	Total     float32 `parquet:"total"`
	Winner    string  `parquet:"winner,dict,optional"`
}

// WritePatternStats writes rows to outPath atomically.
func WritePatternStats(outPath string, rows []PatternRow) error {
	return writeAtomic(outPath, rows, SchemaPatternStats)
}

// WriteGammaTable writes rows to outPath atomically.
func WriteGammaTable(outPath string, rows []GammaRow) error {
	return writeAtomic(outPath, rows, SchemaGammaTable)
}

// ReadGammaTable reads every row of a gamma table file.
func ReadGammaTable(path string) ([]GammaRow, error) {
	rows, err := parquet.ReadFile[GammaRow](path)
	if err != nil {
		return nil, fmt.Errorf("read gamma table %s: %w", path, err)
	}
	return rows, nil
}

// ReadPatternStats reads every row of a pattern statistics file.
func ReadPatternStats(path string) ([]PatternRow, error) {
	rows, err := parquet.ReadFile[PatternRow](path)
	if err != nil {
		return nil, fmt.Errorf("read pattern stats %s: %w", path, err)
	}
	return rows, nil
}

func writeAtomic[T any](outPath string, rows []T, schema string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// BatchName returns a unique file name for a batch written now.
func BatchName(prefix string) string {
	return fmt.Sprintf("%s_%d.parquet", prefix, time.Now().UnixNano())
}
