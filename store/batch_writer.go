package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

var (
	ErrBatchClosed = errors.New("move batch already finalized")
	ErrMixedGames  = errors.New("rows from more than one game")
)

// BatchWriter streams the moves of finished playouts into a parquet file under
// outDir/tmp and publishes it to outDir on Finalize, so readers never see a
// half-written batch.
type BatchWriter struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[MoveRow] // nil once finalized

	bufferedGames int
	bufferedRows  int
}

// NewBatchWriter opens a fresh batch named by BatchName("moves").
func NewBatchWriter(outDir string) (*BatchWriter, error) {
	if outDir == "" {
		return nil, errors.New("move batch: output directory is required")
	}
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}
	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("move batch: %w", err)
	}

	name := BatchName("moves")
	b := &BatchWriter{
		tmpPath: filepath.Join(tmpDir, name),
		outPath: filepath.Join(outDir, name),
	}
	f, err := os.OpenFile(b.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("move batch: %w", err)
	}
	b.file = f
	b.writer = parquet.NewGenericWriter[MoveRow](f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}))
	b.writer.SetKeyValueMetadata("schema", SchemaMoves)
	return b, nil
}

// TmpPath is where rows are written until Finalize.
func (b *BatchWriter) TmpPath() string { return b.tmpPath }

// OutPath is where the batch lands once finalized with at least one row.
func (b *BatchWriter) OutPath() string { return b.outPath }

// BufferedGames counts finished playouts written since the batch was opened.
// Empty WriteGame calls do not count. selfplay rotates batches on this.
func (b *BatchWriter) BufferedGames() int { return b.bufferedGames }

// BufferedRows counts move rows written since the batch was opened, one per
// stone placed.
func (b *BatchWriter) BufferedRows() int { return b.bufferedRows }

// WriteGame appends every move of one finished playout. All rows must carry
// the same GameID.
func (b *BatchWriter) WriteGame(rows []MoveRow) error {
	if b.writer == nil {
		return ErrBatchClosed
	}
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows[1:] {
		if r.GameID != rows[0].GameID {
			return fmt.Errorf("%w: %q and %q", ErrMixedGames, rows[0].GameID, r.GameID)
		}
	}
	if _, err := b.writer.Write(rows); err != nil {
		return fmt.Errorf("write moves of game %s: %w", rows[0].GameID, err)
	}
	b.bufferedRows += len(rows)
	b.bufferedGames++
	return nil
}

// Finalize seals the batch and publishes it under OutPath. games and rows
// report what BufferedGames and BufferedRows held. A batch with no games is
// discarded and outPath is empty. Calling Finalize again is a no-op.
func (b *BatchWriter) Finalize() (outPath string, rows int, games int, err error) {
	if b.writer == nil {
		return "", 0, 0, nil
	}
	rows, games = b.bufferedRows, b.bufferedGames

	err = errors.Join(b.writer.Close(), b.file.Sync(), b.file.Close())
	b.writer, b.file = nil, nil
	if err != nil {
		return "", 0, 0, fmt.Errorf("seal move batch: %w", err)
	}

	if games == 0 {
		os.Remove(b.tmpPath)
		return "", 0, 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, 0, fmt.Errorf("publish move batch: %w", err)
	}
	return b.outPath, rows, games, nil
}
