package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteGammaTable_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gamma.parquet")
	rows := []GammaRow{{Key: 1, Gamma: 0.5}, {Key: 16383, Gamma: 2}}

	require.NoError(t, WriteGammaTable(path, rows))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "tmp file left behind")

	got, err := ReadGammaTable(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReadGammaTable_MissingFile(t *testing.T) {
	_, err := ReadGammaTable(filepath.Join(t.TempDir(), "absent.parquet"))
	require.Error(t, err)
}

func TestBatchWriter_FinalizeMovesFile(t *testing.T) {
	dir := t.TempDir()
	bw, err := NewBatchWriter(dir)
	require.NoError(t, err)

	game := []MoveRow{
		{GameID: "g1", BoardSize: 3, Turn: 0, Color: "black", Coord: "b2", Key: 4, Weight: 1, Total: 9},
		{GameID: "g1", BoardSize: 3, Turn: 1, Color: "white", Coord: "a1", Key: 9, Weight: 1, Total: 8, Winner: "black"},
	}
	require.NoError(t, bw.WriteGame(game))
	require.NoError(t, bw.WriteGame(nil))
	assert.Equal(t, 1, bw.BufferedGames())
	assert.Equal(t, 2, bw.BufferedRows())

	out, rows, games, err := bw.Finalize()
	require.NoError(t, err)
	assert.Equal(t, bw.OutPath(), out)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, games)

	_, err = os.Stat(bw.TmpPath())
	assert.True(t, os.IsNotExist(err))

	got, err := parquet.ReadFile[MoveRow](out)
	require.NoError(t, err)
	assert.Equal(t, game, got)

	require.ErrorIs(t, bw.WriteGame(game), ErrBatchClosed)

	out, rows, games, err = bw.Finalize()
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, rows+games)
}

func TestBatchWriter_RejectsMixedGames(t *testing.T) {
	bw, err := NewBatchWriter(t.TempDir())
	require.NoError(t, err)
	defer bw.Finalize()

	err = bw.WriteGame([]MoveRow{{GameID: "g1"}, {GameID: "g2", Turn: 1}})
	require.ErrorIs(t, err, ErrMixedGames)
	assert.Zero(t, bw.BufferedGames())
	assert.Zero(t, bw.BufferedRows())
}

func TestBatchWriter_EmptyFinalizeRemovesTmp(t *testing.T) {
	bw, err := NewBatchWriter(t.TempDir())
	require.NoError(t, err)

	out, rows, games, err := bw.Finalize()
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, rows)
	assert.Zero(t, games)

	_, err = os.Stat(bw.TmpPath())
	assert.True(t, os.IsNotExist(err))
}
