package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/store"
)

func TestRunWorker_PlaysBudgetedGames(t *testing.T) {
	claimedGames.Store(0)
	totalGames.Store(0)

	writeReqs := make(chan []store.MoveRow, 8)
	updates := make(chan GameUpdate, 8)
	cfg := workerConfig{id: 0, geo: board.MustGeometry(3), seed: 7, maxGames: 2}

	col, err := runWorker(context.Background(), cfg, writeReqs, updates)
	require.NoError(t, err)
	close(writeReqs)

	var games [][]store.MoveRow
	for rows := range writeReqs {
		games = append(games, rows)
	}
	require.Len(t, games, 2)
	assert.EqualValues(t, 2, totalGames.Load())

	var uses uint32
	for _, u := range col.Uses() {
		uses += u
	}
	assert.EqualValues(t, 18, uses, "one use per move")

	for _, rows := range games {
		require.Len(t, rows, 9)
		winner := rows[0].Winner
		assert.Contains(t, []string{"black", "white"}, winner)
		for i, r := range rows {
			assert.EqualValues(t, i, r.Turn)
			assert.Equal(t, rows[0].GameID, r.GameID)
			assert.Equal(t, winner, r.Winner)
			assert.EqualValues(t, 3, r.BoardSize)
		}
	}
	assert.NotEqual(t, games[0][0].GameID, games[1][0].GameID)
}

func TestRunWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	col, err := runWorker(ctx, workerConfig{geo: board.MustGeometry(3), seed: 1}, make(chan []store.MoveRow), make(chan GameUpdate))
	require.NoError(t, err)
	require.NotNil(t, col)
}

func TestWriterLoop_RotatesFiles(t *testing.T) {
	dir := t.TempDir()
	in := make(chan []store.MoveRow, 3)
	for i, id := range []string{"g1", "g2", "g3"} {
		in <- []store.MoveRow{{GameID: id, BoardSize: 1, Turn: 0, Color: "black", Coord: "a1", Key: int32(i), Winner: "black"}}
	}
	close(in)

	writerLoop(slog.New(slog.NewTextHandler(io.Discard, nil)), dir, 2, in)

	files, err := filepath.Glob(filepath.Join(dir, "moves_*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	var total int
	for _, f := range files {
		rows, err := parquet.ReadFile[store.MoveRow](f)
		require.NoError(t, err)
		total += len(rows)
	}
	assert.Equal(t, 3, total)
}
