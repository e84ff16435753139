package main

import (
	"context"
	"math/rand"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/engine"
	"github.com/brensch/hexgamma/gamma"
	"github.com/brensch/hexgamma/pattern"
	"github.com/brensch/hexgamma/stats"
	"github.com/brensch/hexgamma/store"
)

var (
	totalMoves   atomic.Int64
	totalGames   atomic.Int64
	claimedGames atomic.Int64
)

// GameUpdate reports one finished playout to the progress view.
type GameUpdate struct {
	WorkerID int
	GameID   string
	Winner   board.Color
	Moves    int
}

type workerConfig struct {
	id       int
	geo      *board.Geometry
	table    gamma.Table
	seed     int64
	maxGames int64
}

// runWorker plays games until ctx ends or the game budget is spent. Each
// worker owns its engine and collector; only finished rows leave it.
func runWorker(ctx context.Context, cfg workerConfig, writeReqs chan<- []store.MoveRow, updates chan<- GameUpdate) (*stats.Collector, error) {
	eng, err := engine.New(cfg.geo, cfg.table, rand.New(rand.NewSource(cfg.seed+int64(cfg.id)*1000003)))
	if err != nil {
		return nil, err
	}
	col := stats.NewCollector()
	used := make([]pattern.Key, 1)

	for {
		select {
		case <-ctx.Done():
			return col, nil
		default:
		}
		if cfg.maxGames > 0 && claimedGames.Add(1) > cfg.maxGames {
			return col, nil
		}

		if err := eng.Reset(); err != nil {
			return col, err
		}
		gameID := uuid.NewString()

		var reportErr error
		moves := eng.Playout(func(m engine.Move) {
			totalMoves.Add(1)
			if reportErr != nil {
				return
			}
			used[0] = m.Key
			h := eng.Hashes()
			reportErr = col.ReportPatternUse(used, h.AllHashes(), h.PlayedFlags())
		})
		if reportErr != nil {
			return col, reportErr
		}
		totalGames.Add(1)

		winner := eng.Winner()
		rows := make([]store.MoveRow, len(moves))
		for i, m := range moves {
			rows[i] = store.MoveRow{
				GameID:    gameID,
				BoardSize: int32(cfg.geo.Size()),
				Turn:      int32(m.Turn),
				Color:     m.Color.String(),
				Coord:     cfg.geo.FormatCoord(m.Pos),
				Key:       int32(m.Key),
				Weight:    float32(m.Weight),
				Total:     float32(m.Total),
				Winner:    winner.String(),
			}
		}
		writeReqs <- rows

		// Never block play on a slow or absent progress view.
		select {
		case updates <- GameUpdate{WorkerID: cfg.id, GameID: gameID, Winner: winner, Moves: len(moves)}:
		default:
		}
	}
}
