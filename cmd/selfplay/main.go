// Command selfplay runs pattern-weighted random Hex playouts on a pool of
// workers. It streams every move to parquet batches, counts pattern usage
// across all games and derives a new gamma table from the counts.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/config"
	"github.com/brensch/hexgamma/gamma"
	"github.com/brensch/hexgamma/logging"
	"github.com/brensch/hexgamma/stats"
	"github.com/brensch/hexgamma/store"
)

func main() {
	size := flag.Int("size", config.EnvInt("BOARD_SIZE", 11), "Board size N for an NxN board")
	gammaPath := flag.String("gamma", config.Env("GAMMA_PATH", ""), "Gamma table parquet weighting the playouts (uniform when empty)")
	workers := flag.Int("workers", config.EnvInt("WORKERS", runtime.NumCPU()), "Number of playout workers")
	maxGames := flag.Int64("games", config.EnvInt64("GAMES", 1000), "Stop after this many games across all workers, 0 to run until interrupted")
	outDir := flag.String("out-dir", config.Env("OUT_DIR", "data/selfplay"), "Directory for move batch parquet files")
	gamesPerFile := flag.Int("games-per-file", config.EnvInt("FLUSH_GAMES", 500), "Games per move batch file")
	statsIn := flag.String("stats-in", config.Env("STATS_IN", ""), "Optional pattern statistics parquet to add to the counts before deriving gammas")
	statsOut := flag.String("stats-out", config.Env("STATS_OUT", ""), "Write merged pattern statistics parquet here")
	gammaOut := flag.String("gamma-out", config.Env("GAMMA_OUT", ""), "Write a gamma table derived from the merged statistics here")
	prior := flag.Float64("prior", config.EnvFloat("GAMMA_PRIOR", 1), "Smoothing prior for derived gammas")
	seed := flag.Int64("seed", config.EnvInt64("SEED", 0), "Base seed, 0 for time-based")
	useTUI := flag.Bool("tui", config.EnvBool("TUI", false), "Show a live progress view")
	logFormat := flag.String("log-format", config.Env("LOG_FORMAT", "text"), "Log format: text, json or pretty")
	logLevel := flag.String("log-level", config.Env("LOG_LEVEL", "info"), "Minimum log level")
	flag.Parse()

	// Keep logs out of the way of the progress view.
	var logOut io.Writer = os.Stderr
	if *useTUI {
		logOut = io.Discard
	}
	logger, err := logging.New(logOut, *logFormat, *logLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	geo, err := board.NewGeometry(*size)
	if err != nil {
		log.Fatalf("board: %v", err)
	}
	var table gamma.Table
	if *gammaPath != "" {
		if table, err = gamma.Load(*gammaPath); err != nil {
			log.Fatalf("gamma: %v", err)
		}
	}
	if *workers < 1 {
		*workers = 1
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	merged := stats.NewCollector()
	if *statsIn != "" {
		rows, err := store.ReadPatternStats(*statsIn)
		if err != nil {
			log.Fatalf("stats-in: %v", err)
		}
		if err := merged.AddRows(rows); err != nil {
			log.Fatalf("stats-in: %v", err)
		}
		logger.Info("loaded prior statistics", "path", *statsIn, "keys", len(rows))
	}

	sessionID := uuid.NewString()
	logger = logger.With("session", sessionID)
	logger.Info("selfplay starting", "size", *size, "workers", *workers, "games", *maxGames, "gamma", *gammaPath, "seed", *seed)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	updates := make(chan GameUpdate, *workers)
	writeReqs := make(chan []store.MoveRow, (*workers)*4)
	writerDone := make(chan struct{})
	go func() {
		writerLoop(logger, *outDir, *gamesPerFile, writeReqs)
		close(writerDone)
	}()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		collectors []*stats.Collector
		fatalErr   error
	)
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			col, err := runWorker(ctx, workerConfig{id: id, geo: geo, table: table, seed: *seed, maxGames: *maxGames}, writeReqs, updates)
			mu.Lock()
			defer mu.Unlock()
			if col != nil {
				collectors = append(collectors, col)
			}
			if err != nil && fatalErr == nil {
				fatalErr = err
				cancel()
			}
		}(i)
	}
	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()

	if *useTUI {
		p := tea.NewProgram(initialModel(*size, *workers, updates), tea.WithAltScreen())
		go func() {
			select {
			case <-workersDone:
			case <-ctx.Done():
			}
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			logger.Error("progress view", "err", err)
		}
		cancel()
	} else {
		reportProgress(ctx, logger, updates, workersDone)
	}

	<-workersDone
	close(writeReqs)
	<-writerDone

	for _, col := range collectors {
		merged.Merge(col)
	}
	if fatalErr != nil {
		log.Fatalf("selfplay: %v", fatalErr)
	}
	logger.Info("selfplay finished", "games", totalGames.Load(), "moves", totalMoves.Load())

	if *statsOut != "" {
		rows := merged.Rows(sessionID, *size)
		if err := store.WritePatternStats(*statsOut, rows); err != nil {
			log.Fatalf("write stats: %v", err)
		}
		logger.Info("stats written", "path", *statsOut, "keys", len(rows))
	}
	if *gammaOut != "" {
		derived := gamma.FromStats(merged.Uses(), merged.Occurrences(), *prior)
		if err := derived.Save(*gammaOut); err != nil {
			log.Fatalf("write gamma: %v", err)
		}
		logger.Info("gamma table written", "path", *gammaOut, "prior", *prior)
	}
}

func reportProgress(ctx context.Context, logger *slog.Logger, updates <-chan GameUpdate, workersDone <-chan struct{}) {
	start := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-workersDone:
			return
		case <-ctx.Done():
			logger.Info("shutdown requested; waiting for workers to finish current games")
			return
		case u := <-updates:
			logger.Debug("game finished", "worker", u.WorkerID, "game", u.GameID, "winner", u.Winner.String(), "moves", u.Moves)
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			games, moves := totalGames.Load(), totalMoves.Load()
			logger.Info("progress", "games", games, "moves", moves,
				"games_per_sec", float64(games)/elapsed, "moves_per_sec", float64(moves)/elapsed)
		}
	}
}

// writerLoop streams games into batch files of gamesPerFile games each.
func writerLoop(logger *slog.Logger, outDir string, gamesPerFile int, in <-chan []store.MoveRow) {
	if gamesPerFile <= 0 {
		gamesPerFile = 500
	}

	var bw *store.BatchWriter
	finalize := func(reason string) {
		if bw == nil {
			return
		}
		outPath, rows, games, err := bw.Finalize()
		bw = nil
		if err != nil {
			logger.Error("parquet flush failed", "reason", reason, "err", err)
			return
		}
		if games > 0 {
			logger.Info("parquet flush ok", "reason", reason, "path", outPath, "games", games, "rows", rows)
		}
	}

	for rows := range in {
		if bw == nil {
			var err error
			if bw, err = store.NewBatchWriter(outDir); err != nil {
				logger.Error("open batch", "dir", outDir, "err", err)
				bw = nil
				continue
			}
		}
		if err := bw.WriteGame(rows); err != nil {
			logger.Error("write game", "rows", len(rows), "err", err)
		}
		if bw.BufferedGames() >= gamesPerFile {
			finalize("count")
		}
	}
	finalize("final")
}
