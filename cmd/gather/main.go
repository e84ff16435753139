// Command gather reads games as a stream of "play <color> <coord>" commands
// and accumulates how often each local pattern was played versus offered.
//
// By default the protocol runs on stdin/stdout. With -listen it is served over
// websockets at /gtp instead, one game per connection, with every
// connection's counts merged into the session totals.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/config"
	"github.com/brensch/hexgamma/engine"
	"github.com/brensch/hexgamma/gamma"
	"github.com/brensch/hexgamma/gtp"
	"github.com/brensch/hexgamma/logging"
	"github.com/brensch/hexgamma/stats"
	"github.com/brensch/hexgamma/store"
)

func main() {
	size := flag.Int("size", config.EnvInt("BOARD_SIZE", 11), "Board size N for an NxN board")
	gammaPath := flag.String("gamma", config.Env("GAMMA_PATH", ""), "Optional gamma table parquet used to weight the sampler")
	statsOut := flag.String("stats-out", config.Env("STATS_OUT", ""), "Write pattern statistics parquet here on exit")
	listen := flag.String("listen", config.Env("LISTEN_ADDR", ""), "Serve the protocol over websockets on this address instead of stdin")
	logFormat := flag.String("log-format", config.Env("LOG_FORMAT", "text"), "Log format: text, json or pretty")
	logLevel := flag.String("log-level", config.Env("LOG_LEVEL", "info"), "Minimum log level")
	seed := flag.Int64("seed", config.EnvInt64("SEED", 0), "Sampler seed, 0 for time-based")
	flag.Parse()

	// stdout carries the protocol.
	logger, err := logging.New(os.Stderr, *logFormat, *logLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	geo, err := board.NewGeometry(*size)
	if err != nil {
		log.Fatalf("board: %v", err)
	}

	var table gamma.Table
	if *gammaPath != "" {
		table, err = gamma.Load(*gammaPath)
		if err != nil {
			log.Fatalf("gamma: %v", err)
		}
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	sessionID := uuid.NewString()
	logger = logger.With("session", sessionID)
	logger.Info("gather starting", "size", *size, "gamma", *gammaPath, "listen", *listen, "seed", *seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	totals := stats.NewCollector()
	var runErr error
	if *listen != "" {
		ln, err := net.Listen("tcp", *listen)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		runErr = newServer(ctx, logger, geo, table, *seed, totals).run(ln)
	} else {
		runErr = runStdio(ctx, os.Stdin, os.Stdout, geo, table, *seed, totals)
	}

	if *statsOut != "" {
		if keys, err := writeStats(*statsOut, sessionID, *size, totals); err != nil {
			logger.Error("write stats", "path", *statsOut, "err", err)
		} else {
			logger.Info("stats written", "path", *statsOut, "keys", keys)
		}
	}

	// Pattern overflow lands here: the table and board disagree.
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("gather: %v", runErr)
	}
	logger.Info("gather finished")
}

func writeStats(path, sessionID string, size int, totals *stats.Collector) (int, error) {
	rows := totals.Rows(sessionID, size)
	return len(rows), store.WritePatternStats(path, rows)
}

// runStdio plays one command stream against totals. It returns once ctx ends
// even if in is still blocked, and no command touches totals after that.
func runStdio(ctx context.Context, in io.Reader, out io.Writer, geo *board.Geometry, table gamma.Table, seed int64, totals *stats.Collector) error {
	eng, err := engine.New(geo, table, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}
	return gtp.NewController(eng, totals).NewRepl().Run(ctx, in, out)
}

const shutdownWait = 5 * time.Second

// server hands every websocket connection its own engine and collector and
// folds each collector into totals when the connection ends.
type server struct {
	log    *slog.Logger
	geo    *board.Geometry
	table  gamma.Table
	seed   int64
	totals *stats.Collector

	ctx    context.Context
	cancel context.CancelCauseFunc

	conns    atomic.Int64
	sessions sync.WaitGroup

	mu       sync.Mutex
	draining bool // no new sessions
	closed   bool // totals are final
}

func newServer(ctx context.Context, logger *slog.Logger, geo *board.Geometry, table gamma.Table, seed int64, totals *stats.Collector) *server {
	s := &server{log: logger, geo: geo, table: table, seed: seed, totals: totals}
	s.ctx, s.cancel = context.WithCancelCause(ctx)
	return s
}

func (s *server) open() (*gtp.Session, error) {
	n := s.conns.Add(1)
	eng, err := engine.New(s.geo, s.table, rand.New(rand.NewSource(s.seed+n)))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return nil, errors.New("server shutting down")
	}
	s.sessions.Add(1)

	ctrl := gtp.NewController(eng, stats.NewCollector())
	return &gtp.Session{
		Repl: ctrl.NewRepl(),
		Done: func(err error) {
			defer s.sessions.Done()
			s.sessionDone(ctrl.Stats(), err)
		},
	}, nil
}

// sessionDone merges a finished session's counts. A fatal session error
// stops the whole server with that error as the cause.
func (s *server) sessionDone(col *stats.Collector, err error) {
	s.mu.Lock()
	if s.closed {
		s.log.Warn("session ended after shutdown, counts dropped")
	} else {
		s.totals.Merge(col)
	}
	s.mu.Unlock()
	if err != nil {
		s.cancel(err)
	}
}

// run serves /gtp on ln until ctx ends or a session fails. It returns only
// after open sessions have been merged or the shutdown deadline passed; totals
// do not change after it returns.
func (s *server) run(ln net.Listener) error {
	defer s.cancel(nil)

	mux := http.NewServeMux()
	mux.Handle("/gtp", gtp.ServeWS(s.ctx, s.open, s.log))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("listening", "addr", ln.Addr().String(), "path", "/gtp")

	select {
	case err := <-errCh:
		s.cancel(err)
	case <-s.ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownWait)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("shutdown", "err", err)
	}

	// Hijacked websocket connections outlive Shutdown. They close themselves
	// on ctx; wait for their counts.
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	drained := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		s.log.Warn("sessions still open at shutdown deadline")
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return context.Cause(s.ctx)
}
