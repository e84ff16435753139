package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/stats"
	"github.com/brensch/hexgamma/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sumUses(col *stats.Collector) int {
	var n int
	for _, u := range col.Uses() {
		n += int(u)
	}
	return n
}

// startServer runs a server on a loopback port and returns its websocket URL
// and the channel run's result arrives on.
func startServer(t *testing.T, ctx context.Context, totals *stats.Collector) (*server, string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := newServer(ctx, discardLogger(), board.MustGeometry(3), nil, 1, totals)
	done := make(chan error, 1)
	go func() { done <- s.run(ln) }()
	return s, "ws://" + ln.Addr().String() + "/gtp", done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * shutdownWait):
		t.Fatal("server never stopped")
		return nil
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, cmd string) string {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(cmd)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestServer_MergesEverySessionOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	totals := stats.NewCollector()
	_, url, done := startServer(t, ctx, totals)

	quitter := dial(t, url)
	assert.Equal(t, "= \n\n", exchange(t, quitter, "play black b2"))
	assert.Equal(t, "= \n\n", exchange(t, quitter, "quit"))

	// Still connected when the server is told to stop.
	lingerer := dial(t, url)
	assert.Equal(t, "= \n\n", exchange(t, lingerer, "play white a1"))

	cancel()
	err := waitRun(t, done)
	assert.ErrorIs(t, err, context.Canceled)

	_, _, err = lingerer.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err=%v", err)
	assert.Equal(t, 2, sumUses(totals))
}

func TestServer_FatalSessionStopsServer(t *testing.T) {
	totals := stats.NewCollector()
	s, _, done := startServer(t, context.Background(), totals)

	s.sessionDone(stats.NewCollector(), fmt.Errorf("play: %w", stats.ErrPatternOverflow))
	err := waitRun(t, done)
	assert.ErrorIs(t, err, stats.ErrPatternOverflow)
}

func TestServer_DropsCountsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	totals := stats.NewCollector()
	s, url, done := startServer(t, ctx, totals)

	cancel()
	require.ErrorIs(t, waitRun(t, done), context.Canceled)

	late := stats.NewCollector()
	require.NoError(t, late.AddRows([]store.PatternRow{{Key: 5, Uses: 1, Occurrences: 1}}))
	s.sessionDone(late, nil)
	assert.Equal(t, 0, sumUses(totals))

	_, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err, "listener should be closed")
}

func TestRunStdio_CountsIntoTotals(t *testing.T) {
	totals := stats.NewCollector()
	var out strings.Builder
	script := "# opening\nplay black b2\n2 play white a1\nquit\nplay black c3\n"

	err := runStdio(context.Background(), strings.NewReader(script), &out, board.MustGeometry(3), nil, 1, totals)
	require.NoError(t, err)
	assert.Equal(t, "= \n\n=2 \n\n= \n\n", out.String())
	assert.Equal(t, 2, sumUses(totals))
}

func TestWriteStats_RoundTrip(t *testing.T) {
	totals := stats.NewCollector()
	err := runStdio(context.Background(), strings.NewReader("play black b2\n"), io.Discard, board.MustGeometry(3), nil, 1, totals)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "stats.parquet")
	keys, err := writeStats(path, "session-1", 3, totals)
	require.NoError(t, err)
	require.Positive(t, keys)

	rows, err := store.ReadPatternStats(path)
	require.NoError(t, err)
	require.Len(t, rows, keys)
	var uses int64
	for _, r := range rows {
		assert.Equal(t, "session-1", r.SessionID)
		assert.EqualValues(t, 3, r.BoardSize)
		uses += r.Uses
	}
	assert.EqualValues(t, 1, uses)
}
