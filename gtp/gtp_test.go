package gtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/hexgamma/board"
	"github.com/brensch/hexgamma/engine"
	"github.com/brensch/hexgamma/pattern"
	"github.com/brensch/hexgamma/stats"
)

func newController(t *testing.T, size int) *Controller {
	t.Helper()
	eng, err := engine.New(board.MustGeometry(size), nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return NewController(eng, stats.NewCollector())
}

func run(t *testing.T, r *Repl, script string) (string, error) {
	t.Helper()
	var out strings.Builder
	err := r.Run(context.Background(), strings.NewReader(script), &out)
	return out.String(), err
}

func TestRepl_Framing(t *testing.T) {
	r := NewRepl()
	r.Register("echo", func(args []string) (string, error) { return strings.Join(args, " "), nil })
	r.Register("fail", func([]string) (string, error) { return "", errors.New("nope") })
	r.Register("quit", func([]string) (string, error) { return "", ErrQuit })

	out, err := run(t, r, "\n# comment\necho a b # trailing\n7 echo x\nfail\nwhat\n12\nquit\necho never\n")
	require.NoError(t, err)
	assert.Equal(t,
		"= a b\n\n"+
			"=7 x\n\n"+
			"? nope\n\n"+
			"? unknown command: what\n\n"+
			"?12 syntax error\n\n"+
			"= \n\n",
		out)
}

func TestRepl_FatalErrorEndsRun(t *testing.T) {
	r := NewRepl(stats.ErrPatternOverflow)
	r.Register("boom", func([]string) (string, error) {
		return "", fmt.Errorf("report: %w", stats.ErrPatternOverflow)
	})
	r.Register("ok", func([]string) (string, error) { return "fine", nil })

	out, err := run(t, r, "ok\nboom\nok\n")
	require.ErrorIs(t, err, stats.ErrPatternOverflow)
	assert.Equal(t, "= fine\n\n? report: pattern key exceeds table size\n\n", out)
}

func TestRepl_ContextCancelled(t *testing.T) {
	r := NewRepl()
	r.Register("ok", func([]string) (string, error) { return "", nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, strings.NewReader("ok\n"), io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRepl_CancelStopsBlockedRead(t *testing.T) {
	var calls atomic.Int32
	r := NewRepl()
	r.Register("ok", func([]string) (string, error) {
		calls.Add(1)
		return "", nil
	})
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, pr, io.Discard) }()

	_, err := io.WriteString(pw, "ok\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run still blocked on input after cancel")
	}

	// The reader may still pick this line up, but no handler runs after Run
	// has returned.
	_, err = io.WriteString(pw, "ok\n")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestController_PlayReportsPatternUse(t *testing.T) {
	c := newController(t, 3)
	out, err := run(t, c.NewRepl(), "play black b2\nplay white a1\nprint\n")
	require.NoError(t, err)

	// Replay the same moves by hand.
	geo := board.MustGeometry(3)
	h := pattern.NewHashBoard(geo)
	want := stats.NewCollector()
	for _, mv := range []struct {
		c board.Color
		p int
	}{{board.Black, geo.PaddedIndex(1, 1)}, {board.White, geo.PaddedIndex(0, 0)}} {
		key := h.Hash(mv.c, mv.p)
		h.Change(mv.p, mv.c)
		require.NoError(t, want.ReportPatternUse([]pattern.Key{key}, h.AllHashes(), h.PlayedFlags()))
	}
	var printed strings.Builder
	require.NoError(t, want.Print(&printed, false))

	assert.Equal(t, "= \n\n= \n\n= "+strings.TrimRight(printed.String(), "\n")+"\n\n", out)
	assert.Equal(t, want.Uses(), c.Stats().Uses())
	assert.Equal(t, want.Occurrences(), c.Stats().Occurrences())
}

func TestController_RejectsBadInput(t *testing.T) {
	c := newController(t, 3)
	out, err := run(t, c.NewRepl(), "play red a1\nplay black z1\nplay black\nplay black a1\nplay white a1\n")
	require.NoError(t, err)

	replies := strings.Split(strings.TrimSuffix(out, "\n\n"), "\n\n")
	require.Len(t, replies, 5)
	assert.True(t, strings.HasPrefix(replies[0], "? unknown color"), replies[0])
	assert.True(t, strings.HasPrefix(replies[1], "? invalid coordinate"), replies[1])
	assert.True(t, strings.HasPrefix(replies[2], "? syntax error"), replies[2])
	assert.Equal(t, "= ", replies[3])
	assert.True(t, strings.HasPrefix(replies[4], "? illegal move"), replies[4])

	var total uint32
	for _, u := range c.Stats().Uses() {
		total += u
	}
	assert.Equal(t, uint32(1), total, "only the legal move is reported")
}

func TestController_NewGameAndQueries(t *testing.T) {
	c := newController(t, 3)
	r := c.NewRepl()

	out, err := run(t, r, "play black a1\nnewgame\nhash white b2\nlist_commands\n")
	require.NoError(t, err)

	geo := c.Engine().Geometry()
	assert.False(t, c.Engine().Hashes().Played(geo.PaddedIndex(0, 0)), "newgame clears the board")

	key := pattern.NewHashBoard(geo).Hash(board.White, geo.PaddedIndex(1, 1))
	assert.Contains(t, out, fmt.Sprintf("= %d\n\n", key))
	assert.Contains(t, out, "= newgame\nplay\nprint\nprint_verbose\nhash\nsample\nshowboard\nweights\nlist_commands\nquit\n\n")

	out, err = run(t, r, "sample\nshowboard\nweights\n")
	require.NoError(t, err)
	replies := strings.Split(strings.TrimSuffix(out, "\n\n"), "\n\n")
	require.Len(t, replies, 3)
	cell, err := geo.ParseCoord(strings.TrimPrefix(replies[0], "= "))
	require.NoError(t, err)
	assert.False(t, geo.IsGuard(cell))
	assert.Contains(t, replies[2], "all_sum = 9")
}

func TestServeWS(t *testing.T) {
	done := make(chan error, 1)
	var ctrl *Controller
	open := func() (*Session, error) {
		ctrl = newController(t, 3)
		return &Session{Repl: ctrl.NewRepl(), Done: func(err error) { done <- err }}, nil
	}
	srv := httptest.NewServer(ServeWS(context.Background(), open, slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	exchange := func(cmd string) string {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(cmd)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		return string(msg)
	}

	assert.Equal(t, "= \n\n", exchange("play black b2"))
	assert.Equal(t, "?3 unknown command: bogus\n\n", exchange("3 bogus"))
	assert.Equal(t, "= \n\n", exchange("quit"))

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "err=%v", err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session never finished")
	}
	assert.Equal(t, uint32(1), ctrl.Stats().Uses()[ctrl.Engine().Hashes().Hash(board.Black, ctrl.Engine().Geometry().PaddedIndex(1, 1))])
}

func TestServeWS_ClosesSessionsWhenContextEnds(t *testing.T) {
	done := make(chan error, 1)
	open := func() (*Session, error) {
		return &Session{Repl: newController(t, 3).NewRepl(), Done: func(err error) { done <- err }}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(ServeWS(ctx, open, slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("play black a1")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "= \n\n", string(msg))

	cancel()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err=%v", err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session outlived its context")
	}
}
