package gtp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

// Session is one websocket client's command interpreter. Done is called once
// when the connection ends, with the fatal error that ended it, if any.
type Session struct {
	Repl *Repl
	Done func(err error)
}

// ServeWS speaks the command protocol over a websocket: every text message is
// one command line and gets exactly one text message back. open is called
// per connection. When ctx ends, open connections are closed with "going
// away" and their sessions finish normally.
func ServeWS(ctx context.Context, open func() (*Session, error), log *slog.Logger) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		defer conn.Close()

		s, err := open()
		if err != nil {
			log.Error("open session", "remote", r.RemoteAddr, "err", err)
			closeWS(conn, websocket.CloseInternalServerErr, err.Error())
			return
		}

		log.Info("session opened", "remote", r.RemoteAddr)
		err = serveConn(ctx, conn, s.Repl)
		log.Info("session closed", "remote", r.RemoteAddr, "err", err)
		if s.Done != nil {
			s.Done(err)
		}
	})
}

func serveConn(ctx context.Context, conn *websocket.Conn, repl *Repl) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				closeWS(conn, websocket.CloseGoingAway, "server shutting down")
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			// Close frames and network failures both end the session cleanly.
			return nil
		}
		if kind != websocket.TextMessage {
			continue
		}

		reply, quit, fatal := repl.Exec(string(msg))
		if reply != "" {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return nil
			}
		}
		if fatal != nil {
			closeWS(conn, websocket.CloseInternalServerErr, fatal.Error())
			return fatal
		}
		if quit {
			closeWS(conn, websocket.CloseNormalClosure, "")
			return nil
		}
	}
}

func closeWS(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
