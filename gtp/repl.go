// Package gtp runs a line-oriented command protocol in the style of the Go
// Text Protocol: one command per line, each answered by "= result" or
// "? error" followed by a blank line.
package gtp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrSyntax         = errors.New("syntax error")

	// ErrQuit ends a session after a successful reply.
	ErrQuit = errors.New("quit")
)

// Handler runs one command. The returned text is the reply body.
type Handler func(args []string) (string, error)

// Repl dispatches command lines to registered handlers.
type Repl struct {
	handlers map[string]Handler
	names    []string
	fatal    []error
}

// NewRepl returns an empty Repl. A handler error matching any of fatal (by
// errors.Is) is still answered but then ends Run with that error.
func NewRepl(fatal ...error) *Repl {
	return &Repl{handlers: map[string]Handler{}, fatal: fatal}
}

// Register binds name to h, replacing any earlier binding.
func (r *Repl) Register(name string, h Handler) {
	if _, ok := r.handlers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.handlers[name] = h
}

// Commands lists registered names in registration order.
func (r *Repl) Commands() []string {
	return append([]string(nil), r.names...)
}

// Exec runs one line and returns the formatted reply, empty for blank and
// comment lines. quit reports a successful quit; err is non-nil only for
// fatal handler errors.
func (r *Repl) Exec(line string) (reply string, quit bool, err error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false, nil
	}

	id := ""
	if _, convErr := strconv.ParseUint(fields[0], 10, 64); convErr == nil {
		id, fields = fields[0], fields[1:]
	}
	if len(fields) == 0 {
		return format('?', id, ErrSyntax.Error()), false, nil
	}

	h, ok := r.handlers[fields[0]]
	if !ok {
		return format('?', id, fmt.Sprintf("%v: %s", ErrUnknownCommand, fields[0])), false, nil
	}

	text, herr := h(fields[1:])
	switch {
	case herr == nil:
		return format('=', id, text), false, nil
	case errors.Is(herr, ErrQuit):
		return format('=', id, text), true, nil
	}
	reply = format('?', id, herr.Error())
	for _, f := range r.fatal {
		if errors.Is(herr, f) {
			return reply, false, herr
		}
	}
	return reply, false, nil
}

// Run reads commands from in until EOF, quit, a fatal error or ctx ends.
// Commands execute only on the calling goroutine, so once Run returns no
// handler is running; a read blocked on in is abandoned.
func (r *Repl) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	defer w.Flush()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			line = l
		}

		reply, quit, err := r.Exec(line)
		if reply != "" {
			w.WriteString(reply)
			if ferr := w.Flush(); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

func format(status byte, id, text string) string {
	text = strings.TrimRight(text, "\n")
	return string(status) + id + " " + text + "\n\n"
}
