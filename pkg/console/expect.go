package console

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// expecter reads a console stream in the background and waits for
// patterns to appear at the end of the accumulated output.
type expecter struct {
	chunks chan []byte
	errc   chan error
	done   chan struct{}
	buf    bytes.Buffer
}

func newExpecter(r io.Reader) *expecter {
	e := &expecter{chunks: make(chan []byte, 16), errc: make(chan error, 1), done: make(chan struct{})}
	go func() {
		for {
			b := make([]byte, 4096)
			n, err := r.Read(b)
			if n > 0 {
				select {
				case e.chunks <- b[:n]:
				case <-e.done:
					return
				}
			}
			if err != nil {
				e.errc <- err
				close(e.chunks)
				return
			}
		}
	}()
	return e
}

// close stops the reader goroutine once the underlying stream is closed.
func (e *expecter) close() {
	close(e.done)
}

// expect consumes output until re matches the tail of the buffer and
// returns everything read up to and including the match.
func (e *expecter) expect(ctx context.Context, re *regexp.Regexp, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if loc := re.FindIndex(e.buf.Bytes()); loc != nil {
			out := string(e.buf.Next(loc[1]))
			return out, nil
		}
		select {
		case b, ok := <-e.chunks:
			if !ok {
				err := <-e.errc
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return e.buf.String(), fmt.Errorf("console closed while waiting for %q: %w", re, err)
			}
			e.buf.Write(b)
		case <-timer.C:
			return e.buf.String(), fmt.Errorf("no %q on console after %s", re, timeout)
		case <-ctx.Done():
			return e.buf.String(), ctx.Err()
		}
	}
}

// cleanOutput strips the echoed command line and the trailing prompt.
func cleanOutput(raw, command string) string {
	s := strings.ReplaceAll(raw, "\r", "")
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == strings.TrimSpace(command) {
		lines = lines[1:]
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
