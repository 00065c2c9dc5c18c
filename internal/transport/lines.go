// Package transport binds the node runtime to a pair of
// byte streams carrying one JSON envelope per line.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/i5heu/maelstrom-node/pkg/logging"
	"github.com/i5heu/maelstrom-node/pkg/protocol"
)

// DefaultMaxLineBytes bounds a single inbound line.
const DefaultMaxLineBytes = 4 * 1024 * 1024

// Slog attribute keys used throughout the transport
// package.
const (
	logKeySize     = "size"
	logKeyMaxSize  = "maxSize"
	logKeyLines    = "lines"
	logKeyDropped  = "dropped"
	logKeyWritten  = "written"
	logKeyError    = "error"
	logKeyMsgType  = "messageType"
	logKeyDestNode = "dest"
)

// InputHandler consumes one inbound line and returns the
// envelopes to write for it. *node.Service implements it.
type InputHandler interface { // A
	Input(ctx context.Context, line []byte) []protocol.Envelope
}

// Config configures a LineTransport.
type Config struct { // A
	// MaxLineBytes drops longer lines. Zero means
	// DefaultMaxLineBytes.
	MaxLineBytes int
	// Logger receives transport diagnostics. Nil
	// discards them.
	Logger *slog.Logger
}

// Stats counts what a LineTransport has processed.
type Stats struct { // H
	Lines   int
	Dropped int
	Written int
}

// LineTransport reads lines from an io.Reader, hands each
// to an InputHandler and writes the resulting envelopes
// to an io.Writer, one per line. The output of a line is
// flushed before the next line is handed over.
type LineTransport struct { // AC
	r       *bufio.Reader
	w       *bufio.Writer
	maxLine int
	log     *slog.Logger
	stats   Stats
}

// NewLineTransport creates a transport over r and w.
func NewLineTransport( // A
	r io.Reader,
	w io.Writer,
	cfg Config,
) *LineTransport {
	maxLine := cfg.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &LineTransport{
		r:       bufio.NewReader(r),
		w:       bufio.NewWriter(w),
		maxLine: maxLine,
		log:     logger,
	}
}

type readResult struct {
	line []byte
	size int
	err  error
}

// Run processes lines until end of input, a write
// failure, or ctx is cancelled. End of input returns nil.
// Reads happen on a separate goroutine, but lines are
// handled strictly one after another.
func (t *LineTransport) Run( // A
	ctx context.Context,
	h InputHandler,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan readResult)
	next := make(chan struct{})
	go t.readLoop(ctx, lines, next)

	defer func() {
		t.log.InfoContext(ctx, "transport stopped",
			logKeyLines, t.stats.Lines,
			logKeyDropped, t.stats.Dropped,
			logKeyWritten, t.stats.Written)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-lines:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read line: %w", res.err)
			}
			if err := t.handleLine(ctx, h, res); err != nil {
				return err
			}
			select {
			case next <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Stats returns the counters collected so far.
func (t *LineTransport) Stats() Stats { // H
	return t.stats
}

func (t *LineTransport) readLoop( // A
	ctx context.Context,
	out chan<- readResult,
	next <-chan struct{},
) {
	for {
		line, size, err := t.readLine()
		if size > 0 {
			select {
			case out <- readResult{line: line, size: size}:
			case <-ctx.Done():
				return
			}
			select {
			case <-next:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case out <- readResult{err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// readLine reads up to and including the next newline.
// At most maxLine bytes of a line are kept; a longer line
// is consumed and returned as nil with its full size.
func (t *LineTransport) readLine() ([]byte, int, error) { // A
	var (
		line []byte
		size int
	)
	for {
		chunk, err := t.r.ReadSlice('\n')
		size += len(chunk)
		if size <= t.maxLine {
			line = append(line, chunk...)
		} else {
			line = nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, size, err
	}
}

func (t *LineTransport) handleLine( // A
	ctx context.Context,
	h InputHandler,
	res readResult,
) error {
	t.stats.Lines++
	if res.size > t.maxLine {
		t.stats.Dropped++
		t.log.WarnContext(ctx, "dropping oversized line",
			logKeySize, res.size,
			logKeyMaxSize, t.maxLine)
		return nil
	}
	line := res.line
	if len(trimLine(line)) == 0 {
		return nil
	}

	out := h.Input(ctx, line)
	if len(out) == 0 {
		return nil
	}
	for _, env := range out {
		if err := t.write(ctx, env); err != nil {
			return err
		}
	}
	if err := t.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func (t *LineTransport) write( // A
	ctx context.Context,
	env protocol.Envelope,
) error {
	data, err := protocol.EncodeEnvelope(env)
	if err != nil {
		t.stats.Dropped++
		t.log.ErrorContext(ctx, "dropping unencodable envelope",
			logKeyMsgType, env.Kind(),
			logKeyDestNode, string(env.Dest),
			logKeyError, err.Error())
		return nil
	}
	if _, err := t.w.Write(data); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	if err := t.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	t.stats.Written++
	return nil
}

func trimLine(line []byte) []byte { // H
	for len(line) > 0 {
		switch line[len(line)-1] {
		case '\n', '\r', ' ', '\t':
			line = line[:len(line)-1]
		default:
			return line
		}
	}
	return line
}
