package scheduler

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// prefixWriter line-buffers writes and flushes each complete line to out
// prefixed with the owning instance's fully-qualified name, serialized
// against every other instance's writer sharing the same outMu so
// concurrent subprocess output never interleaves mid-line. Grounded on
// pkg/logger's per-level formatting, generalized from levels to instance
// names.
type prefixWriter struct {
	prefix string
	colors bool
	out    io.Writer
	outMu  *sync.Mutex
	buf    bytes.Buffer
}

func newPrefixWriter(prefix string, colors bool, out io.Writer, outMu *sync.Mutex) *prefixWriter {
	return &prefixWriter{prefix: prefix, colors: colors, out: out, outMu: outMu}
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// ReadBytes consumed a partial, unterminated line; put it back.
			w.buf.Reset()
			w.buf.Write(line)
			break
		}
		w.flushLine(bytes.TrimRight(line, "\n"))
	}
	return len(p), nil
}

// Close flushes a trailing line left in the buffer without a terminator.
func (w *prefixWriter) Close() error {
	if w.buf.Len() > 0 {
		w.flushLine(w.buf.Bytes())
		w.buf.Reset()
	}
	return nil
}

func (w *prefixWriter) flushLine(line []byte) {
	label := w.prefix
	if w.colors {
		label = color.CyanString(w.prefix)
	}
	w.outMu.Lock()
	fmt.Fprintf(w.out, "[%s] %s\n", label, line)
	w.outMu.Unlock()
}
