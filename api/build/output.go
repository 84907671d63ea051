package build

import (
	"bytes"
	"sync"
)

// LineWriter splits process output into lines and hands each to fn.
// Flush emits a trailing partial line.
type LineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(line string)
}

func NewLineWriter(fn func(line string)) *LineWriter {
	return &LineWriter{fn: fn}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(w.buf[:i], "\r")
		w.fn(string(line))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.fn(string(w.buf))
		w.buf = nil
	}
}
