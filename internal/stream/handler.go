// SPDX-License-Identifier: MPL-2.0

// Package stream implements the bounded output collector shared by every
// adapter: it accumulates chunks up to a configured limit, offers the result
// as text or bytes, optionally forwards chunks to a live consumer, and
// reports overflow instead of silently truncating.
package stream

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/corexec/uce/pkg/result"
)

// OnChunk is called synchronously for every chunk written, decoded as text
// with invalid sequences replaced.
type OnChunk func(text string)

// OnLine is called synchronously once per "\n"-delimited logical line. A
// line split across chunk boundaries is delivered once, when its terminator
// arrives.
type OnLine func(line string)

// Handler is a bounded, append-only byte collector owned exclusively by one
// execution; it must never be shared across executions.
type Handler struct {
	mu  sync.Mutex
	buf []byte

	maxBytes int64
	onChunk  OnChunk
	onLine   OnLine
	lineBuf  []byte

	overflowed bool
}

// New creates a Handler with the given buffer limit. A maxBytes of 0 means
// unlimited (not recommended for untrusted children, but valid).
func New(maxBytes int64, onChunk OnChunk, onLine OnLine) *Handler {
	return &Handler{maxBytes: maxBytes, onChunk: onChunk, onLine: onLine}
}

// Write appends chunk to the buffer. It implements io.Writer so a Handler can
// be used directly as an exec.Cmd.Stdout/Stderr target (local, Docker) or an
// ssh.Session's Stdout/Stderr (SSH).
//
// If the write would cross maxBytes, Write returns *result.BufferOverflowError
// and the handler is marked overflowed; the caller must abort its owning
// execution and must not call Write again without Reset.
func (h *Handler) Write(chunk []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.overflowed {
		return 0, &result.BufferOverflowError{LimitBytes: h.maxBytes}
	}

	if h.maxBytes > 0 && int64(len(h.buf)+len(chunk)) > h.maxBytes {
		h.overflowed = true
		return 0, &result.BufferOverflowError{LimitBytes: h.maxBytes}
	}

	h.buf = append(h.buf, chunk...)

	if h.onChunk != nil {
		h.onChunk(decode(chunk))
	}
	if h.onLine != nil {
		h.deliverLines(chunk)
	}

	return len(chunk), nil
}

// deliverLines must be called with h.mu held.
func (h *Handler) deliverLines(chunk []byte) {
	h.lineBuf = append(h.lineBuf, chunk...)
	for {
		idx := bytes.IndexByte(h.lineBuf, '\n')
		if idx < 0 {
			return
		}
		line := decode(h.lineBuf[:idx])
		h.lineBuf = h.lineBuf[idx+1:]
		h.onLine(line)
	}
}

// Bytes returns a copy of the accumulated buffer.
func (h *Handler) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, len(h.buf))
	copy(out, h.buf)
	return out
}

// Text returns the accumulated buffer decoded as UTF-8 text, with invalid
// sequences replaced by the Unicode replacement character.
func (h *Handler) Text() string {
	return decode(h.Bytes())
}

// MaxBytes reports the configured buffer limit (0 means unlimited).
func (h *Handler) MaxBytes() int64 { return h.maxBytes }

// Overflowed reports whether this handler has hit its buffer limit.
func (h *Handler) Overflowed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.overflowed
}

// Reset clears the buffer so the handler can be reused across retries.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = h.buf[:0]
	h.lineBuf = h.lineBuf[:0]
	h.overflowed = false
}

// decode replaces invalid UTF-8 sequences rather than erroring, matching
// §4.4's "decode on demand, replacing invalid sequences".
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
