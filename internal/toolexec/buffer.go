// SPDX-License-Identifier: MPL-2.0

package toolexec

import (
	"bytes"
	"sync"
)

// cappedBuffer is a thread-safe write sink that stops retaining bytes once
// its cap is reached but keeps accepting writes, so the pipe feeding it is
// always drained to EOF. Overflow is counted, never stored.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int64
	total int64 // bytes offered, including dropped overflow
}

func newCappedBuffer(limit int64) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

// Write implements io.Writer. It always reports the full length as written:
// short-write errors would tear down the pipe copy and stall the child on a
// full pipe, which is exactly the deadlock this package exists to prevent.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	if room := b.limit - int64(b.buf.Len()); room > 0 {
		keep := p
		if int64(len(keep)) > room {
			keep = keep[:room]
		}
		b.buf.Write(keep)
	}
	return len(p), nil
}

// String returns the retained bytes.
func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Len returns the number of retained bytes.
func (b *cappedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Total returns the number of bytes offered, including dropped overflow.
func (b *cappedBuffer) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Truncated reports whether any bytes were dropped.
func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total > int64(b.buf.Len())
}
