package stagerun

import (
	"bytes"
	"fmt"
	"sync"
)

// DefaultCaptureLimit bounds each captured stream.
const DefaultCaptureLimit = 64 * 1024

// cappedBuffer keeps the first limit bytes written and counts the rest.
type cappedBuffer struct {
	mu      sync.Mutex
	limit   int
	buf     bytes.Buffer
	dropped int64
}

func newCappedBuffer(limit int) *cappedBuffer {
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room > 0 {
		keep := min(room, len(p))
		b.buf.Write(p[:keep])
		b.dropped += int64(len(p) - keep)
	} else {
		b.dropped += int64(len(p))
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropped == 0 {
		return b.buf.String()
	}
	return fmt.Sprintf("%s\n[truncated %d bytes]", b.buf.String(), b.dropped)
}
