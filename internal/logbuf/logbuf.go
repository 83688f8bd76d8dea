// ABOUTME: Bounded in-memory ring of recent formatted log lines.
// ABOUTME: Feeds the control facade's recent-log-lines endpoint.

package logbuf

import (
	"sync"
)

// DefaultCapacity is the number of lines kept when none is configured.
const DefaultCapacity = 500

// Buffer is a fixed-capacity ring of log lines. Writes past capacity
// overwrite the oldest line.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	count int
}

// NewBuffer creates a ring holding at most capacity lines.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{lines: make([]string, capacity)}
}

// Append records one formatted line.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.count < len(b.lines) {
		b.count++
	}
}

// Recent returns up to limit lines, oldest first, most recent last.
// A non-positive limit returns everything buffered.
func (b *Buffer) Recent(limit int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > b.count {
		limit = b.count
	}

	out := make([]string, 0, limit)
	start := b.next - limit
	if start < 0 {
		start += len(b.lines)
	}
	for i := 0; i < limit; i++ {
		out = append(out, b.lines[(start+i)%len(b.lines)])
	}
	return out
}
