// Package exec runs shell commands for the shell tool, capturing stdout and
// stderr separately under a hard byte cap.
package exec

import "sync"

// MaxOutputBytes is the hard cap on bytes retained per stream and in the
// aggregated output.
const MaxOutputBytes = 1024 * 1024

// cappedBuffer keeps the first max bytes written and counts the rest.
type cappedBuffer struct {
	mu      sync.Mutex
	buf     []byte
	max     int
	dropped int
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

// Write never fails so the child process is not killed by a short write.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - len(b.buf)
	switch {
	case room <= 0:
		b.dropped += len(p)
	case len(p) > room:
		b.buf = append(b.buf, p[:room]...)
		b.dropped += len(p) - room
	default:
		b.buf = append(b.buf, p...)
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped > 0
}

// Aggregate joins stdout and stderr under max bytes. When both are large,
// stdout gets a third of the room and stderr the rest; room one side does
// not need goes to the other.
func Aggregate(stdout, stderr []byte, max int) []byte {
	if len(stdout)+len(stderr) <= max {
		out := make([]byte, 0, len(stdout)+len(stderr))
		out = append(out, stdout...)
		return append(out, stderr...)
	}
	outTake := min(len(stdout), max/3)
	errTake := min(len(stderr), max-outTake)
	outTake = min(len(stdout), max-errTake)

	out := make([]byte, 0, outTake+errTake)
	out = append(out, stdout[:outTake]...)
	return append(out, stderr[:errTake]...)
}
