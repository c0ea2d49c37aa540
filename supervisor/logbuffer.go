package supervisor

import (
	"bytes"
	"strings"
	"sync"
)

// maxLineBytes caps a single unterminated line so a child that never prints
// a newline cannot grow the buffer without bound.
const maxLineBytes = 64 * 1024

// LogBuffer keeps the most recent lines written to it. It is the sink the
// launcher streams child output into and is safe for concurrent use.
type LogBuffer struct {
	mu      sync.Mutex
	lines   []string
	start   int
	count   int
	partial []byte
	onLine  func(line string)
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 1
	}
	return &LogBuffer{lines: make([]string, maxLines)}
}

// OnLine registers fn to receive each line as it is completed. fn runs on the
// writing goroutine after the buffer lock is released.
func (b *LogBuffer) OnLine(fn func(line string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onLine = fn
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	onLine := b.onLine
	var completed []string
	push := func(line string) {
		b.push(line)
		if onLine != nil {
			completed = append(completed, line)
		}
	}

	data := p
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			b.partial = append(b.partial, data...)
			if len(b.partial) > maxLineBytes {
				push(string(b.partial))
				b.partial = b.partial[:0]
			}
			break
		}
		b.partial = append(b.partial, data[:i]...)
		push(strings.TrimSuffix(string(b.partial), "\r"))
		b.partial = b.partial[:0]
		data = data[i+1:]
	}
	b.mu.Unlock()

	for _, line := range completed {
		onLine(line)
	}
	return len(p), nil
}

func (b *LogBuffer) push(line string) {
	capacity := len(b.lines)
	if b.count < capacity {
		b.lines[(b.start+b.count)%capacity] = line
		b.count++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % capacity
}

// Lines returns complete lines oldest first, followed by any unterminated
// trailing output.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, b.count+1)
	for i := 0; i < b.count; i++ {
		out = append(out, b.lines[(b.start+i)%len(b.lines)])
	}
	if len(b.partial) > 0 {
		out = append(out, string(b.partial))
	}
	return out
}

// String renders the buffer with a trailing newline after every complete
// line. Empty when nothing has been written.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder
	for i := 0; i < b.count; i++ {
		sb.WriteString(b.lines[(b.start+i)%len(b.lines)])
		sb.WriteByte('\n')
	}
	sb.Write(b.partial)
	return sb.String()
}

func (b *LogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.lines {
		b.lines[i] = ""
	}
	b.start = 0
	b.count = 0
	b.partial = b.partial[:0]
}
