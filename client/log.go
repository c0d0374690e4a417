package client

import (
	"sync"

	"github.com/robertof/go-flextrack/utils"
)

// LogHeader is the first line of every log, kept through trimming and
// restored by ClearLog.
const LogHeader = "BLE Log"

// logBuffer keeps the most recent lines, oldest first, header at index 0.
type logBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLogBuffer(max int) *logBuffer {
	if max < 2 {
		max = 2
	}

	return &logBuffer{
		max:   max,
		lines: []string{LogHeader},
	}
}

func (b *logBuffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)

	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:1], b.lines[1+over:]...)
	}
}

func (b *logBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = []string{LogHeader}
}

// newestFirst returns a copy of the buffer, the most recent line first and the
// header last.
func (b *logBuffer) newestFirst() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return utils.Reverse(b.lines)
}
