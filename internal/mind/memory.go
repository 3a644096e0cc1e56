package mind

import (
	"sync"
	"time"
)

type Observation struct {
	At   time.Time
	Text string
}

func (o Observation) String() string {
	return o.At.UTC().Format(time.RFC3339) + ": " + o.Text
}

// Memory is a bounded FIFO of observations. Remember never blocks on anything but
// the internal mutex and never fails.
type Memory struct {
	mu  sync.Mutex
	cap int
	buf []Observation
	now func() time.Time
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 50
	}
	return &Memory{cap: capacity, buf: make([]Observation, 0, capacity), now: time.Now}
}

func (m *Memory) Remember(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buf) == m.cap {
		copy(m.buf, m.buf[1:])
		m.buf = m.buf[:m.cap-1]
	}
	m.buf = append(m.buf, Observation{At: m.now(), Text: text})
}

// Recent returns up to n of the newest observations, oldest first.
func (m *Memory) Recent(n int) []Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.buf) {
		n = len(m.buf)
	}
	out := make([]Observation, n)
	copy(out, m.buf[len(m.buf)-n:])
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}
