package classifier

import (
	"context"
	"sync"
	"time"
)

// Mock replays a scripted sequence of choices; useful for dry runs and tests.
type Mock struct {
	mu       sync.Mutex
	script   []int
	why      string
	latency  time.Duration
	requests []Request
}

func NewMock(opts Options) *Mock {
	latency := opts.MockLatency
	if latency <= 0 {
		latency = time.Millisecond
	}
	return &Mock{script: opts.Script, why: opts.Why, latency: latency}
}

// Classify returns the next scripted choice, cycling through the script; 0 when empty.
func (m *Mock) Classify(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	choice := 0
	if len(m.script) > 0 {
		choice = m.script[len(m.requests)%len(m.script)]
	}
	m.requests = append(m.requests, req)
	return Response{Choice: choice, Why: m.why, Duration: m.latency}, nil
}

// Calls reports how many clips were classified.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the received requests.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
