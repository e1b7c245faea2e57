package server

import (
	"context"
	"sync"
)

// RenderQueue is a FIFO of page paths waiting to be rendered. A path already
// waiting is not queued again.
type RenderQueue struct {
	mu      sync.Mutex
	items   []string
	pending map[string]struct{}
	ready   chan struct{}
}

func NewRenderQueue() *RenderQueue {
	return &RenderQueue{
		pending: make(map[string]struct{}),
		ready:   make(chan struct{}, 1),
	}
}

// Push queues path and reports whether it was added. It never blocks.
func (q *RenderQueue) Push(path string) bool {
	q.mu.Lock()
	if _, ok := q.pending[path]; ok {
		q.mu.Unlock()
		return false
	}
	q.pending[path] = struct{}{}
	q.items = append(q.items, path)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

func (q *RenderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *RenderQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	path := q.items[0]
	q.items = q.items[1:]
	delete(q.pending, path)
	return path, true
}

// Run calls fn for every queued path, one at a time, until ctx is done. It
// returns nil on cancellation.
func (q *RenderQueue) Run(ctx context.Context, fn func(ctx context.Context, path string)) error {
	for {
		for {
			if ctx.Err() != nil {
				return nil
			}
			path, ok := q.pop()
			if !ok {
				break
			}
			fn(ctx, path)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-q.ready:
		}
	}
}
