package queue

import (
	"context"
	"fmt"
	"sync"
)

// workerPool owns the worker goroutines. Once draining starts no worker can
// be added, so the WaitGroup is never grown while it is being waited on.
type workerPool struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	draining bool
}

// spawn starts n workers named worker-0..worker-n-1 and returns how many
// actually started.
func (p *workerPool) spawn(n int, fn func(workerID string)) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.draining || fn == nil {
		return 0
	}
	for i := range n {
		id := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			fn(id)
		}()
	}
	return n
}

// drain waits for every worker to return, bounded by ctx.
func (p *workerPool) drain(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
