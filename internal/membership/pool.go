package membership

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Pool runs store jobs off the dispatch path. Jobs are sharded by key so that
// work for a single participant executes in submission order, while a slow
// call only holds up the participants hashed to the same shard.
type Pool struct {
	shards []chan func(ctx context.Context)
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewPool starts shards workers, each with a queue of queueSize jobs.
func NewPool(shards, queueSize int) *Pool {
	if shards <= 0 {
		shards = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		shards: make([]chan func(ctx context.Context), shards),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range p.shards {
		q := make(chan func(ctx context.Context), queueSize)
		p.shards[i] = q
		p.wg.Add(1)
		go p.work(q)
	}
	return p
}

func (p *Pool) work(q <-chan func(ctx context.Context)) {
	defer p.wg.Done()
	for job := range q {
		job(p.ctx)
	}
}

// Submit queues job on the shard owning key. It never blocks: it returns false
// when the shard queue is full or the pool is closed. The job's ctx is cancelled
// if the pool is closed before the job finishes.
func (p *Pool) Submit(key string, job func(ctx context.Context)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	q := p.shards[xxhash.Sum64String(key)%uint64(len(p.shards))]
	select {
	case q <- job:
		return true
	default:
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
// If ctx expires first, in-flight jobs are cancelled and Close returns ctx.Err().
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, q := range p.shards {
		close(q)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
