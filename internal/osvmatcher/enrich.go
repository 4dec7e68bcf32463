package osvmatcher

import (
	"context"
	"sync"

	"github.com/depscan/depscan/internal/osvdev"
	"github.com/depscan/depscan/pkg/models"
	"golang.org/x/sync/semaphore"
)

type enrichment struct {
	done chan struct{}
	vuln models.Vulnerability
	err  error
}

// hydrator fetches full records by ID. Each ID is fetched at most once per
// scan, however many packages or batches reference it; concurrent callers
// for the same ID wait on the first fetch.
type hydrator struct {
	client  Client
	sem     *semaphore.Weighted
	timeout func(context.Context) (context.Context, context.CancelFunc)

	mu      sync.Mutex
	fetched map[string]*enrichment
}

func newHydrator(client Client, limit int64, timeout func(context.Context) (context.Context, context.CancelFunc)) *hydrator {
	return &hydrator{
		client:  client,
		sem:     semaphore.NewWeighted(limit),
		timeout: timeout,
		fetched: make(map[string]*enrichment),
	}
}

func (h *hydrator) get(ctx context.Context, id string) (models.Vulnerability, error) {
	h.mu.Lock()
	e, ok := h.fetched[id]
	if !ok {
		e = &enrichment{done: make(chan struct{})}
		h.fetched[id] = e
	}
	h.mu.Unlock()

	if ok {
		<-e.done
		return e.vuln, e.err
	}

	defer close(e.done)

	if err := h.sem.Acquire(ctx, 1); err != nil {
		e.err = err
		return e.vuln, e.err
	}
	defer h.sem.Release(1)

	callCtx, cancel := h.timeout(ctx)
	defer cancel()

	var raw *osvdev.Vulnerability
	raw, e.err = h.client.GetVulnByID(callCtx, id)
	if e.err == nil {
		e.vuln = normalize(raw)
	}

	return e.vuln, e.err
}
