package docstore

import (
	"context"
	"sync"
)

// watchers fans write notifications out to in-process Observe streams.
type watchers struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newWatchers() *watchers {
	return &watchers{subs: make(map[string]map[chan struct{}]struct{})}
}

func (w *watchers) subscribe(collection string) (chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	w.mu.Lock()
	if w.subs[collection] == nil {
		w.subs[collection] = make(map[chan struct{}]struct{})
	}
	w.subs[collection][ch] = struct{}{}
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		delete(w.subs[collection], ch)
		if len(w.subs[collection]) == 0 {
			delete(w.subs, collection)
		}
		w.mu.Unlock()
	}
}

func (w *watchers) notify(collection string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for ch := range w.subs[collection] {
		// Pending signals coalesce; the reader re-queries anyway.
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// stream re-runs query each time changed fires and forwards the result.
func stream(ctx context.Context, changed <-chan struct{}, done func(), query func(context.Context) ([]Document, error)) <-chan Snapshot {
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)
		defer done()

		emit := func() bool {
			docs, err := query(ctx)
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- Snapshot{Documents: docs, Err: err}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changed:
				if !ok {
					return
				}
				if !emit() {
					return
				}
			}
		}
	}()

	return out
}
