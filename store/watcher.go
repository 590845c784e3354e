package store

import (
	"sync"

	"lifesync/models"
)

// watcher delivers payloads to one callback on its own goroutine. Offers made
// while the callback is busy collapse into the latest one.
type watcher struct {
	fn     func(models.Payload)
	mu     sync.Mutex
	latest *models.Payload
	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	detach func()
}

func newWatcher(fn func(models.Payload)) *watcher {
	w := &watcher{
		fn:     fn,
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *watcher) offer(p models.Payload) {
	w.mu.Lock()
	w.latest = &p
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.signal:
		}
		w.mu.Lock()
		p := w.latest
		w.latest = nil
		w.mu.Unlock()
		if p == nil {
			continue
		}
		select {
		case <-w.stop:
			return
		default:
		}
		w.fn(*p)
	}
}

func (w *watcher) Unsubscribe() {
	w.once.Do(func() {
		if w.detach != nil {
			w.detach()
		}
		close(w.stop)
	})
	<-w.done
}
