// Package schedule provides repeating jobs that are owned by whoever started
// them and stopped through an explicit handle.
package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task runs fn every interval until fn returns false or Cancel is called.
type Task struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Every starts a Task. The ticker is registered before Every returns.
func Every(clock clockwork.Clock, interval time.Duration, fn func() bool) *Task {
	t := &Task{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	ticker := clock.NewTicker(interval)
	go func() {
		defer close(t.done)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.Chan():
				select {
				case <-t.stop:
					return
				default:
				}
				if !fn() {
					return
				}
			}
		}
	}()
	return t
}

// Cancel stops the task and waits for a tick in flight to return. It is safe
// to call more than once but must not be called from inside fn.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

// Done is closed once the task has stopped for any reason.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
