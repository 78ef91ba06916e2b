// Package notify broadcasts payload-free "state changed" events to subscribers.
package notify

import (
	"sync"
)

// Notifier is an explicit observer list. Subscribers re-read whatever state they need when called.
// Publish calls each subscriber synchronously, in no particular order.
type Notifier struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]func()
}

func New() *Notifier {
	return &Notifier{
		subscribers: make(map[uint64]func()),
	}
}

// Subscribe registers fn and returns a function that removes it. Calling the returned function more than once is safe.
func (n *Notifier) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subscribers[id] = fn
	n.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subscribers, id)
			n.mu.Unlock()
		})
	}
}

// Publish invokes every current subscriber. Subscribers may subscribe or unsubscribe from within the callback.
func (n *Notifier) Publish() {
	n.mu.RLock()
	subscribers := make([]func(), 0, len(n.subscribers))
	for _, fn := range n.subscribers {
		subscribers = append(subscribers, fn)
	}
	n.mu.RUnlock()

	for _, fn := range subscribers {
		fn()
	}
}

func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.subscribers)
}
