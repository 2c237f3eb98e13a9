package session

import (
	"sync"
)

// Reconfigure is emitted after an inbound patch replaced the snapshot. ID is
// the correlation token of the PATCH message. Config is a copy shared by the
// observers of one event, never the snapshot itself.
type Reconfigure struct {
	ID     string
	Config any
}

type observer[T any] struct {
	id int
	fn func(T)
}

type observers[T any] struct {
	mu   sync.Mutex
	next int
	list []observer[T]
}

func (o *observers[T]) add(fn func(T)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.list = append(o.list, observer[T]{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, ob := range o.list {
			if ob.id == id {
				o.list = append(o.list[:i:i], o.list[i+1:]...)
				return
			}
		}
	}
}

// notify calls observers in registration order on the caller's goroutine.
func (o *observers[T]) notify(v T) {
	o.mu.Lock()
	list := o.list
	o.mu.Unlock()
	for _, ob := range list {
		ob.fn(v)
	}
}
