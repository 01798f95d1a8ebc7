// Package event provides typed, synchronous notification channels.
//
// A Channel delivers each published value to its subscribers on the calling
// goroutine, in registration order. There is no buffering and no background
// dispatch. Callers must not subscribe to or unsubscribe from a channel while
// that same channel is dispatching; doing so panics.
package event

import "fmt"

// Handler receives one published value.
type Handler[T any] func(T)

// Unsubscribe removes a previously registered handler. Calling it more than once is a no-op.
type Unsubscribe func()

type subscriber[T any] struct {
	id uint64
	fn Handler[T]
}

// Channel is a list of handlers for one notification type. The zero value is ready to use.
type Channel[T any] struct {
	subs        []subscriber[T]
	nextID      uint64
	dispatching int
}

// Subscribe registers fn and returns a handle that removes it again.
func (c *Channel[T]) Subscribe(fn Handler[T]) Unsubscribe {
	c.checkNotDispatching("subscribe")
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		c.checkNotDispatching("unsubscribe")
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every handler with v, in registration order.
func (c *Channel[T]) Publish(v T) {
	if len(c.subs) == 0 {
		return
	}
	c.dispatching++
	defer func() { c.dispatching-- }()
	for _, s := range c.subs {
		s.fn(v)
	}
}

// Len returns the number of registered handlers.
func (c *Channel[T]) Len() int {
	return len(c.subs)
}

func (c *Channel[T]) checkNotDispatching(op string) {
	if c.dispatching > 0 {
		panic(fmt.Sprintf("event: %s during dispatch of the same channel", op))
	}
}
