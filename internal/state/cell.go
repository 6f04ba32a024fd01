// Package state provides observable value cells.
package state

import "sync"

// Cell holds a value and notifies subscribers after every Set. Callbacks run
// synchronously on the setting goroutine, outside the cell lock, so they may
// read the cell again.
type Cell[T any] struct {
	mu     sync.RWMutex
	value  T
	nextID int
	subs   map[int]func(T)
	// order keeps callbacks in subscription order.
	order []int
}

func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, subs: map[int]func(T){}}
}

func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	fns := c.callbacks()
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Update applies fn to the current value atomically, then notifies.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	v := fn(c.value)
	c.value = v
	fns := c.callbacks()
	c.mu.Unlock()
	for _, f := range fns {
		f(v)
	}
	return v
}

// Subscribe calls fn with the current value right away and after every
// change. The returned func unsubscribes.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.order = append(c.order, id)
	v := c.value
	c.mu.Unlock()
	fn(v)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
		for i, o := range c.order {
			if o == id {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	}
}

func (c *Cell[T]) callbacks() []func(T) {
	out := make([]func(T), 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.subs[id])
	}
	return out
}
