package backend

import "sync"

// callbacks holds the lifecycle listeners a transport fires. fireClose
// delivers at most once no matter how many paths reach it.
type callbacks struct {
	mu        sync.Mutex
	ready     func()
	err       func(error)
	closed    func()
	closeOnce sync.Once
}

func (c *callbacks) setReady(fn func()) {
	c.mu.Lock()
	c.ready = fn
	c.mu.Unlock()
}

func (c *callbacks) setError(fn func(error)) {
	c.mu.Lock()
	c.err = fn
	c.mu.Unlock()
}

func (c *callbacks) setClose(fn func()) {
	c.mu.Lock()
	c.closed = fn
	c.mu.Unlock()
}

func (c *callbacks) fireReady() {
	c.mu.Lock()
	fn := c.ready
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *callbacks) fireError(err error) {
	c.mu.Lock()
	fn := c.err
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *callbacks) fireClose() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		fn := c.closed
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}
