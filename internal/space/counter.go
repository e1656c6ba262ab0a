package space

import "sync/atomic"

// Counter hands out monotonically increasing ids. One Counter is created at
// process start and shared by everything that needs ids from the same sequence.
type Counter struct {
	n atomic.Int64
}

// NewCounter returns a counter whose first Next() is start+1.
func NewCounter(start int64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

func (c *Counter) Next() int64 {
	return c.n.Add(1)
}
