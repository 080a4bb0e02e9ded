// Package idgen generates process-unique integer identifiers.
package idgen

import (
	"sync/atomic"
	"time"
)

// Generator issues strictly increasing ids derived from the wall clock in
// milliseconds. Two calls within the same millisecond get consecutive ids,
// so ids never repeat for the lifetime of the Generator.
type Generator struct {
	last atomic.Int64
	now  func() time.Time
}

// New creates a Generator using the system clock.
func New() *Generator {
	return &Generator{now: time.Now}
}

// Next returns a new id, greater than every id returned before.
func (g *Generator) Next() int64 {
	for {
		last := g.last.Load()
		next := g.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if g.last.CompareAndSwap(last, next) {
			return next
		}
	}
}
