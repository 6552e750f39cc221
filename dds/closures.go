package dds

import (
	"sync"
	"sync/atomic"
)

// closureHandle is the opaque argument handed to the native runtime with a
// listener. It resolves back to the Go value it was created for, the way
// cgo.Handle does, without the runtime ever holding a Go pointer.
type closureHandle uintptr

var (
	closureTable sync.Map // closureHandle -> any
	closureNext  atomic.Uintptr
)

// newClosureHandle stores v and returns its handle. The handle stays valid
// until Delete is called.
func newClosureHandle(v any) closureHandle {
	h := closureHandle(closureNext.Add(1))
	closureTable.Store(h, v)
	return h
}

// Value returns the stored value, or nil once the handle was deleted. A
// lookup never transfers ownership.
func (h closureHandle) Value() any {
	v, ok := closureTable.Load(h)
	if !ok {
		return nil
	}
	return v
}

// Delete invalidates the handle.
func (h closureHandle) Delete() {
	closureTable.Delete(h)
}
