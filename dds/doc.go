// Package dds provides typed, memory-safe access to a DDS publish/subscribe
// runtime.
//
// The package supports typed readers and writers over Go structs, keyed
// instances declared with struct tags, builder-pattern entity creation,
// listener callbacks and wait sets, and context-aware blocking and
// asynchronous reads.
//
// Entities form a tree rooted at a Participant. Closing an entity closes
// everything it created first, and Close is idempotent and safe to call
// multiple times. Entities left unreachable without Close are closed by a
// finalizer.
//
// Listener callbacks run on the runtime's dispatch goroutine of the
// participant's domain. Avoid long blocking operations in callbacks to
// prevent stalling event delivery, and never close the entity a callback
// was invoked for from inside it.
package dds
