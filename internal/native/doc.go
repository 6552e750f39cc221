// Package native is the boundary to the middleware runtime.
//
// It exposes the runtime the way a C binding sees it: entities are int32
// handles (negative values are return codes), QoS is a plain struct with a
// presence mask, listeners are sets of fixed-signature functions sharing one
// opaque uintptr argument, and samples cross as unsafe.Pointer values
// described by a Sertype.
//
// The package carries an in-process loopback runtime implementing that ABI:
// domains, reader/writer matching, reader history caches with instance
// bookkeeping, wait sets and conditions. Listener callbacks are dispatched
// from runtime-owned goroutines, never from the goroutine that caused the
// event. The runtime computes instance keys on its own, straight from sample
// memory through the Sertype key descriptors, and serializes samples with its
// own CDR codec.
package native
