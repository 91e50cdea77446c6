// Package broadcast implements the server-side fan-out of order updates.
//
// The Dispatcher consumes the registry's change event stream and pushes each
// event to every subscribed transport session. Uses single goroutine +
// command channel (no mutexes). Per-connection write goroutines with bounded
// buffers keep one slow client from stalling the rest; location-only updates
// are coalesced latest-wins per order.
package broadcast
