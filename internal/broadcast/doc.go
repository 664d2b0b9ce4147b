// Package broadcast delivers the full market snapshot to WebSocket viewers.
//
// A Broadcaster actor (single goroutine + command channel) owns the viewer registry.
// Every viewer gets its own subscription goroutine with an independent delivery ticker:
// one snapshot is sent on connect, then one per interval until the viewer leaves.
// Delivery is level-triggered and fire-and-forget; a failed write is counted and the
// ticker keeps running until the read side notices the disconnect.
package broadcast
