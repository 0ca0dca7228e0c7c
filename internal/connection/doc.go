// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns at most one transport (websocket or tcp) at a time
//   - Reconnects after a fixed delay when the transport closes or fails
//   - Stops for good only when Close is called
//   - Serializes transport events, timer firings and listener calls on a
//     single event goroutine
//   - Exposes Send as the only outbound primitive
package connection
