// Package session runs one end of a reconf connection.
//
// A Session owns a transport and the peer's view of the configuration
// document. Inbound frames are decoded and dispatched one at a time, in
// arrival order, on a single reader goroutine. Outbound frames go through a
// single writer goroutine. Accepted patches replace the snapshot and are then
// announced to Subscribe observers.
package session
