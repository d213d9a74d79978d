// Package protocol defines the JSON frames exchanged with viewer clients over the websocket.
//
// Inbound and Outbound are closed sets: every message kind is a concrete struct, and the
// unexported marker methods keep other packages from adding kinds. Consumers dispatch with
// an exhaustive type switch.
package protocol
