// Package registry tracks every open viewer-client session.
//
// A Registry is an actor: one goroutine owns the session table and serves a closed set of
// commands. Sessions are inventoried under a temporary handle the moment a transport is
// accepted and re-keyed under their instance id once the handshake completes.
package registry
