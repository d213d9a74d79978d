// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (comment.go, monitor.go, rule.go, session.go, etc.) hold the shared
// types and the cross-cutting contracts between the engine, its adapters and the transport.
// No implementation code beyond small helpers on the types themselves.
package domain
