// Package app provides the application service layer.
//
// Engine is the actor that owns the monitored-user cache and the rate-limit counters; every
// resolution runs on its goroutine. Service orchestrates the use cases around it: comment
// handling (resolve, render, deliver), direct sends, session listing and configuration reloads.
// Depends on domain interfaces, not concrete adapters.
package app
