// Package ratelimit holds the reaction counters that cap how often a monitored user,
// a (user, broadcaster) pair, or a single trigger may produce a reply.
//
// Counters never decay. They live for the lifetime of the process and are cleared only
// by an explicit configuration reload.
package ratelimit
