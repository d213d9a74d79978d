// Package trigger resolves which response rule, if any, fires for an inbound comment.
//
// Resolve walks a fixed precedence order: the author's top-level switch, special triggers,
// the user-scope ceiling, the broadcaster rule and its ceiling, ordinary triggers, and
// finally the broadcaster and user defaults. At most one rule is returned per comment.
// Keyword matching is case-insensitive substring containment.
package trigger
