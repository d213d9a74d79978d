// Package delivery sends rendered replies back to viewer sessions.
//
// Long replies are split into wire-safe chunks and paced with a delay between chunks.
// Each session owns a single-worker queue, so chunks of one delivery never interleave with
// another delivery to the same session while different sessions proceed in parallel.
package delivery
