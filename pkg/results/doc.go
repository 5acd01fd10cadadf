// Package results records match outcomes: end reason, per-seat
// results and final budget counters. One record is written per match
// at the transition to Finished. Backends: in-memory (default) and
// sqlite.
package results
