// Package ratelimit provides the action-per-minute window counters
// used by the policy engine. Two boundary policies are available:
// sliding (bucketed, smooth decay) and fixed (tumbling, resets at
// aligned boundaries). A match picks one mode at creation and keeps it
// for its lifetime so rejection timing stays deterministic.
package ratelimit
