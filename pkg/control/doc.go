// Package control is the administrative plane: a JSON-line TCP
// protocol for creating, inspecting and terminating matches, updating
// policies at runtime, fetching recorded results, and subscribing to
// the statistics feed.
//
// Control traffic rides its own listener, fully separate from game
// traffic, so an operator can always reach the proxy even when a
// match is saturated.
package control
