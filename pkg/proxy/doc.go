// Package proxy is the session core: it seats bot connections into
// matches, launches one engine process per match on a reserved port,
// and bridges frames between each bot and its engine while enforcing
// the match's policy on the bot-to-engine direction.
//
// Every match carries its own lock and its own engine process, so a
// stall or failure in one match never blocks another. Frames are
// forwarded as their original wire bytes; the proxy re-encodes nothing
// it did not synthesize itself.
package proxy
