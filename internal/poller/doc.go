// Package poller implements periodic feeds.
//
// A Poller polls each of its feeds on a fixed interval, with bounded
// concurrency and a per-poll timeout, and publishes whatever the feed's
// Source returns to the feed's destination. The server uses it for the
// clock feed on /time.
package poller
