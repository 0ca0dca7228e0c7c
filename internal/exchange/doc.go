// Package exchange implements the server-side message Exchange.
//
// The Exchange:
//   - Keeps callbacks keyed by destination pattern, each pattern compiled once
//   - Matches patterns at the start of the pushed destination
//   - Delivers pushes in order on one consumer goroutine fed by a Queue
//   - Passes [destination, groups...] as the match of every delivery
package exchange
