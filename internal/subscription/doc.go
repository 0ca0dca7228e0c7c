// Package subscription implements the client-side subscription registry.
//
// Destinations are compiled as ECMAScript regular expressions and matched
// against the first match target of each inbound message. Every matching
// subscription receives the message, so a broad pattern such as ".*" sees
// traffic addressed to other destinations.
package subscription
