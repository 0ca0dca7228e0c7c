// Package server exposes an exchange.Exchange to messaging clients.
//
// Websocket clients connect on the messaging path and pick the frame codec
// through the subprotocol (json or cbor). TCP clients send NUL-terminated
// JSON frames. UDP datagrams carry a single publish frame each.
//
// Every websocket or tcp connection gets its own subscription table: a
// destination can be subscribed once per connection, and all of a
// connection's subscriptions are removed when it closes. Protocol errors are
// answered with error frames and never close the connection.
package server
