// Package client is the public face of the messaging client.
//
// A Client wires a connection.Manager, a subscription.Registry and a
// router.Router together:
//
//	inbound:  transport -> Manager event loop -> Router -> Registry.Match -> listeners
//	outbound: Subscribe/Unsubscribe/Publish -> Manager.Send -> transport
//
// Subscriptions survive reconnects and, unless Config.Resubscribe is false,
// are sent again every time the connection opens, before any OnOpen
// listener runs. Subscribing again to a destination that is already active
// on the connection only replaces its listener, so OnOpen listeners may
// subscribe unconditionally.
package client
