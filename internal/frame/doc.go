// Package frame defines the messaging protocol frames and their codecs.
//
// Frames are a closed sum type. Outbound frames are Subscribe, Unsubscribe
// and Publish; inbound frames are Message and Error. Any other inbound tag
// decodes to Unknown so receivers can drop it without failing.
//
// Two codecs are provided:
//   - JSON, the default, one object per websocket text message
//   - CBOR, negotiated through the "cbor" websocket subprotocol
package frame
