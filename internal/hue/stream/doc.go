// Package stream consumes the bridge push event stream (CLIP v2 SSE).
//
// The framing is decoded by hand: the bridge sends "data: <json>" lines
// followed by an empty line, and each payload is a JSON array of message
// envelopes. Decoder turns one connection into a sequence of event
// batches; Supervisor keeps a connection open forever, reconnecting after
// a fixed delay on failure, until it is stopped.
package stream
