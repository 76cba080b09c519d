// Package protocol defines the wire format between the emberd daemon and
// its clients.
//
// Messages are newline-delimited JSON envelopes carrying a command name
// and an opaque payload. Each connection performs a single
// request-response exchange. Payload types cover recipe builds, plan
// resolution, daemon status, and shutdown.
package protocol
