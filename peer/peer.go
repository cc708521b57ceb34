// Package peer provides the IO abstraction a peer-to-peer LLCP/SNEP link
// would run over, with adapters that implement it on a target.Target
// (TargetIO) and an initiator.Initiator (InitiatorIO). The link state
// machines themselves (LLCP framing, SNEP exchange) are not part of the
// core and are not implemented here; the Peer interface gives the
// adapter's entity registry a live peer handle.
package peer

// IO is the raw, ordered byte-frame transport a peer-to-peer link is
// built on: a Target when we are the poller, an Initiator when we are
// polled. The link protocol layered on top decides framing and retries.
type IO interface {
	// Send transmits one frame. done reports whether it was delivered.
	Send(data []byte, done func(ok bool))
	// SetReceiveHandler installs the callback invoked for each inbound
	// frame. Passing nil detaches it.
	SetReceiveHandler(func(data []byte))
	// Close tears down the underlying transport.
	Close()
}

// Peer is a live peer-to-peer link, as tracked by an adapter's entity
// registry.
type Peer interface {
	Name() string
	Present() bool
}
