package peer

import (
	"sync"

	"github.com/nfc-tools/nfcd/initiator"
	"github.com/nfc-tools/nfcd/target"
)

// TargetIO adapts a target.Target to the IO interface for the polling
// side of a peer link: each outbound frame is submitted as a request,
// and the remote's answer to it is delivered as the next inbound frame.
type TargetIO struct {
	target *target.Target

	mu      sync.Mutex
	receive func(data []byte)
}

// NewTargetIO wraps t for use as a peer link transport.
func NewTargetIO(t *target.Target) *TargetIO {
	return &TargetIO{target: t}
}

// Name returns the underlying target's name.
func (io *TargetIO) Name() string { return io.target.Name }

// Present reports whether the underlying target is still present.
func (io *TargetIO) Present() bool { return io.target.Present() }

// Send transmits one frame. The response frame, if any, reaches the
// receive handler before done reports delivery.
func (io *TargetIO) Send(data []byte, done func(ok bool)) {
	_, err := io.target.Submit(data, nil, func(st target.Status, resp []byte) {
		if st != target.StatusOK {
			if done != nil {
				done(false)
			}
			return
		}
		io.mu.Lock()
		receive := io.receive
		io.mu.Unlock()
		if receive != nil && len(resp) > 0 {
			receive(resp)
		}
		if done != nil {
			done(true)
		}
	})
	if err != nil && done != nil {
		done(false)
	}
}

// SetReceiveHandler installs the inbound-frame callback.
func (io *TargetIO) SetReceiveHandler(handler func(data []byte)) {
	io.mu.Lock()
	io.receive = handler
	io.mu.Unlock()
}

// Close deactivates the RF link.
func (io *TargetIO) Close() {
	io.target.Deactivate()
}

// InitiatorIO adapts an initiator.Initiator to the IO interface for the
// polled side of a peer link: inbound frames arrive as transmissions,
// and Send answers the most recent one.
type InitiatorIO struct {
	initiator *initiator.Initiator

	mu      sync.Mutex
	receive func(data []byte)
	current *initiator.Transmission
}

// NewInitiatorIO wraps i for use as a peer link transport, taking over
// its transmission-received hook.
func NewInitiatorIO(i *initiator.Initiator) *InitiatorIO {
	io := &InitiatorIO{initiator: i}
	i.OnTransmissionReceived = io.onTransmission
	return io
}

// Name returns the underlying initiator's name.
func (io *InitiatorIO) Name() string { return io.initiator.Name }

// Present reports whether the underlying initiator is still present.
func (io *InitiatorIO) Present() bool { return io.initiator.Present() }

func (io *InitiatorIO) onTransmission(tr *initiator.Transmission) {
	io.mu.Lock()
	io.current = tr.Ref()
	receive := io.receive
	io.mu.Unlock()
	if receive != nil {
		receive(tr.Data())
	}
}

// Send answers the pending inbound frame. It reports false through done
// if no frame is pending or the response could not be submitted.
func (io *InitiatorIO) Send(data []byte, done func(ok bool)) {
	io.mu.Lock()
	tr := io.current
	io.current = nil
	io.mu.Unlock()
	if tr == nil {
		if done != nil {
			done(false)
		}
		return
	}
	err := tr.Respond(data, func(ok bool) {
		if done != nil {
			done(ok)
		}
	})
	tr.Unref()
	if err != nil && done != nil {
		done(false)
	}
}

// SetReceiveHandler installs the inbound-frame callback.
func (io *InitiatorIO) SetReceiveHandler(handler func(data []byte)) {
	io.mu.Lock()
	io.receive = handler
	io.mu.Unlock()
}

// Close drops any pending transmission unanswered, which deactivates
// the link at the initiator.
func (io *InitiatorIO) Close() {
	io.mu.Lock()
	tr := io.current
	io.current = nil
	io.mu.Unlock()
	if tr != nil {
		tr.Unref()
	}
}
