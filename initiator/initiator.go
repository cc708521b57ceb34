// Package initiator implements the "we are card, remote is reader" side of
// the core: an Initiator accepts one inbound transmission at a time and
// coordinates the single in-flight reply through a Transmission handle.
package initiator

import (
	"errors"
	"sync"
)

// State is one of the four states an Initiator can be in.
type State int

// Initiator states.
const (
	StateIdle State = iota
	StateAwaitingResponse
	StateResponseInFlight
	StateQueued
)

// String provides a readable representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateResponseInFlight:
		return "ResponseInFlight"
	case StateQueued:
		return "Queued"
	default:
		return "Unknown"
	}
}

// Errors returned by Transmission.Respond.
var (
	ErrAlreadyResponded = errors.New("initiator: transmission already responded to")
	ErrInitiatorGone    = errors.New("initiator: owning initiator is gone")
	ErrNotCurrent       = errors.New("initiator: transmission is no longer current")
)

// Driver is the boundary to the radio hardware for the card-emulation
// direction.
type Driver interface {
	// Respond starts sending data as the reply to the current
	// transmission. Returns false if the driver could not begin sending.
	Respond(i *Initiator, data []byte) bool
	// Deactivate requests RF deactivation; the driver eventually calls Gone.
	Deactivate(i *Initiator)
}

// Transmission is one inbound command awaiting a response. It is
// refcounted because a handler's completion callback may run after the
// handler itself has returned, past the point where the inbound-frame
// dispatch loop drops its own reference.
type Transmission struct {
	mu        sync.Mutex
	owner     *Initiator
	responded bool
	refs      int
	data      []byte
}

// Data returns the inbound command bytes.
func (tr *Transmission) Data() []byte {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.data
}

// Ref increments the Transmission's refcount.
func (tr *Transmission) Ref() *Transmission {
	tr.mu.Lock()
	tr.refs++
	tr.mu.Unlock()
	return tr
}

// Unref drops a reference. If the last reference is dropped without
// Respond having been called and the owning Initiator is still alive, the
// Initiator deactivates.
func (tr *Transmission) Unref() {
	tr.mu.Lock()
	tr.refs--
	refs := tr.refs
	responded := tr.responded
	owner := tr.owner
	tr.mu.Unlock()
	if refs == 0 && !responded && owner != nil {
		owner.deactivate("transmission dropped without responding")
	}
}

// Respond sends data as the reply to this transmission. callback, if
// non-nil, is invoked once the driver confirms (or fails to confirm) that
// the response left the antenna. Respond may be called at most once.
func (tr *Transmission) Respond(data []byte, callback func(ok bool)) error {
	tr.mu.Lock()
	if tr.responded {
		tr.mu.Unlock()
		return ErrAlreadyResponded
	}
	tr.responded = true
	owner := tr.owner
	tr.mu.Unlock()
	if owner == nil {
		return ErrInitiatorGone
	}
	return owner.respond(tr, data, callback)
}

// Initiator is a handle to a remote reader.
type Initiator struct {
	Name   string
	Driver Driver
	Log    func(format string, args ...interface{})

	OnTransmissionReceived func(tr *Transmission)
	OnReactivated          func()
	OnGone                 func()

	mu               sync.Mutex
	present          bool
	state            State
	current          *Transmission
	queuedNext       *Transmission
	queuedData       []byte
	responseCallback func(ok bool)
}

// New returns a present Initiator using the given Driver.
func New(name string, driver Driver) *Initiator {
	return &Initiator{
		Name:    name,
		Driver:  driver,
		present: true,
		state:   StateIdle,
	}
}

// Present reports whether the initiator is still believed present.
func (i *Initiator) Present() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.present
}

// State returns the initiator's current state.
func (i *Initiator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Initiator) logf(format string, args ...interface{}) {
	if i.Log != nil {
		i.Log(format, args...)
	}
}

// Transmit is called by the driver when an inbound frame arrives from the
// remote reader.
func (i *Initiator) Transmit(data []byte) {
	i.mu.Lock()
	switch i.state {
	case StateIdle:
		buf := make([]byte, len(data))
		copy(buf, data)
		tr := &Transmission{owner: i, refs: 1, data: buf}
		i.state = StateAwaitingResponse
		i.current = tr
		cb := i.OnTransmissionReceived
		i.mu.Unlock()
		if cb == nil {
			i.deactivate("no handler registered for inbound transmission")
			return
		}
		cb(tr)
		tr.Unref()
	case StateAwaitingResponse:
		i.mu.Unlock()
		i.deactivate("stray frame while awaiting response")
	case StateResponseInFlight:
		buf := make([]byte, len(data))
		copy(buf, data)
		tr := &Transmission{owner: i, refs: 1}
		i.queuedNext = tr
		i.queuedData = buf
		i.state = StateQueued
		i.mu.Unlock()
	case StateQueued:
		i.mu.Unlock()
		i.deactivate("second inbound frame while a response is already queued")
	}
}

func (i *Initiator) respond(tr *Transmission, data []byte, callback func(ok bool)) error {
	i.mu.Lock()
	if i.current != tr {
		i.mu.Unlock()
		return ErrNotCurrent
	}
	i.state = StateResponseInFlight
	// Stored before the driver is asked to send: an in-process driver
	// may confirm via ResponseSent before Respond returns.
	i.responseCallback = callback
	i.mu.Unlock()

	ok := i.Driver.Respond(i, data)
	if !ok {
		i.mu.Lock()
		i.responseCallback = nil
		i.mu.Unlock()
		if callback != nil {
			callback(false)
		}
		i.deactivate("driver rejected response submission")
		return nil
	}
	return nil
}

// ResponseSent is called by the driver once the previously submitted
// response has left the antenna (or failed to).
func (i *Initiator) ResponseSent(ok bool) {
	i.mu.Lock()
	if i.state != StateResponseInFlight && i.state != StateQueued {
		i.mu.Unlock()
		return
	}
	cb := i.responseCallback
	i.responseCallback = nil
	queuedNext := i.queuedNext
	queuedData := i.queuedData
	i.queuedNext = nil
	i.queuedData = nil

	if queuedNext != nil {
		queuedNext.data = queuedData
		i.current = queuedNext
		i.state = StateAwaitingResponse
	} else {
		i.current = nil
		i.state = StateIdle
	}
	onReceived := i.OnTransmissionReceived
	i.mu.Unlock()

	if cb != nil {
		cb(ok)
	}

	if queuedNext == nil {
		return
	}
	if onReceived == nil {
		i.deactivate("no handler registered for queued transmission")
		return
	}
	onReceived(queuedNext)
	queuedNext.Unref()
}

func (i *Initiator) deactivate(reason string) {
	i.logf("initiator %s: deactivating (%s)", i.Name, reason)
	i.Driver.Deactivate(i)
}

// Gone marks the initiator as no longer present. It is one-way and
// idempotent.
func (i *Initiator) Gone() {
	i.mu.Lock()
	if !i.present {
		i.mu.Unlock()
		return
	}
	i.present = false
	cur := i.current
	queued := i.queuedNext
	i.current = nil
	i.queuedNext = nil
	i.queuedData = nil
	i.state = StateIdle
	goneCB := i.OnGone
	i.mu.Unlock()

	if cur != nil {
		cur.mu.Lock()
		cur.owner = nil
		cur.mu.Unlock()
	}
	if queued != nil {
		queued.mu.Lock()
		queued.owner = nil
		queued.mu.Unlock()
	}
	if goneCB != nil {
		goneCB()
	}
}

// Reactivated is called by the driver when the RF field has been
// re-presented to the initiator without it ever going away: the remote
// reader reselected it from scratch. Any transmission in flight is
// dropped without notifying its owner of a response, and the state
// machine resets to Idle.
func (i *Initiator) Reactivated() {
	i.mu.Lock()
	if !i.present {
		i.mu.Unlock()
		return
	}
	cur := i.current
	queued := i.queuedNext
	i.current = nil
	i.queuedNext = nil
	i.queuedData = nil
	i.responseCallback = nil
	i.state = StateIdle
	cb := i.OnReactivated
	i.mu.Unlock()

	if cur != nil {
		cur.mu.Lock()
		cur.owner = nil
		cur.mu.Unlock()
	}
	if queued != nil {
		queued.mu.Lock()
		queued.owner = nil
		queued.mu.Unlock()
	}
	if cb != nil {
		cb()
	}
}
