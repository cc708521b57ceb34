// Package adapter implements the supervisor that sits above the Target,
// Initiator, and Host engines: a power/mode state machine feeding a
// physical radio, and the entity registries (Tags, Peers, Hosts) that
// track what the radio currently sees.
package adapter

import (
	"sync"

	"github.com/nfc-tools/nfcd/host"
	"github.com/nfc-tools/nfcd/internal/nmetrics"
	"github.com/nfc-tools/nfcd/peer"
	"github.com/nfc-tools/nfcd/tag2"
	"github.com/nfc-tools/nfcd/tag4"
	"github.com/nfc-tools/nfcd/target"
)

// Mode is a bitmap of the RF technology/direction combinations an
// adapter can run in.
type Mode uint32

// Supported modes.
const (
	ModePollA Mode = 1 << iota
	ModePollB
	ModePollF
	ModeListenA
	ModeListenB
	ModeListenF
	ModeCardEmulationA
	ModeCardEmulationB
)

// Driver is the boundary to the physical radio for power and mode
// transitions.
type Driver interface {
	// SubmitPowerRequest asks the driver to bring power to on. Returns
	// false if the driver could not even begin the attempt.
	SubmitPowerRequest(a *Adapter, on bool) bool
	// CancelPowerRequest aborts an in-flight power request.
	CancelPowerRequest(a *Adapter)
	// SubmitModeRequest asks the driver to switch to mode mask. Returns
	// false if the driver could not even begin the attempt.
	SubmitModeRequest(a *Adapter, mask Mode) bool
	// CancelModeRequest aborts an in-flight mode request.
	CancelModeRequest(a *Adapter)
}

// TagHandle is one registered tag: the underlying Target plus whichever
// concrete tag driver has been built on top of it.
type TagHandle struct {
	Target *target.Target
	Type2  *tag2.Tag
	Type4  *tag4.Tag
}

// Present reports whether the underlying target is still present.
func (h *TagHandle) Present() bool {
	return h.Target.Present()
}

// Adapter is the supervisor for one physical or virtual radio: its
// power/mode state and the live Tags, Peers, and Hosts it currently
// sees.
type Adapter struct {
	Name    string
	Driver  Driver
	Metrics *nmetrics.Metrics

	SupportedModes        Mode
	SupportedTechnologies Mode

	OnPoweredChanged       func(powered bool)
	OnPowerRequested       func(requested bool)
	OnModeChanged          func(mode Mode)
	OnModeRequested        func(mode Mode)
	OnTargetPresentChanged func(present bool)
	OnTagAdded             func(name string, h *TagHandle)
	OnTagRemoved           func(name string)
	OnPeerAdded            func(name string, p peer.Peer)
	OnPeerRemoved          func(name string)
	OnHostAdded            func(name string, h *host.Host)
	OnHostRemoved          func(name string)

	Tags   *Registry[*TagHandle]
	Peers  *Registry[peer.Peer]
	Hosts  *Registry[*host.Host]
	Params *ParameterRegistry

	mu                sync.Mutex
	enabled           bool
	powered           bool
	poweredRequested  bool
	powerPending      bool
	mode              Mode
	modePending       bool
	lastRequestedMode Mode
	targetPresent     bool
}

// New returns an enabled, unpowered Adapter driven by driver.
func New(name string, driver Driver) *Adapter {
	return &Adapter{
		Name:    name,
		Driver:  driver,
		enabled: true,
		Tags:    NewRegistry[*TagHandle]("tag", (*TagHandle).Present),
		Peers:   NewRegistry[peer.Peer]("peer", peer.Peer.Present),
		Hosts:   NewRegistry[*host.Host]("host", (*host.Host).Present),
		Params:  NewParameterRegistry(nil),
	}
}

// Enabled reports whether external policy currently allows this adapter
// to request power.
func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Powered reports the last known hardware power state.
func (a *Adapter) Powered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.powered
}

// CurrentMode reports the last known hardware mode.
func (a *Adapter) CurrentMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// TargetPresent reports whether at least one Tag, Peer, or Host is
// currently registered.
func (a *Adapter) TargetPresent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.targetPresent
}

// SetEnabled toggles external policy. Disabling while a power-up is in
// flight cancels it at the driver.
func (a *Adapter) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	pending := a.powerPending
	if !enabled {
		a.powerPending = false
	}
	a.mu.Unlock()
	if !enabled && pending {
		a.Driver.CancelPowerRequest(a)
	}
}

// RequestPower asks the adapter to power on or off. Requests are only
// submitted to the driver while the adapter is enabled. A request
// already in flight for a different target state is overridden; one for
// the same target state is a no-op success.
func (a *Adapter) RequestPower(on bool) bool {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return false
	}
	if a.powerPending && a.poweredRequested == on {
		a.mu.Unlock()
		return true
	}
	overriding := a.powerPending
	a.poweredRequested = on
	a.powerPending = true
	a.mu.Unlock()

	if overriding {
		a.Driver.CancelPowerRequest(a)
	}
	ok := a.Driver.SubmitPowerRequest(a, on)
	if !ok {
		a.mu.Lock()
		a.powerPending = false
		a.mu.Unlock()
		return false
	}
	if a.OnPowerRequested != nil {
		a.OnPowerRequested(on)
	}
	return true
}

// PowerNotify is called by the driver when the power state settles,
// successfully or not. A failed power-on leaves Powered and the
// requested flag both false.
func (a *Adapter) PowerNotify(powered bool) {
	a.mu.Lock()
	changed := a.powered != powered
	a.powered = powered
	a.powerPending = false
	if !powered {
		a.poweredRequested = false
		a.mode = 0
	}
	a.mu.Unlock()

	if changed {
		state := "off"
		if powered {
			state = "on"
		}
		a.Metrics.RecordPowerEvent(state)
		if a.OnPoweredChanged != nil {
			a.OnPoweredChanged(powered)
		}
	}
	if powered {
		a.reapplyMode()
	}
}

// RequestMode asks for mask to become the active mode. mask must be a
// subset of SupportedModes. The request is recorded regardless of power
// state but is only pushed to the driver while powered; regaining power
// re-applies the last requested mode.
func (a *Adapter) RequestMode(mask Mode) bool {
	a.mu.Lock()
	if mask & ^a.SupportedModes != 0 {
		a.mu.Unlock()
		return false
	}
	a.lastRequestedMode = mask
	if !a.powered {
		a.mu.Unlock()
		return true
	}
	overriding := a.modePending
	a.modePending = true
	a.mu.Unlock()

	if overriding {
		a.Driver.CancelModeRequest(a)
	}
	ok := a.Driver.SubmitModeRequest(a, mask)
	if !ok {
		a.mu.Lock()
		a.modePending = false
		a.mu.Unlock()
	}
	return ok
}

// ModeNotify is called by the driver when the active mode settles.
func (a *Adapter) ModeNotify(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.modePending = false
	a.mu.Unlock()

	if changed && a.OnModeChanged != nil {
		a.OnModeChanged(mode)
	}
	if a.OnModeRequested != nil {
		a.OnModeRequested(mode)
	}
}

func (a *Adapter) reapplyMode() {
	a.mu.Lock()
	mask := a.lastRequestedMode
	a.mu.Unlock()
	if mask != 0 {
		a.RequestMode(mask)
	}
}

// AddTag registers h and wires its Target's Gone notification to remove
// it again.
func (a *Adapter) AddTag(h *TagHandle) (string, error) {
	name, err := a.Tags.Add(h)
	if err != nil {
		return "", err
	}
	h.Target.OnGone = func() { a.RemoveTag(name) }
	a.updateTargetPresent()
	if a.OnTagAdded != nil {
		a.OnTagAdded(name, h)
	}
	return name, nil
}

// RemoveTag drops the tag registered under name.
func (a *Adapter) RemoveTag(name string) bool {
	_, ok := a.Tags.Remove(name)
	if !ok {
		return false
	}
	a.updateTargetPresent()
	if a.OnTagRemoved != nil {
		a.OnTagRemoved(name)
	}
	return true
}

// AddPeer registers p.
func (a *Adapter) AddPeer(p peer.Peer) (string, error) {
	name, err := a.Peers.Add(p)
	if err != nil {
		return "", err
	}
	a.updateTargetPresent()
	if a.OnPeerAdded != nil {
		a.OnPeerAdded(name, p)
	}
	return name, nil
}

// RemovePeer drops the peer registered under name.
func (a *Adapter) RemovePeer(name string) bool {
	_, ok := a.Peers.Remove(name)
	if !ok {
		return false
	}
	a.updateTargetPresent()
	if a.OnPeerRemoved != nil {
		a.OnPeerRemoved(name)
	}
	return true
}

// AddHost registers h and wires its gone event to remove it again. The
// host's own Initiator.OnGone wiring stays in place: the host cancels
// its pending operations first and then raises this event.
func (a *Adapter) AddHost(h *host.Host) (string, error) {
	name, err := a.Hosts.Add(h)
	if err != nil {
		return "", err
	}
	h.OnGone = func() { a.RemoveHost(name) }
	a.updateTargetPresent()
	if a.OnHostAdded != nil {
		a.OnHostAdded(name, h)
	}
	return name, nil
}

// RemoveHost drops the host registered under name.
func (a *Adapter) RemoveHost(name string) bool {
	_, ok := a.Hosts.Remove(name)
	if !ok {
		return false
	}
	a.updateTargetPresent()
	if a.OnHostRemoved != nil {
		a.OnHostRemoved(name)
	}
	return true
}

func (a *Adapter) updateTargetPresent() {
	count := a.Tags.Len() + a.Peers.Len() + a.Hosts.Len()
	present := count > 0
	a.mu.Lock()
	changed := present != a.targetPresent
	a.targetPresent = present
	a.mu.Unlock()
	a.Metrics.SetTargetsPresent(count)
	if changed && a.OnTargetPresentChanged != nil {
		a.OnTargetPresentChanged(present)
	}
}
