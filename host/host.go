// Package host implements the card-emulation application layer: a Host
// dispatches inbound APDUs, received through an initiator.Initiator, to a
// chain of registered Services and Apps, handling AID-based application
// selection internally.
package host

import (
	"bytes"
	"sync"

	"github.com/nfc-tools/nfcd/apdu"
	"github.com/nfc-tools/nfcd/initiator"
	"github.com/nfc-tools/nfcd/internal/nmetrics"
)

// Flags is a bitmap of App behaviors.
type Flags uint32

// AllowImplicitSelection lets an App be selected automatically, in
// registration order, once all apps have started.
const AllowImplicitSelection Flags = 1 << 0

// Status words the Host may answer with directly, without delegating to
// an App or Service.
const (
	swOK                = uint16(0x9000)
	swNoPreciseDiag     = uint16(0x6a00)
	swFileOrAppNotFound = uint16(0x6a82)
	swClassNotSupported = uint16(0x6e00)
)

const isoCLA = byte(0x00)

// Response is the answer to one APDU: a status word and an optional body.
type Response struct {
	SW   uint16
	Data []byte
}

// Service is a long-lived APDU handler that takes part in every APDU
// dispatch, independently of application selection.
type Service struct {
	Name string

	// Start is called once at Host construction. done reports whether
	// the service came up; a nil Start is treated as immediate success.
	Start func(done func(ok bool))
	// Restart is called after the initiator reactivates. A nil Restart
	// falls back to Start.
	Restart func(done func(ok bool))
	// Process handles one APDU body. Calling done with a nil Response
	// means the service declines it and the chain continues.
	Process func(data []byte, done func(resp *Response))
	// Cancel aborts whatever Start/Restart/Process call is pending, if
	// the Host is torn down or reactivated while it is in flight.
	Cancel func()
}

// App additionally participates in AID-based selection.
type App struct {
	Name  string
	AID   []byte
	Flags Flags

	Start          func(done func(ok bool))
	Restart        func(done func(ok bool))
	Select         func(done func(ok bool))
	ImplicitSelect func(done func(ok bool))
	Deselect       func(done func())
	Process        func(data []byte, done func(resp *Response))
	Cancel         func()
}

func (a *App) restart(done func(ok bool)) {
	if a.Restart != nil {
		a.Restart(done)
		return
	}
	if a.Start != nil {
		a.Start(done)
		return
	}
	done(true)
}

func (svc *Service) restart(done func(ok bool)) {
	if svc.Restart != nil {
		svc.Restart(done)
		return
	}
	if svc.Start != nil {
		svc.Start(done)
		return
	}
	done(true)
}

// processor is one link of the APDU dispatch chain. done(resp, true)
// means the link answered the APDU; done(nil, false) means it declined
// and the next link should be tried.
type processor func(data []byte, done func(resp *Response, handled bool))

type pendingOp struct {
	cancel func()
}

// Host dispatches card-emulation APDUs arriving through Initiator to a
// chain of Services and Apps.
type Host struct {
	Name      string
	Initiator *initiator.Initiator

	Apps     []*App
	Services []*Service

	OnAppChanged func(app *App)
	OnGone       func()
	Log          func(format string, args ...interface{})
	Metrics      *nmetrics.Metrics

	mu             sync.Mutex
	selected       *App
	apduInProgress bool
	nextOpID       uint64
	pending        map[uint64]*pendingOp
	chain          []processor
}

// New builds a Host over i, wires its dispatch chain, and starts the
// registration lifecycle (services, then apps, then implicit selection).
func New(name string, i *initiator.Initiator, services []*Service, apps []*App) *Host {
	h := &Host{
		Name:      name,
		Initiator: i,
		Services:  services,
		Apps:      apps,
		pending:   make(map[uint64]*pendingOp),
	}
	h.buildChain()
	i.OnTransmissionReceived = h.onTransmission
	i.OnReactivated = h.onReactivated
	i.OnGone = h.onGone

	h.startAllServices(func() {
		h.startAllApps(func() {
			h.tryImplicitSelect()
		})
	})
	return h
}

// Present reports whether the underlying initiator is still present.
func (h *Host) Present() bool {
	return h.Initiator.Present()
}

func (h *Host) logf(format string, args ...interface{}) {
	if h.Log != nil {
		h.Log(format, args...)
	}
}

// buildChain lays out [selected-app-processor if any apps exist] +
// [service-processor per service, reversed registration order].
func (h *Host) buildChain() {
	var chain []processor
	if len(h.Apps) > 0 {
		chain = append(chain, h.selectedAppProcessor)
	}
	for idx := len(h.Services) - 1; idx >= 0; idx-- {
		chain = append(chain, h.serviceProcessor(h.Services[idx]))
	}
	h.chain = chain
}

// track registers a cancelable pending operation and returns a function
// that un-registers it; calling it more than once, or after the op was
// never registered (synchronous completion before track was ever asked
// to track anything), is a harmless no-op.
func (h *Host) track(cancel func()) func() {
	h.mu.Lock()
	h.nextOpID++
	id := h.nextOpID
	h.pending[id] = &pendingOp{cancel: cancel}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.pending, id)
			h.mu.Unlock()
		})
	}
}

// cancelAllPending cancels every outstanding op at its originator and
// clears the list. Used on reactivation and on teardown.
func (h *Host) cancelAllPending() {
	h.mu.Lock()
	ops := h.pending
	h.pending = make(map[uint64]*pendingOp)
	h.mu.Unlock()
	for _, op := range ops {
		if op.cancel != nil {
			op.cancel()
		}
	}
}

func (h *Host) startAllServices(done func()) {
	runAll(len(h.Services), func(idx int, itemDone func()) {
		svc := h.Services[idx]
		if svc.Start == nil {
			itemDone()
			return
		}
		finish := h.track(svc.Cancel)
		svc.Start(func(ok bool) {
			finish()
			if !ok {
				h.logf("host %s: service %s failed to start", h.Name, svc.Name)
			}
			itemDone()
		})
	}, done)
}

func (h *Host) restartAllServices(done func()) {
	runAll(len(h.Services), func(idx int, itemDone func()) {
		svc := h.Services[idx]
		finish := h.track(svc.Cancel)
		svc.restart(func(ok bool) {
			finish()
			itemDone()
		})
	}, done)
}

func (h *Host) startAllApps(done func()) {
	runAll(len(h.Apps), func(idx int, itemDone func()) {
		app := h.Apps[idx]
		if app.Start == nil {
			itemDone()
			return
		}
		finish := h.track(app.Cancel)
		app.Start(func(ok bool) {
			finish()
			if !ok {
				h.logf("host %s: app %s failed to start", h.Name, app.Name)
			}
			itemDone()
		})
	}, done)
}

func (h *Host) restartAllApps(done func()) {
	runAll(len(h.Apps), func(idx int, itemDone func()) {
		app := h.Apps[idx]
		finish := h.track(app.Cancel)
		app.restart(func(ok bool) {
			finish()
			itemDone()
		})
	}, done)
}

// runAll invokes work for every index in [0,n) concurrently and calls
// done once every one of them has completed, however it completed.
func runAll(n int, work func(idx int, itemDone func()), done func()) {
	if n == 0 {
		done()
		return
	}
	var mu sync.Mutex
	remaining := n
	for idx := 0; idx < n; idx++ {
		work(idx, func() {
			mu.Lock()
			remaining--
			r := remaining
			mu.Unlock()
			if r == 0 {
				done()
			}
		})
	}
}

// tryImplicitSelect attempts to select, in registration order, the first
// App carrying AllowImplicitSelection; a failure falls through to the
// next such App.
func (h *Host) tryImplicitSelect() {
	h.attemptImplicitSelect(0)
}

func (h *Host) attemptImplicitSelect(from int) {
	for idx := from; idx < len(h.Apps); idx++ {
		a := h.Apps[idx]
		if a.Flags&AllowImplicitSelection == 0 || a.ImplicitSelect == nil {
			continue
		}
		finish := h.track(a.Cancel)
		a.ImplicitSelect(func(ok bool) {
			finish()
			if ok {
				h.markSelected(a)
			} else {
				h.logf("host %s: app %s failed implicit selection", h.Name, a.Name)
				h.attemptImplicitSelect(idx + 1)
			}
		})
		return
	}
}

func (h *Host) markSelected(a *App) {
	h.mu.Lock()
	h.selected = a
	h.mu.Unlock()
	if h.OnAppChanged != nil {
		h.OnAppChanged(a)
	}
}

// onReactivated cancels everything in flight and restarts services and
// apps, without attempting implicit selection again: an explicit SELECT
// now decides which app, if any, becomes current.
func (h *Host) onReactivated() {
	h.cancelAllPending()
	h.mu.Lock()
	h.selected = nil
	h.apduInProgress = false
	h.mu.Unlock()
	h.restartAllServices(func() {
		h.restartAllApps(func() {})
	})
}

func (h *Host) onGone() {
	h.cancelAllPending()
	if h.OnGone != nil {
		h.OnGone()
	}
}

// onTransmission is the Initiator's transmission-received hook. An APDU
// already in progress, or an unparseable frame, is left unhandled: the
// caller takes no reference and the Initiator's own dispatch drops it,
// which deactivates the initiator.
func (h *Host) onTransmission(tr *initiator.Transmission) {
	h.mu.Lock()
	if h.apduInProgress {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	data := tr.Data()
	c := new(apdu.CAPDU)
	if _, err := c.Unmarshal(data); err != nil {
		return
	}

	h.mu.Lock()
	h.apduInProgress = true
	h.mu.Unlock()

	tr.Ref()
	h.runChain(0, tr, c)
}

func (h *Host) runChain(idx int, tr *initiator.Transmission, c *apdu.CAPDU) {
	if idx >= len(h.chain) {
		h.handleUnprocessed(tr, c)
		return
	}
	h.chain[idx](tr.Data(), func(resp *Response, handled bool) {
		if handled {
			h.respond(tr, resp)
			return
		}
		h.runChain(idx+1, tr, c)
	})
}

// selectedAppProcessor dispatches to the currently selected app's
// Process callback, unless the inbound command is itself a SELECT by AID
// (which the Host always handles internally).
func (h *Host) selectedAppProcessor(data []byte, done func(resp *Response, handled bool)) {
	h.mu.Lock()
	sel := h.selected
	h.mu.Unlock()
	if sel == nil || sel.Process == nil || isSelectByAID(data) {
		done(nil, false)
		return
	}
	finish := h.track(sel.Cancel)
	sel.Process(data, func(resp *Response) {
		finish()
		done(resp, resp != nil)
	})
}

func (h *Host) serviceProcessor(svc *Service) processor {
	return func(data []byte, done func(resp *Response, handled bool)) {
		if svc.Process == nil {
			done(nil, false)
			return
		}
		finish := h.track(svc.Cancel)
		svc.Process(data, func(resp *Response) {
			finish()
			done(resp, resp != nil)
		})
	}
}

// handleUnprocessed runs once no processor in the chain has claimed the
// APDU: internal SELECT-by-AID handling, or a generic not-handled status
// word for anything else.
func (h *Host) handleUnprocessed(tr *initiator.Transmission, c *apdu.CAPDU) {
	if !isSelectByAIDApdu(c) {
		sw := swNoPreciseDiag
		if c.CLA != isoCLA {
			sw = swClassNotSupported
		}
		h.respond(tr, &Response{SW: sw})
		return
	}

	aid := c.Data
	app := h.appByAID(aid)
	if app == nil {
		h.respond(tr, &Response{SW: swFileOrAppNotFound})
		return
	}

	h.mu.Lock()
	already := h.selected == app
	prev := h.selected
	h.mu.Unlock()

	if already {
		h.respond(tr, &Response{SW: swOK})
		return
	}

	if prev != nil {
		h.mu.Lock()
		h.selected = nil
		h.mu.Unlock()
		if prev.Deselect != nil {
			finish := h.track(nil)
			prev.Deselect(func() { finish() })
		}
	}

	if app.Select == nil {
		h.respond(tr, &Response{SW: swNoPreciseDiag})
		return
	}
	finish := h.track(app.Cancel)
	app.Select(func(ok bool) {
		finish()
		if ok {
			h.markSelected(app)
			h.respond(tr, &Response{SW: swOK})
		} else {
			h.respond(tr, &Response{SW: swNoPreciseDiag})
		}
	})
}

func (h *Host) appByAID(aid []byte) *App {
	for _, a := range h.Apps {
		if bytes.Equal(a.AID, aid) {
			return a
		}
	}
	return nil
}

func isSelectByAID(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return data[0] == 0x00 && data[1] == apdu.INSSelect && data[2] == 0x04 && data[3] == 0x00
}

func isSelectByAIDApdu(c *apdu.CAPDU) bool {
	return c.CLA == 0x00 && c.INS == apdu.INSSelect && c.P1 == 0x04 && c.P2 == 0x00
}

// respond assembles body‖SW and hands it to the Transmission, then frees
// the Host to accept the next APDU.
func (h *Host) respond(tr *initiator.Transmission, resp *Response) {
	h.mu.Lock()
	h.apduInProgress = false
	h.mu.Unlock()

	sw := swNoPreciseDiag
	var data []byte
	if resp != nil {
		sw = resp.SW
		data = resp.Data
	}
	h.Metrics.RecordHostAPDU(statusClass(sw))
	buf := make([]byte, 0, len(data)+2)
	buf = append(buf, data...)
	buf = append(buf, byte(sw>>8), byte(sw))
	_ = tr.Respond(buf, nil)
	tr.Unref()
}

func statusClass(sw uint16) string {
	switch sw {
	case swOK:
		return "success"
	case swFileOrAppNotFound:
		return "not_found"
	case swClassNotSupported:
		return "class_not_supported"
	default:
		return "error"
	}
}
