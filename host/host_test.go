package host

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfc-tools/nfcd/initiator"
	"github.com/nfc-tools/nfcd/internal/nmetrics"
)

type recordingDriver struct {
	responses     [][]byte
	deactivations int
}

func (d *recordingDriver) Respond(i *initiator.Initiator, data []byte) bool {
	d.responses = append(d.responses, data)
	// Confirm immediately, as an in-process driver with no antenna
	// latency would.
	i.ResponseSent(true)
	return true
}

func (d *recordingDriver) Deactivate(i *initiator.Initiator) {
	d.deactivations++
}

func newTestInitiator() (*initiator.Initiator, *recordingDriver) {
	drv := &recordingDriver{}
	return initiator.New("host0", drv), drv
}

func selectByAID(aid []byte) []byte {
	return append([]byte{0x00, 0xA4, 0x04, 0x00, byte(len(aid))}, aid...)
}

func TestServiceProcessesAPDU(t *testing.T) {
	i, drv := newTestInitiator()
	svc := &Service{
		Name: "svc",
		Process: func(data []byte, done func(resp *Response)) {
			done(&Response{SW: 0x9000, Data: []byte{0xAA}})
		},
	}
	New("host0", i, []*Service{svc}, nil)

	i.Transmit([]byte{0x80, 0x10, 0x00, 0x00})
	require.Len(t, drv.responses, 1)
	assert.Equal(t, []byte{0xAA, 0x90, 0x00}, drv.responses[0])
}

func TestServiceDeclinesFallsThroughToUnhandled(t *testing.T) {
	i, drv := newTestInitiator()
	svc := &Service{
		Name: "svc",
		Process: func(data []byte, done func(resp *Response)) {
			done(nil)
		},
	}
	New("host0", i, []*Service{svc}, nil)

	i.Transmit([]byte{0x00, 0x10, 0x00, 0x00})
	require.Len(t, drv.responses, 1)
	assert.Equal(t, []byte{0x6a, 0x00}, drv.responses[0])
}

func TestUnhandledNonZeroCLAGetsClassNotSupported(t *testing.T) {
	i, drv := newTestInitiator()
	New("host0", i, nil, nil)

	i.Transmit([]byte{0x80, 0x10, 0x00, 0x00})
	require.Len(t, drv.responses, 1)
	assert.Equal(t, []byte{0x6e, 0x00}, drv.responses[0])
}

func TestSelectByAIDWithNonZeroCLAGetsClassNotSupported(t *testing.T) {
	i, drv := newTestInitiator()
	app1 := newApp("app1", 0x01)
	New("host0", i, nil, []*App{app1})

	// INS/P1/P2 match SELECT-by-AID, but CLA is non-zero: must not be
	// routed into AID selection, and must not select app1.
	i.Transmit([]byte{0x80, 0xA4, 0x04, 0x00, 0x01, 0x01})
	require.Len(t, drv.responses, 1)
	assert.Equal(t, []byte{0x6e, 0x00}, drv.responses[0])
}

func newApp(name string, aid byte) *App {
	var selected bool
	return &App{
		Name: name,
		AID:  []byte{aid},
		Select: func(done func(ok bool)) {
			selected = true
			done(true)
		},
		Deselect: func(done func()) {
			selected = false
			done()
		},
		Process: func(data []byte, done func(resp *Response)) {
			if !selected {
				done(nil)
				return
			}
			done(&Response{SW: 0x9000, Data: []byte{aid}})
		},
	}
}

func TestSelectByAIDThenDeselectOnSwitch(t *testing.T) {
	i, drv := newTestInitiator()
	var deselected int
	app1 := newApp("app1", 0x01)
	app1.Deselect = func(done func()) { deselected++; done() }
	app2 := newApp("app2", 0x02)

	h := New("host0", i, nil, []*App{app1, app2})

	i.Transmit(selectByAID([]byte{0x01}))
	require.Len(t, drv.responses, 1)
	assert.Equal(t, []byte{0x90, 0x00}, drv.responses[0])
	assert.Equal(t, app1, h.selected)

	// Re-selecting the same app answers OK without calling Select again.
	i.Transmit(selectByAID([]byte{0x01}))
	require.Len(t, drv.responses, 2)
	assert.Equal(t, []byte{0x90, 0x00}, drv.responses[1])

	i.Transmit(selectByAID([]byte{0x02}))
	require.Len(t, drv.responses, 3)
	assert.Equal(t, []byte{0x90, 0x00}, drv.responses[2])
	assert.Equal(t, app2, h.selected)
	assert.Equal(t, 1, deselected)
}

func TestSelectUnknownAIDReturnsNotFound(t *testing.T) {
	i, drv := newTestInitiator()
	app1 := newApp("app1", 0x01)
	New("host0", i, nil, []*App{app1})

	i.Transmit(selectByAID([]byte{0xff}))
	require.Len(t, drv.responses, 1)
	assert.Equal(t, []byte{0x6a, 0x82}, drv.responses[0])
}

func TestSelectedAppProcessesSubsequentAPDUs(t *testing.T) {
	i, drv := newTestInitiator()
	app1 := newApp("app1", 0x01)
	New("host0", i, nil, []*App{app1})

	i.Transmit(selectByAID([]byte{0x01}))
	i.Transmit([]byte{0x80, 0x10, 0x00, 0x00})
	require.Len(t, drv.responses, 2)
	assert.Equal(t, []byte{0x01, 0x90, 0x00}, drv.responses[1])
}

func TestImplicitSelectionOnConstruction(t *testing.T) {
	i, _ := newTestInitiator()
	app1 := newApp("app1", 0x01)
	app1.Flags = AllowImplicitSelection
	app1.ImplicitSelect = func(done func(ok bool)) { done(true) }

	h := New("host0", i, nil, []*App{app1})
	assert.Equal(t, app1, h.selected)
}

func TestImplicitSelectionFallsThroughOnFailure(t *testing.T) {
	i, _ := newTestInitiator()
	app1 := newApp("app1", 0x01)
	app1.Flags = AllowImplicitSelection
	app1.ImplicitSelect = func(done func(ok bool)) { done(false) }

	app2 := newApp("app2", 0x02)
	app2.Flags = AllowImplicitSelection
	app2.ImplicitSelect = func(done func(ok bool)) { done(true) }

	h := New("host0", i, nil, []*App{app1, app2})
	assert.Equal(t, app2, h.selected)
}

func TestReactivationClearsSelectionWithoutReselecting(t *testing.T) {
	i, _ := newTestInitiator()
	var restarted int
	app1 := newApp("app1", 0x01)
	app1.Flags = AllowImplicitSelection
	app1.ImplicitSelect = func(done func(ok bool)) { done(true) }
	app1.Restart = func(done func(ok bool)) { restarted++; done(true) }

	h := New("host0", i, nil, []*App{app1})
	require.Equal(t, app1, h.selected)

	i.Reactivated()
	assert.Nil(t, h.selected)
	assert.Equal(t, 1, restarted)
}

func TestMetricsRecordAPDUsByStatusClass(t *testing.T) {
	m := nmetrics.New(prometheus.NewRegistry())
	i, _ := newTestInitiator()
	app1 := newApp("app1", 0x01)
	h := New("host0", i, nil, []*App{app1})
	h.Metrics = m

	i.Transmit(selectByAID([]byte{0x01})) // success
	i.Transmit(selectByAID([]byte{0xff})) // not found

	counter := func(class string) float64 {
		var out dto.Metric
		require.NoError(t, m.HostAPDUsProcessed.WithLabelValues(class).Write(&out))
		return out.GetCounter().GetValue()
	}
	assert.Equal(t, 1.0, counter("success"))
	assert.Equal(t, 1.0, counter("not_found"))
}

func TestGoneCancelsPendingOpsAndFiresCallback(t *testing.T) {
	i, _ := newTestInitiator()
	var canceled bool
	svc := &Service{
		Name: "svc",
		Start: func(done func(ok bool)) {
			// never completes on its own; Cancel is the only way out.
		},
		Cancel: func() { canceled = true },
	}
	h := New("host0", i, []*Service{svc}, nil)

	var gone bool
	h.OnGone = func() { gone = true }
	i.Gone()

	assert.True(t, canceled)
	assert.True(t, gone)
}
