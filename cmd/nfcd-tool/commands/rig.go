package commands

import (
	"errors"
	"fmt"

	"github.com/nfc-tools/nfcd/adapter"
	"github.com/nfc-tools/nfcd/drivers/dummy"
	driverserial "github.com/nfc-tools/nfcd/drivers/serial"
	"github.com/nfc-tools/nfcd/internal/nlog"
	"github.com/nfc-tools/nfcd/target"
)

// buildTarget constructs a target.Target over the driver selected by
// Flags.Driver, with the configured timeouts and logging applied.
// cleanup releases whatever the driver opened and must be called once
// the command is done with the target.
func buildTarget() (t *target.Target, cleanup func(), err error) {
	switch Flags.Driver {
	case "dummy":
		d := &dummy.Driver{Responses: [][]byte{{0x90, 0x00}}}
		return configure(target.New("dummy0", d)), func() {}, nil
	case "serial":
		if Flags.SerialPort == "" {
			return nil, nil, errors.New("--serial-port is required for --driver=serial")
		}
		d := &driverserial.Driver{Port: Flags.SerialPort, ResetPin: Flags.ResetPin}
		if err := d.Open(); err != nil {
			return nil, nil, err
		}
		return configure(target.New("serial0", d)), func() { d.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q (want dummy or serial)", Flags.Driver)
	}
}

func configure(t *target.Target) *target.Target {
	t.RequestTimeout = cfg.Timeouts.TargetRequest
	t.ReactivationTimeout = cfg.Timeouts.Reactivation
	t.Metrics = metrics
	t.Log = func(format string, args ...interface{}) {
		nlog.Debug(fmt.Sprintf(format, args...))
	}
	return t
}

// buildAdapter wraps t in a freshly registered Adapter, so the
// introspection commands have something to report on. The adapter
// itself is never asked to power on: power/mode are this tool's
// driver's business, not the generic adapter.Driver's.
func buildAdapter(t *target.Target) *adapter.Adapter {
	a := adapter.New(Flags.Driver, noopAdapterDriver{})
	a.Metrics = metrics
	a.SupportedModes = adapter.ModePollA
	_, _ = a.AddTag(&adapter.TagHandle{Target: t})
	return a
}

type noopAdapterDriver struct{}

func (noopAdapterDriver) SubmitPowerRequest(a *adapter.Adapter, on bool) bool { return false }
func (noopAdapterDriver) CancelPowerRequest(a *adapter.Adapter)               {}
func (noopAdapterDriver) SubmitModeRequest(a *adapter.Adapter, mask adapter.Mode) bool {
	return false
}
func (noopAdapterDriver) CancelModeRequest(a *adapter.Adapter) {}
