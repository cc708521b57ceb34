//go:build libnfc

/***
    Copyright (c) 2016, Hector Sanjuan

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU Lesser General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU Lesser General Public License for more details.

    You should have received a copy of the GNU Lesser General Public License
    along with this program.  If not, see <http://www.gnu.org/licenses/>.
***/

// Package libnfc implements target.Driver over real libnfc-supported
// reader hardware, with the device put into Target mode so that it
// behaves like a tag towards an external reader. Building this package
// requires libnfc and cgo, so it is only compiled in with the "libnfc"
// build tag.
package libnfc

import (
	"errors"
	"fmt"

	"github.com/clausecker/nfc/v2"

	"github.com/nfc-tools/nfcd/target"
)

// Driver puts a libnfc device into Target mode and relays frames
// to/from it on behalf of a target.Target.
type Driver struct {
	Modulation   nfc.Modulation
	DeviceNumber int

	device     *nfc.Device
	deviceList []string
}

// Open detects available libnfc devices, selects DeviceNumber, and
// puts it into Target mode using Modulation (ISO14443-A at 212kbps if
// left zero). It must be called before the driver is attached to a
// target.Target.
func (d *Driver) Open() error {
	if d.Modulation == (nfc.Modulation{}) {
		d.Modulation = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr212}
	}

	deviceList, err := nfc.ListDevices()
	if err != nil {
		return fmt.Errorf("libnfc.Driver.Open: listing devices: %w", err)
	}
	d.deviceList = deviceList

	if len(deviceList) == 0 {
		return errors.New("libnfc.Driver.Open: no libnfc devices detected")
	}
	if len(deviceList) <= d.DeviceNumber {
		return fmt.Errorf("libnfc.Driver.Open: no device %d", d.DeviceNumber)
	}

	device, err := nfc.Open(deviceList[d.DeviceNumber])
	if err != nil {
		return fmt.Errorf("libnfc.Driver.Open: %w", err)
	}
	d.device = &device
	return nil
}

// String reports libnfc's version and the detected device list.
func (d *Driver) String() string {
	str := fmt.Sprintf("libnfc %s\n", nfc.Version())
	str += "Detected devices:\n"
	for i, dev := range d.deviceList {
		str += fmt.Sprintf("  * [%d] %s\n", i, dev)
	}
	return str
}

// Transmit relays data to the reader and blocks on the device until a
// response or a target-mode error arrives, then reports the outcome
// to t asynchronously. Runs in its own goroutine: libnfc's target-mode
// transceive call blocks for the duration of the exchange, and t's
// Submit must not be held up waiting for it.
func (d *Driver) Transmit(t *target.Target, data []byte) bool {
	if d.device == nil {
		return false
	}
	go func() {
		rx := make([]byte, 4096)
		n, err := d.device.TargetSend(data, rx, -1)
		if err != nil {
			t.TransmitDone(target.StatusError, nil)
			return
		}
		t.TransmitDone(target.StatusOK, rx[:n])
	}()
	return true
}

// CancelTransmit has no libnfc-level equivalent; the in-flight call
// runs its course and reports through Transmit's own goroutine.
func (d *Driver) CancelTransmit(t *target.Target) {}

// Deactivate closes the device, which drops the RF field.
func (d *Driver) Deactivate(t *target.Target) {
	go func() {
		d.Close()
		t.Gone()
	}()
}

// Reactivate is not supported by this driver: dropping back into
// Target mode after deactivation requires a fresh Open.
func (d *Driver) Reactivate(t *target.Target) bool { return false }

// Close shuts down the underlying libnfc device.
func (d *Driver) Close() {
	if d.device != nil {
		d.device.Close()
	}
}
