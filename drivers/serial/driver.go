// Package serial implements target.Driver over a serial-attached NFC
// reader, framing each transmission as a 2-byte big-endian length
// prefix followed by the payload, and optionally driving a GPIO reset
// line that holds the reader out of reset while the port is open.
package serial

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	tarmserial "github.com/tarm/serial"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/nfc-tools/nfcd/target"
)

// Driver talks to one serial-attached reader. Only one transmission
// may be in flight at a time, matching the single physical link.
type Driver struct {
	Port string
	Baud int
	// ResetPin is a periph pin name (e.g. "GPIO6") driven high to hold
	// the reader out of reset and low on Close. Left empty, no GPIO is
	// touched.
	ResetPin string

	conn     io.ReadWriteCloser
	resetPin gpio.PinIO

	mu      sync.Mutex
	pending *target.Target
}

// Open opens the serial port and, if ResetPin is set, the GPIO line,
// then starts the background frame reader. It must be called before
// the driver is attached to a target.Target.
func (d *Driver) Open() error {
	if d.Baud == 0 {
		d.Baud = 115200
	}
	conn, err := tarmserial.OpenPort(&tarmserial.Config{Name: d.Port, Baud: d.Baud})
	if err != nil {
		return fmt.Errorf("serial.Driver.Open: %w", err)
	}
	d.conn = conn

	if d.ResetPin != "" {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("serial.Driver.Open: periph init: %w", err)
		}
		pin := gpioreg.ByName(d.ResetPin)
		if pin == nil {
			return fmt.Errorf("serial.Driver.Open: unknown GPIO pin %q", d.ResetPin)
		}
		if err := pin.Out(gpio.High); err != nil {
			return fmt.Errorf("serial.Driver.Open: %w", err)
		}
		d.resetPin = pin
	}

	go d.readLoop()
	return nil
}

// String reports the configured port.
func (d *Driver) String() string {
	return fmt.Sprintf("serial.Driver on %s", d.Port)
}

// readLoop parses length-prefixed frames off the port for as long as
// it stays open, delivering each one to whichever target is pending.
func (d *Driver) readLoop() {
	for {
		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(d.conn, lenBuf); err != nil {
			d.failPending()
			return
		}
		n := binary.BigEndian.Uint16(lenBuf)
		body := make([]byte, n)
		if _, err := io.ReadFull(d.conn, body); err != nil {
			d.failPending()
			return
		}
		d.deliver(body)
	}
}

func (d *Driver) deliver(data []byte) {
	d.mu.Lock()
	t := d.pending
	d.pending = nil
	d.mu.Unlock()
	if t != nil {
		t.TransmitDone(target.StatusOK, data)
	}
}

func (d *Driver) failPending() {
	d.mu.Lock()
	t := d.pending
	d.pending = nil
	d.mu.Unlock()
	if t != nil {
		t.TransmitDone(target.StatusError, nil)
	}
}

// Transmit writes data as a length-prefixed frame. The response
// arrives asynchronously through the background read loop.
func (d *Driver) Transmit(t *target.Target, data []byte) bool {
	if d.conn == nil {
		return false
	}
	d.mu.Lock()
	if d.pending != nil {
		d.mu.Unlock()
		return false
	}
	d.pending = t
	d.mu.Unlock()

	go func() {
		frame := make([]byte, 2+len(data))
		binary.BigEndian.PutUint16(frame, uint16(len(data)))
		copy(frame[2:], data)
		if _, err := d.conn.Write(frame); err != nil {
			d.mu.Lock()
			if d.pending == t {
				d.pending = nil
			}
			d.mu.Unlock()
			t.TransmitDone(target.StatusError, nil)
		}
	}()
	return true
}

// CancelTransmit drops the pending marker; the write itself may still
// land, but its response will be discarded as unattached.
func (d *Driver) CancelTransmit(t *target.Target) {
	d.mu.Lock()
	if d.pending == t {
		d.pending = nil
	}
	d.mu.Unlock()
}

// Deactivate closes the port, which drops the reader's field.
func (d *Driver) Deactivate(t *target.Target) {
	go func() {
		d.Close()
		t.Gone()
	}()
}

// Reactivate is unsupported: resuming requires a fresh Open.
func (d *Driver) Reactivate(t *target.Target) bool { return false }

// Close releases the reset pin and closes the serial port.
func (d *Driver) Close() error {
	if d.resetPin != nil {
		d.resetPin.Out(gpio.Low)
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
