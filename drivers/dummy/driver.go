/***
    Copyright (c) 2020, Hector Sanjuan

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

// Package dummy provides a scripted target.Driver that replays a
// pre-programmed sequence of responses, ignoring whatever is
// transmitted. It is used in tests and demos where no real tag or
// reader is available.
package dummy

import (
	"fmt"
	"sync"

	"github.com/nfc-tools/nfcd/target"
)

// Driver replays Responses in order, one per Transmit call, regardless
// of what data it is asked to send.
type Driver struct {
	Responses [][]byte

	mu  sync.Mutex
	pos int
}

// String reports how many responses remain.
func (d *Driver) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("dummy.Driver: %d/%d responses remaining", len(d.Responses)-d.pos, len(d.Responses))
}

// Transmit ignores data and reports the next scripted response. Runs
// asynchronously to match how a real driver would never complete
// before Submit returns.
func (d *Driver) Transmit(t *target.Target, data []byte) bool {
	d.mu.Lock()
	if d.pos >= len(d.Responses) {
		d.mu.Unlock()
		return false
	}
	resp := d.Responses[d.pos]
	d.pos++
	d.mu.Unlock()

	go t.TransmitDone(target.StatusOK, resp)
	return true
}

// CancelTransmit is a no-op: scripted responses cannot be interrupted.
func (d *Driver) CancelTransmit(t *target.Target) {}

// Deactivate reports the target as gone.
func (d *Driver) Deactivate(t *target.Target) {
	go t.Gone()
}

// Reactivate always fails: a dummy driver has no RF field to
// re-present.
func (d *Driver) Reactivate(t *target.Target) bool { return false }
