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

package swtag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfc-tools/nfcd/initiator"
	"github.com/nfc-tools/nfcd/target"
)

func newLoopbackPair() (*target.Target, *initiator.Initiator) {
	lb := NewLoopback()
	t := target.New("tag0", lb.TargetSide())
	i := initiator.New("host0", lb.InitiatorSide())
	lb.Attach(t, i)
	return t, i
}

func TestLoopbackRoundTripsTargetToInitiator(t *testing.T) {
	tg, in := newLoopbackPair()

	var received []byte
	var tr *initiator.Transmission
	recvDone := make(chan struct{}, 1)
	in.OnTransmissionReceived = func(t *initiator.Transmission) {
		received = t.Data()
		tr = t.Ref()
		recvDone <- struct{}{}
	}

	respDone := make(chan struct{}, 1)
	var status target.Status
	var respData []byte
	_, err := tg.Submit([]byte{0x00, 0xa4, 0x04, 0x00}, nil, func(s target.Status, d []byte) {
		status, respData = s, d
		respDone <- struct{}{}
	})
	require.NoError(t, err)

	select {
	case <-recvDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initiator to receive frame")
	}
	assert.Equal(t, []byte{0x00, 0xa4, 0x04, 0x00}, received)

	err = tr.Respond([]byte{0x90, 0x00}, func(ok bool) {})
	require.NoError(t, err)

	select {
	case <-respDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for target to receive response")
	}
	assert.Equal(t, target.StatusOK, status)
	assert.Equal(t, []byte{0x90, 0x00}, respData)
}

func TestLoopbackDeactivateTearsDownBothEnds(t *testing.T) {
	tg, in := newLoopbackPair()

	targetGone := make(chan struct{}, 1)
	initiatorGone := make(chan struct{}, 1)
	tg.OnGone = func() { targetGone <- struct{}{} }
	in.OnGone = func() { initiatorGone <- struct{}{} }

	tg.Deactivate()

	select {
	case <-targetGone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for target Gone")
	}
	select {
	case <-initiatorGone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initiator Gone")
	}
	assert.False(t, tg.Present())
	assert.False(t, in.Present())
}
