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

// Package swtag wires a target.Target directly to an initiator.Initiator
// in process, so a tag driver (tag2/tag4) and a host (host.Host) can be
// exercised against each other without any reader hardware: a software
// tag, simulated at the raw-frame Target/Initiator boundary.
package swtag

import (
	"sync"

	"github.com/nfc-tools/nfcd/initiator"
	"github.com/nfc-tools/nfcd/target"
)

// Loopback relays every frame the target side transmits to the
// initiator side, and every response the initiator side sends back to
// the target side, as if they were two ends of one RF link.
type Loopback struct {
	mu        sync.Mutex
	target    *target.Target
	initiator *initiator.Initiator
}

// NewLoopback returns an unattached Loopback. Attach must be called
// before it is usable as a driver.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Attach binds the loopback to the pair it relays between.
func (l *Loopback) Attach(t *target.Target, i *initiator.Initiator) {
	l.mu.Lock()
	l.target = t
	l.initiator = i
	l.mu.Unlock()
}

func (l *Loopback) peers() (*target.Target, *initiator.Initiator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target, l.initiator
}

// TargetSide returns the target.Driver view of this loopback.
func (l *Loopback) TargetSide() target.Driver {
	return (*targetSide)(l)
}

// InitiatorSide returns the initiator.Driver view of this loopback.
func (l *Loopback) InitiatorSide() initiator.Driver {
	return (*initiatorSide)(l)
}

type targetSide Loopback

func (s *targetSide) loopback() *Loopback { return (*Loopback)(s) }

// Transmit delivers data to the initiator side as an inbound frame.
func (s *targetSide) Transmit(t *target.Target, data []byte) bool {
	_, i := s.loopback().peers()
	if i == nil {
		return false
	}
	go i.Transmit(data)
	return true
}

// CancelTransmit is a no-op: in-process delivery cannot be interrupted
// mid-flight.
func (s *targetSide) CancelTransmit(t *target.Target) {}

// Deactivate tears down both ends of the loopback.
func (s *targetSide) Deactivate(t *target.Target) {
	go func() {
		_, i := s.loopback().peers()
		if i != nil {
			i.Gone()
		}
		t.Gone()
	}()
}

// Reactivate re-presents the target to the initiator side without
// tearing either end down.
func (s *targetSide) Reactivate(t *target.Target) bool {
	_, i := s.loopback().peers()
	if i == nil {
		return false
	}
	go i.Reactivated()
	return true
}

type initiatorSide Loopback

func (s *initiatorSide) loopback() *Loopback { return (*Loopback)(s) }

// Respond delivers data back to the target side as the reply to its
// in-flight transmission, confirming to the initiator once it has been
// handed over.
func (s *initiatorSide) Respond(i *initiator.Initiator, data []byte) bool {
	t, _ := s.loopback().peers()
	if t == nil {
		return false
	}
	go func() {
		t.TransmitDone(target.StatusOK, data)
		i.ResponseSent(true)
	}()
	return true
}

// Deactivate tears down both ends of the loopback.
func (s *initiatorSide) Deactivate(i *initiator.Initiator) {
	go func() {
		t, _ := s.loopback().peers()
		if t != nil {
			t.Gone()
		}
		i.Gone()
	}()
}
