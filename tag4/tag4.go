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

// Package tag4 implements the NFC Forum Type 4 Tag operation over a
// target.Target: ISO 7816-4 APDU exchange, the fixed NDEF-tag-application
// initialization sequence, and reactivation to restore the tag's default
// application context.
package tag4

import (
	"github.com/hsanjuan/go-ndef"

	"github.com/nfc-tools/nfcd/apdu"
	"github.com/nfc-tools/nfcd/capabilitycontainer"
	"github.com/nfc-tools/nfcd/helpers"
	"github.com/nfc-tools/nfcd/target"
)

// NDEFApplicationName is the AID of the NDEF Tag Application.
var NDEFApplicationName = []byte{0xd2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}

// CCFileID is the file ID of the Capability Container EF.
const CCFileID = uint16(0xe103)

// Status is the outcome of a Type 4 operation.
type Status int

// Type 4 statuses.
const (
	StatusOK Status = iota
	StatusIOError
	StatusBadSW
	StatusProtocolError
)

// Tag is a Type 4 tag, addressed through an underlying target.Target.
type Tag struct {
	Target *target.Target

	Initialized bool
	NDEF        *ndef.Message

	fileID   uint16
	mLe      uint16
	mLc      uint16
	ndefLen  uint16
	readOnly bool
}

// New wraps t as a Type 4 tag.
func New(t *target.Target) *Tag {
	return &Tag{Target: t}
}

// Transmit sends a single command APDU and delivers (SW1<<8|SW2, body) to
// done. An I/O failure at the target maps to the SW=0x0000 sentinel.
func (t *Tag) Transmit(seq *target.Sequence, c *apdu.CAPDU, done func(sw uint16, body []byte, status Status)) {
	cBytes, err := c.Marshal()
	if err != nil {
		done(0x0000, nil, StatusProtocolError)
		return
	}
	_, err = t.Target.Submit(cBytes, seq, func(st target.Status, data []byte) {
		if st != target.StatusOK {
			done(0x0000, nil, StatusIOError)
			return
		}
		r := new(apdu.RAPDU)
		if _, err := r.Unmarshal(data); err != nil {
			done(0x0000, nil, StatusIOError)
			return
		}
		sw := uint16(r.SW1)<<8 | uint16(r.SW2)
		done(sw, r.ResponseBody, StatusOK)
	})
	if err != nil {
		done(0x0000, nil, StatusIOError)
	}
}

func (t *Tag) selectByName(seq *target.Sequence, name []byte, done func(sw uint16)) {
	c := &apdu.CAPDU{CLA: 0x00, INS: apdu.INSSelect, P1: 0x04, P2: 0x00, Data: name}
	c.SetLc(uint16(len(name)))
	c.SetLe(256)
	t.Transmit(seq, c, func(sw uint16, _ []byte, status Status) {
		done(sw)
	})
}

func (t *Tag) selectByID(seq *target.Sequence, fileID uint16, done func(sw uint16)) {
	data := helpers.Uint16ToBytes(fileID)
	c := &apdu.CAPDU{CLA: 0x00, INS: apdu.INSSelect, P1: 0x00, P2: 0x0c, Data: data[:]}
	c.SetLc(2)
	t.Transmit(seq, c, func(sw uint16, _ []byte, status Status) {
		done(sw)
	})
}

func (t *Tag) readBinary(seq *target.Sequence, offset, length uint16, done func(sw uint16, body []byte)) {
	offBytes := helpers.Uint16ToBytes(offset)
	c := &apdu.CAPDU{CLA: 0x00, INS: apdu.INSRead, P1: offBytes[0], P2: offBytes[1]}
	c.SetLe(int(length))
	t.Transmit(seq, c, func(sw uint16, body []byte, status Status) {
		done(sw, body)
	})
}

// Init runs the fixed NDEF initialization sequence. done is called exactly
// once, after the end-of-sequence reactivation attempt has settled; if the
// NDEF application cannot be selected, no reactivation is attempted and
// done is called right away.
func (t *Tag) Init(done func()) {
	seq := t.Target.NewSequence()
	t.selectByName(seq, NDEFApplicationName, func(sw uint16) {
		if sw != 0x9000 {
			t.Initialized = true
			seq.Unref()
			done()
			return
		}
		t.initSelectCC(seq, done)
	})
}

func (t *Tag) initSelectCC(seq *target.Sequence, done func()) {
	t.selectByID(seq, CCFileID, func(sw uint16) {
		if sw != 0x9000 {
			t.endOfSequence(seq, done)
			return
		}
		t.initReadCC(seq, done)
	})
}

func (t *Tag) initReadCC(seq *target.Sequence, done func()) {
	t.readBinary(seq, 0, 15, func(sw uint16, body []byte) {
		if sw != 0x9000 || len(body) < 15 {
			t.endOfSequence(seq, done)
			return
		}
		cc := new(capabilitycontainer.CapabilityContainer)
		if _, err := cc.Unmarshal(body); err != nil {
			t.endOfSequence(seq, done)
			return
		}
		fc := cc.NDEFFileControlTLV
		ctl := (*capabilitycontainer.ControlTLV)(fc)
		mle := helpers.BytesToUint16(cc.MLe)
		if ctl.FileReadAccessCondition != 0x00 || mle < 0x000f {
			t.endOfSequence(seq, done)
			return
		}
		t.fileID = fc.FileID
		t.mLe = mle
		t.mLc = helpers.BytesToUint16(cc.MLc)
		t.readOnly = ctl.IsFileReadOnly()
		t.initSelectNDEF(seq, done)
	})
}

func (t *Tag) initSelectNDEF(seq *target.Sequence, done func()) {
	t.selectByID(seq, t.fileID, func(sw uint16) {
		if sw != 0x9000 {
			t.endOfSequence(seq, done)
			return
		}
		t.initReadLength(seq, done)
	})
}

func (t *Tag) initReadLength(seq *target.Sequence, done func()) {
	t.readBinary(seq, 0, 2, func(sw uint16, body []byte) {
		if sw != 0x9000 || len(body) < 2 {
			t.endOfSequence(seq, done)
			return
		}
		n := uint16(body[0])<<8 | uint16(body[1])
		t.ndefLen = n
		if n == 0 {
			t.endOfSequence(seq, done)
			return
		}
		t.initReadBody(seq, make([]byte, 0, n), done)
	})
}

func (t *Tag) initReadBody(seq *target.Sequence, acc []byte, done func()) {
	if uint16(len(acc)) >= t.ndefLen {
		msg := new(ndef.Message)
		if _, err := msg.Unmarshal(acc); err == nil {
			t.NDEF = msg
		}
		t.endOfSequence(seq, done)
		return
	}
	remaining := t.ndefLen - uint16(len(acc))
	readLen := t.mLe
	if remaining < readLen {
		readLen = remaining
	}
	offset := 2 + uint16(len(acc))
	t.readBinary(seq, offset, readLen, func(sw uint16, body []byte) {
		if sw != 0x9000 || len(body) == 0 {
			t.endOfSequence(seq, done)
			return
		}
		t.initReadBody(seq, append(acc, body...), done)
	})
}

// endOfSequence issues the single mandatory reactivation attempt, then
// marks the tag initialized regardless of its outcome.
func (t *Tag) endOfSequence(seq *target.Sequence, done func()) {
	finish := func() {
		t.Initialized = true
		seq.Unref()
		done()
	}
	err := t.Target.Reactivate(func(ok bool) { finish() })
	if err != nil {
		finish()
	}
}

// Reset issues an ISO-DEP reset: reactivation of the underlying target.
// Only one reset may be in flight per tag at a time (enforced by the
// target's own reactivation bookkeeping).
func (t *Tag) Reset(done func(ok bool)) error {
	return t.Target.Reactivate(done)
}
