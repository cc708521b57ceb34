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

// Package static provides a read-only NDEF Type 4 Tag application, for
// use as a host.App: it answers SELECT and READ BINARY against a fixed
// in-memory NDEF message, the way a static NFC tag would. It is the
// card-emulation-side counterpart to tag4's reader-side implementation,
// useful for testing a host.Host without real tag hardware (e.g. paired
// with a drivers/swtag.Loopback).
package static

import (
	"bytes"

	"github.com/hsanjuan/go-ndef"

	"github.com/nfc-tools/nfcd/apdu"
	"github.com/nfc-tools/nfcd/capabilitycontainer"
	"github.com/nfc-tools/nfcd/helpers"
	"github.com/nfc-tools/nfcd/host"
	"github.com/nfc-tools/nfcd/tag4"
)

// defaultNDEFFileID is the NDEF file ID used unless Tag.FileID overrides it.
const defaultNDEFFileID = uint16(0xE104)

// Version of the specification implemented by this tag.
const (
	nfcForumMajorVersion = 2
	nfcForumMinorVersion = 0
)

// Tag holds a fixed NDEF message and answers the NDEF Tag Application
// command set against it: SELECT (application, CC file, NDEF file) and
// READ BINARY. UPDATE BINARY is rejected; the message never changes
// regardless of how many times it is read.
type Tag struct {
	// Message is the NDEF Message served by this tag.
	Message *ndef.Message
	// FileID overrides the NDEF file ID, if non-zero.
	FileID uint16

	selectedFileID uint16
}

// App returns a host.App wired to serve Tag's NDEF message. The
// application is implicitly selectable, matching how a real Type 4 tag
// has exactly one selectable application.
func (tag *Tag) App() *host.App {
	return &host.App{
		Name:           "ndef-tag-application",
		AID:            tag4.NDEFApplicationName,
		Flags:          host.AllowImplicitSelection,
		Select:         tag.onSelect,
		ImplicitSelect: tag.onSelect,
		Deselect:       func(done func()) { tag.selectedFileID = 0; done() },
		Process:        tag.process,
	}
}

func (tag *Tag) onSelect(done func(ok bool)) {
	tag.selectedFileID = 0
	done(tag.Message != nil)
}

func (tag *Tag) process(data []byte, done func(resp *host.Response)) {
	c := new(apdu.CAPDU)
	if _, err := c.Unmarshal(data); err != nil {
		done(&host.Response{SW: 0x6a00})
		return
	}

	switch c.INS {
	case apdu.INSSelect:
		done(tag.doSelect(c))
	case apdu.INSRead:
		done(tag.doRead(c))
	default:
		done(&host.Response{SW: 0x6a00})
	}
}

func (tag *Tag) fileID() uint16 {
	if tag.FileID != 0 {
		return tag.FileID
	}
	return defaultNDEFFileID
}

// doSelect handles SELECT by file ID for the Capability Container and
// the NDEF file. SELECT by AID (the application itself) is handled by
// the Host before Process is ever reached.
func (tag *Tag) doSelect(c *apdu.CAPDU) *host.Response {
	if c.P1 != 0x00 || c.P2 != 0x0c {
		return &host.Response{SW: 0x6a82}
	}
	if c.GetLc() != 2 {
		return &host.Response{SW: 0x6a87}
	}
	fID := helpers.BytesToUint16([2]byte{c.Data[0], c.Data[1]})
	if fID != capabilitycontainer.CCID && fID != tag.fileID() {
		return &host.Response{SW: 0x6a82}
	}
	tag.selectedFileID = fID
	return &host.Response{SW: 0x9000}
}

func (tag *Tag) doRead(c *apdu.CAPDU) *host.Response {
	if tag.selectedFileID == 0 {
		return &host.Response{SW: 0x6a82}
	}
	switch tag.selectedFileID {
	case capabilitycontainer.CCID:
		return tag.readCapabilityContainer(c)
	case tag.fileID():
		return tag.readNDEFFile(c)
	default:
		return &host.Response{SW: 0x6a82}
	}
}

func (tag *Tag) readCapabilityContainer(c *apdu.CAPDU) *host.Response {
	if c.GetLe() < 15 {
		return &host.Response{SW: 0x6c0f}
	}
	mBytes, err := tag.Message.Marshal()
	if err != nil {
		return &host.Response{SW: 0x6a82}
	}
	tlv := &capabilitycontainer.NDEFFileControlTLV{
		T:                        0x04,
		L:                        0x06,
		FileID:                   tag.fileID(),
		MaximumFileSize:          uint16(len(mBytes)) + 2,
		FileReadAccessCondition:  0x00,
		FileWriteAccessCondition: 0xff,
	}
	cc := &capabilitycontainer.CapabilityContainer{
		CCLEN:              [2]byte{0x00, 0x0f},
		MappingVersion:     byte(nfcForumMajorVersion)<<4 | byte(nfcForumMinorVersion),
		MLe:                [2]byte{0xff, 0xff},
		MLc:                [2]byte{0xff, 0xff},
		NDEFFileControlTLV: tlv,
	}
	body, err := cc.Marshal()
	if err != nil {
		return &host.Response{SW: 0x6a82}
	}
	return &host.Response{SW: 0x9000, Data: body}
}

func (tag *Tag) readNDEFFile(c *apdu.CAPDU) *host.Response {
	ndefBytes, err := tag.Message.Marshal()
	if err != nil {
		return &host.Response{SW: 0x6a82}
	}
	ndefLen := helpers.Uint16ToBytes(uint16(len(ndefBytes)))
	var buf bytes.Buffer
	buf.Write(ndefLen[:])
	buf.Write(ndefBytes)

	offset := uint16(c.P1)<<8 | uint16(c.P2)
	full := buf.Bytes()
	if int(offset) > len(full) {
		return &host.Response{SW: 0x6b00}
	}
	full = full[offset:]

	le := c.GetLe()
	if le > 0 && le < len(full) {
		full = full[:le]
	}
	return &host.Response{SW: 0x9000, Data: full}
}
