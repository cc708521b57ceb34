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

// Package tag2 implements the NFC Forum Type 2 Tag operation: block
// addressed read/write over a target.Target, with a per-block validity
// cache, read-modify-write for unaligned writes, and NDEF discovery via a
// TLV scan of the data area.
package tag2

import (
	"github.com/hsanjuan/go-ndef"

	"github.com/nfc-tools/nfcd/target"
)

// BlockSize is the fixed Type 2 block size in bytes.
const BlockSize = 4

// Type 2 command bytes (NFCForum-TS-DigitalProtocol, section 9).
const (
	cmdRead  = byte(0x30)
	cmdWrite = byte(0xa2)
)

// Capability Container constants.
const (
	ccMagic      = byte(0xe1)
	ccMinVersion = byte(0x10)
)

// TLV types in the data area.
const (
	tlvNull        = byte(0x00)
	tlvLockControl = byte(0x01)
	tlvMemControl  = byte(0x02)
	tlvNDEF        = byte(0x03)
	tlvProprietary = byte(0xfd)
	tlvTerminator  = byte(0xfe)
)

// Status is the outcome of a Type 2 bulk operation.
type Status int

// Type 2 bulk I/O statuses.
const (
	StatusOK Status = iota
	StatusFailure
	StatusIOError
	StatusBadBlock
	StatusBadSize
	StatusNotCached
)

// String provides a readable representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailure:
		return "FAILURE"
	case StatusIOError:
		return "IO_ERROR"
	case StatusBadBlock:
		return "BAD_BLOCK"
	case StatusBadSize:
		return "BAD_SIZE"
	case StatusNotCached:
		return "NOT_CACHED"
	default:
		return "UNKNOWN"
	}
}

// sector holds one contiguous, block-aligned buffer together with a
// per-block validity bitmap. Only the data portion (between header and
// trailer) is exposed to callers.
type sector struct {
	headerBlocks  int
	dataBlocks    int
	trailerBlocks int
	bytes         []byte
	valid         []bool
}

func newSector(headerBlocks, dataBlocks, trailerBlocks int) *sector {
	total := headerBlocks + dataBlocks + trailerBlocks
	return &sector{
		headerBlocks:  headerBlocks,
		dataBlocks:    dataBlocks,
		trailerBlocks: trailerBlocks,
		bytes:         make([]byte, total*BlockSize),
		valid:         make([]bool, total),
	}
}

func (s *sector) setBlock(abs int, data []byte) {
	copy(s.bytes[abs*BlockSize:(abs+1)*BlockSize], data)
	s.valid[abs] = true
}

func (s *sector) invalidate(abs int) {
	s.valid[abs] = false
}

func (s *sector) isValid(abs int) bool {
	return abs >= 0 && abs < len(s.valid) && s.valid[abs]
}

func (s *sector) readBlock(abs int) []byte {
	return s.bytes[abs*BlockSize : (abs+1)*BlockSize]
}

func (s *sector) data() []byte {
	off := s.headerBlocks * BlockSize
	return s.bytes[off : off+s.dataBlocks*BlockSize]
}

// Tag is a Type 2 tag, addressed through an underlying target.Target.
type Tag struct {
	Target *target.Target

	Serial      []byte
	DataSize    int
	NDEF        *ndef.Message
	Initialized bool

	sector0 *sector
}

// New wraps t as a Type 2 tag. Call Init to run the initialization
// sequence before any read/write.
func New(t *target.Target) *Tag {
	return &Tag{Target: t}
}

func encodeRead(block int) []byte {
	return []byte{cmdRead, byte(block)}
}

func encodeWrite(block int, data [4]byte) []byte {
	return []byte{cmdWrite, byte(block), data[0], data[1], data[2], data[3]}
}

// parseWriteResponse interprets the single-byte ACK/NACK reply to a WRITE
// command. 0x0A (and the commonly seen alias 0xAA) in the low nibble is
// ACK; any other low nibble is NACK.
func parseWriteResponse(resp []byte) Status {
	if len(resp) != 1 {
		return StatusIOError
	}
	if resp[0]&0x0f == 0x0a {
		return StatusOK
	}
	return StatusFailure
}

// readBlockGroup issues a READ at the given absolute block number,
// expecting the standard 16-byte (4 block) response.
func (t *Tag) readBlockGroup(seq *target.Sequence, absBlock int, done func(data []byte, status Status)) {
	_, err := t.Target.Submit(encodeRead(absBlock), seq, func(st target.Status, data []byte) {
		switch st {
		case target.StatusOK:
			if len(data) < 16 {
				done(nil, StatusIOError)
				return
			}
			done(data[:16], StatusOK)
		case target.StatusCorrupted:
			done(nil, StatusIOError)
		default:
			done(nil, StatusIOError)
		}
	})
	if err != nil {
		done(nil, StatusIOError)
	}
}

// writeAbsBlock issues a WRITE of one 4-byte block at the given absolute
// block number.
func (t *Tag) writeAbsBlock(seq *target.Sequence, absBlock int, data [4]byte, done func(status Status)) {
	_, err := t.Target.Submit(encodeWrite(absBlock, data), seq, func(st target.Status, resp []byte) {
		switch st {
		case target.StatusOK:
			done(parseWriteResponse(resp))
		case target.StatusNACK:
			done(StatusFailure)
		case target.StatusCorrupted:
			done(StatusIOError)
		default:
			done(StatusIOError)
		}
	})
	if err != nil {
		done(StatusIOError)
	}
}

// Init runs the Type 2 initialization sequence: read the UID/lock/CC
// blocks, validate the Capability Container, then read data blocks until
// a TLV walk can find a terminator or the data area ends, parsing NDEF
// from whatever was accumulated. A read error during init still leaves
// the tag initialized, with no NDEF.
func (t *Tag) Init(done func()) {
	seq := t.Target.NewSequence()
	t.readBlockGroup(seq, 0, func(data []byte, status Status) {
		if status != StatusOK {
			t.Initialized = true
			seq.Unref()
			done()
			return
		}
		cc := data[12:16]
		if cc[0] != ccMagic || cc[1] < ccMinVersion {
			t.Initialized = true
			seq.Unref()
			done()
			return
		}
		t.DataSize = int(cc[2]) * 8
		t.Serial = append([]byte(nil), data[0:4]...)
		dataBlocks := t.DataSize / BlockSize
		t.sector0 = newSector(4, dataBlocks, 0)
		for i := 0; i < 4; i++ {
			t.sector0.setBlock(i, data[i*4:i*4+4])
		}
		t.readInitBlocks(seq, 0, done)
	})
}

func (t *Tag) readInitBlocks(seq *target.Sequence, dataBlockRel int, done func()) {
	if dataBlockRel >= t.sector0.dataBlocks {
		t.finishInit(seq, done)
		return
	}
	abs := t.sector0.headerBlocks + dataBlockRel
	t.readBlockGroup(seq, abs, func(data []byte, status Status) {
		if status != StatusOK {
			t.finishInit(seq, done)
			return
		}
		for i := 0; i < 4 && dataBlockRel+i < t.sector0.dataBlocks; i++ {
			t.sector0.setBlock(abs+i, data[i*4:i*4+4])
		}
		if t.tlvScanComplete() {
			t.finishInit(seq, done)
			return
		}
		t.readInitBlocks(seq, dataBlockRel+4, done)
	})
}

func (t *Tag) finishInit(seq *target.Sequence, done func()) {
	t.Initialized = true
	seq.Unref()
	done()
}

// tlvScanComplete walks the TLVs found in the currently-cached prefix of
// the data area. It returns true once a terminator TLV is reached or a
// complete NDEF Message TLV has been found and parsed.
func (t *Tag) tlvScanComplete() bool {
	data := t.sector0.data()
	validLen := 0
	for i := 0; i < t.sector0.dataBlocks; i++ {
		if !t.sector0.isValid(t.sector0.headerBlocks + i) {
			break
		}
		validLen += BlockSize
	}

	i := 0
	for i < validLen {
		typ := data[i]
		if typ == tlvNull {
			i++
			continue
		}
		if typ == tlvTerminator {
			return true
		}
		if i+1 >= validLen {
			return false
		}
		length := int(data[i+1])
		headerLen := 2
		if length == 0xff {
			if i+3 >= validLen {
				return false
			}
			length = int(data[i+2])<<8 | int(data[i+3])
			headerLen = 4
		}
		if i+headerLen+length > validLen {
			return false
		}
		if typ == tlvNDEF {
			msg := new(ndef.Message)
			if _, err := msg.Unmarshal(data[i+headerLen : i+headerLen+length]); err == nil {
				t.NDEF = msg
			}
			return true
		}
		i += headerLen + length
	}
	return false
}

func (t *Tag) dataLen() int {
	if t.sector0 == nil {
		return 0
	}
	return t.sector0.dataBlocks * BlockSize
}

// ReadData reads up to maxBytes starting at the given byte offset into
// the data area, serving any already-cached prefix from memory and
// issuing reads only for the blocks not yet cached.
func (t *Tag) ReadData(offset, maxBytes int, done func(data []byte, status Status)) {
	if t.sector0 == nil || offset == t.dataLen() {
		done(nil, StatusBadBlock)
		return
	}
	if offset < 0 || offset > t.dataLen() {
		done(nil, StatusBadBlock)
		return
	}
	size := maxBytes
	if offset+size > t.dataLen() {
		size = t.dataLen() - offset
	}
	result := make([]byte, size)
	t.readDataLoop(offset, size, 0, result, done)
}

func (t *Tag) readDataLoop(offset, size, copied int, result []byte, done func([]byte, Status)) {
	for copied < size {
		blockRel := (offset + copied) / BlockSize
		abs := t.sector0.headerBlocks + blockRel
		if !t.sector0.isValid(abs) {
			groupStart := (blockRel / 4) * 4
			t.readBlockGroup(nil, t.sector0.headerBlocks+groupStart, func(data []byte, status Status) {
				if status != StatusOK {
					done(result[:copied], StatusIOError)
					return
				}
				for i := 0; i < 4 && groupStart+i < t.sector0.dataBlocks; i++ {
					t.sector0.setBlock(t.sector0.headerBlocks+groupStart+i, data[i*4:i*4+4])
				}
				t.readDataLoop(offset, size, copied, result, done)
			})
			return
		}
		blockStart := blockRel * BlockSize
		blockBytes := t.sector0.readBlock(abs)
		srcOff := (offset + copied) - blockStart
		n := BlockSize - srcOff
		if copied+n > size {
			n = size - copied
		}
		copy(result[copied:copied+n], blockBytes[srcOff:srcOff+n])
		copied += n
	}
	done(result, StatusOK)
}

// ReadDataSync returns the requested range only if every covered block is
// already cached; it never touches the wire.
func (t *Tag) ReadDataSync(offset, size int) ([]byte, Status) {
	if t.sector0 == nil || offset == t.dataLen() {
		return nil, StatusBadBlock
	}
	if offset < 0 || offset > t.dataLen() {
		return nil, StatusBadBlock
	}
	if offset+size > t.dataLen() {
		return nil, StatusBadSize
	}
	startBlock := offset / BlockSize
	endBlock := (offset + size - 1) / BlockSize
	for b := startBlock; b <= endBlock; b++ {
		if !t.sector0.isValid(t.sector0.headerBlocks + b) {
			return nil, StatusNotCached
		}
	}
	result := make([]byte, size)
	copied := 0
	for copied < size {
		blockRel := (offset + copied) / BlockSize
		blockStart := blockRel * BlockSize
		blockBytes := t.sector0.readBlock(t.sector0.headerBlocks + blockRel)
		srcOff := (offset + copied) - blockStart
		n := BlockSize - srcOff
		if copied+n > size {
			n = size - copied
		}
		copy(result[copied:copied+n], blockBytes[srcOff:srcOff+n])
		copied += n
	}
	return result, StatusOK
}

// WriteData writes bytes at the given byte offset within the data area.
// Unaligned boundaries trigger read-modify-write on the affected partial
// blocks; unaligned writes run under a dedicated Sequence so intervening
// reads never observe torn state.
func (t *Tag) WriteData(offset int, data []byte, done func(status Status)) {
	if t.sector0 == nil || offset < 0 || offset+len(data) > t.dataLen() {
		done(StatusBadSize)
		return
	}
	if len(data) == 0 {
		done(StatusOK)
		return
	}
	startBlock := offset / BlockSize
	endBlock := (offset + len(data) - 1) / BlockSize
	unaligned := offset%BlockSize != 0 || (offset+len(data))%BlockSize != 0

	if !unaligned {
		t.writeBlocksSeq(nil, startBlock, endBlock, offset, data, done)
		return
	}

	seq := t.Target.NewSequence()
	t.writeBlocksSeq(seq, startBlock, endBlock, offset, data, func(status Status) {
		seq.Unref()
		done(status)
	})
}

func (t *Tag) writeBlocksSeq(seq *target.Sequence, block, endBlock, offset int, data []byte, done func(Status)) {
	if block > endBlock {
		done(StatusOK)
		return
	}
	blockStart := block * BlockSize
	blockEnd := blockStart + BlockSize
	writeStart := offset
	writeEnd := offset + len(data)

	if blockStart >= writeStart && blockEnd <= writeEnd {
		var buf [4]byte
		copy(buf[:], data[blockStart-offset:blockStart-offset+4])
		t.issueBlockWrite(seq, block, buf, func(status Status) {
			if status != StatusOK {
				done(status)
				return
			}
			t.writeBlocksSeq(seq, block+1, endBlock, offset, data, done)
		})
		return
	}

	abs := t.sector0.headerBlocks + block
	if t.sector0.isValid(abs) {
		cur := append([]byte(nil), t.sector0.readBlock(abs)...)
		t.mergeAndWrite(seq, block, cur, offset, data, endBlock, done)
		return
	}
	t.readOneBlock(seq, block, func(cur []byte, status Status) {
		if status != StatusOK {
			done(status)
			return
		}
		t.mergeAndWrite(seq, block, cur, offset, data, endBlock, done)
	})
}

func (t *Tag) mergeAndWrite(seq *target.Sequence, block int, cur []byte, offset int, data []byte, endBlock int, done func(Status)) {
	var buf [4]byte
	copy(buf[:], cur)
	blockStart := block * BlockSize
	for i := 0; i < 4; i++ {
		pos := blockStart + i
		if pos >= offset && pos < offset+len(data) {
			buf[i] = data[pos-offset]
		}
	}
	t.issueBlockWrite(seq, block, buf, func(status Status) {
		if status != StatusOK {
			done(status)
			return
		}
		t.writeBlocksSeq(seq, block+1, endBlock, offset, data, done)
	})
}

// readOneBlock reads the 4-block group containing block (relative to the
// data area) and returns just that block's 4 bytes, caching the whole group.
func (t *Tag) readOneBlock(seq *target.Sequence, block int, done func(data []byte, status Status)) {
	groupStart := (block / 4) * 4
	t.readBlockGroup(seq, t.sector0.headerBlocks+groupStart, func(data []byte, status Status) {
		if status != StatusOK {
			done(nil, status)
			return
		}
		for i := 0; i < 4 && groupStart+i < t.sector0.dataBlocks; i++ {
			t.sector0.setBlock(t.sector0.headerBlocks+groupStart+i, data[i*4:i*4+4])
		}
		rel := block - groupStart
		done(data[rel*4:rel*4+4], StatusOK)
	})
}

// issueBlockWrite invalidates the cached copy of block before issuing the
// write, restoring validity with the new data only on success.
func (t *Tag) issueBlockWrite(seq *target.Sequence, block int, data [4]byte, done func(Status)) {
	abs := t.sector0.headerBlocks + block
	t.sector0.invalidate(abs)
	t.writeAbsBlock(seq, abs, data, func(status Status) {
		if status == StatusOK {
			t.sector0.setBlock(abs, data[:])
		}
		done(status)
	})
}

// Write performs a whole-block write at an absolute block number (used
// for special, non-data areas). It rejects payloads shorter than one
// block.
func (t *Tag) Write(absBlock int, data []byte, done func(status Status)) {
	if len(data) < BlockSize {
		done(StatusBadSize)
		return
	}
	var buf [4]byte
	copy(buf[:], data[:4])
	t.sector0.invalidate(absBlock)
	t.writeAbsBlock(nil, absBlock, buf, func(status Status) {
		if status == StatusOK {
			t.sector0.setBlock(absBlock, buf[:])
		}
		done(status)
	})
}
