// Package bitstream provides bit-level reading over a CineForm-style
// compressed sample: a contiguous byte buffer carrying both MSB-first
// packed entropy payloads and big-endian 4-byte-aligned tag/value tuples.
package bitstream

import (
	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/cferr"
)

// ErrTruncated is returned when a read would consume bits past the end
// of the buffer. It is the shared cferr.ErrTruncated sentinel.
var ErrTruncated = cferr.ErrTruncated

// OptionalTagBit marks a tag as an optional extension (high bit of the tag).
// Unknown tags with this bit set may be skipped by the caller; unknown tags
// without it are a hard failure (UnsupportedTag, see §4.A/§6).
var OptionalTagBit = int16(-1 << 15)

// Reader is a bit-granular reader over a byte slice. It never copies the
// underlying buffer, so independent Readers can be created over disjoint
// or overlapping slices for concurrent subband decode (§4.G).
type Reader struct {
	data   []byte
	bitPos int // absolute bit offset from data[0], MSB-first within each byte
}

// NewReader wraps data for bit-granular reading starting at bit 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Slice returns a new Reader over data[startByte:endByte], positioned at
// its own bit 0. Used to hand an independent subband payload to a worker
// (§4.G's stream_slice).
func (r *Reader) Slice(startByte, endByte int) (*Reader, error) {
	if startByte < 0 || endByte > len(r.data) || startByte > endByte {
		return nil, errors.Wrapf(ErrTruncated, "slice [%d:%d] out of range (len %d)", startByte, endByte, len(r.data))
	}
	return &Reader{data: r.data[startByte:endByte]}, nil
}

// Len returns the total number of bits available.
func (r *Reader) Len() int { return len(r.data) * 8 }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int { return r.Len() - r.bitPos }

// Position returns the current byte-aligned position. If the reader is
// not currently byte-aligned, this rounds down to the containing byte.
func (r *Reader) Position() int { return r.bitPos / 8 }

// BitPosition returns the current absolute bit offset.
func (r *Reader) BitPosition() int { return r.bitPos }

// SeekBit repositions the reader to an absolute bit offset previously
// obtained from BitPosition, for callers that need to look one tuple
// ahead and then resume from where they started (e.g. the sample parser
// recognizing where the header ends and the transform-tree body begins).
func (r *Reader) SeekBit(pos int) { r.bitPos = pos }

// window returns the 8 bytes starting at the given byte offset,
// zero-padded past the end of the buffer, for building a peek window.
func (r *Reader) window(byteOff int) uint64 {
	var w uint64
	for i := 0; i < 8; i++ {
		var b uint64
		if byteOff+i < len(r.data) {
			b = uint64(r.data[byteOff+i])
		}
		w = (w << 8) | b
	}
	return w
}

// PeekBits returns the next n bits (0 <= n <= 32) without consuming them.
// Bits past the end of the buffer read as zero, but the call still fails
// if the read would start past the end: callers needing to distinguish
// "legal trailing padding" from "truncated" should check Remaining first.
func (r *Reader) PeekBits(n uint) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	if n > 32 {
		return 0, errors.Errorf("bitstream: PeekBits(%d) exceeds 32-bit window", n)
	}
	if r.bitPos >= r.Len() {
		return 0, ErrTruncated
	}
	byteOff := r.bitPos / 8
	bitOff := uint(r.bitPos % 8)
	w := r.window(byteOff)
	// w holds 64 bits starting at byteOff; shift so the bit at bitOff is
	// the MSB of the window we care about, then take the top n bits.
	w <<= bitOff
	return uint32(w >> (64 - n)), nil
}

// ReadBits consumes and returns the next n bits (0 <= n <= 32), MSB-first.
func (r *Reader) ReadBits(n uint) (uint32, error) {
	v, err := r.PeekBits(n)
	if err != nil {
		return 0, err
	}
	r.bitPos += int(n)
	return v, nil
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (int, error) {
	v, err := r.ReadBits(1)
	return int(v), err
}

// SkipBits advances the read position by n bits without returning a value.
func (r *Reader) SkipBits(n uint) error {
	if r.bitPos+int(n) > r.Len() {
		return errors.Wrapf(ErrTruncated, "skip %d bits past end", n)
	}
	r.bitPos += int(n)
	return nil
}

// AlignToTag advances to the next 32-bit (4-byte) boundary, the alignment
// unit of tag/value tuples on the wire (§6).
func (r *Reader) AlignToTag() {
	rem := r.bitPos % 32
	if rem != 0 {
		r.bitPos += 32 - rem
	}
}

// TagValue is one (tag, value) tuple from the structural/metadata stream.
type TagValue struct {
	Tag   int16
	Value int16
}

// Optional reports whether the tag's high bit marks it as an optional
// extension that unknown-tag handlers are allowed to skip (§4.A).
func (t TagValue) Optional() bool { return t.Tag&OptionalTagBit != 0 }

// Code returns the tag with the optional-marker bit cleared.
func (t TagValue) Code() int16 { return t.Tag &^ OptionalTagBit }

// ReadTagValue reads one big-endian (tag:i16, value:i16) tuple. The reader
// must already be 4-byte aligned; callers walking a tuple stream should
// call AlignToTag once before the first tuple and rely on tuples being a
// fixed 32 bits thereafter.
func (r *Reader) ReadTagValue() (TagValue, error) {
	if r.Remaining() < 32 {
		return TagValue{}, errors.Wrap(ErrTruncated, "reading tag/value tuple")
	}
	tagBits, err := r.ReadBits(16)
	if err != nil {
		return TagValue{}, errors.Wrap(err, "reading tag")
	}
	valBits, err := r.ReadBits(16)
	if err != nil {
		return TagValue{}, errors.Wrap(err, "reading value")
	}
	return TagValue{Tag: int16(tagBits), Value: int16(valBits)}, nil
}

// SkipSegment advances past an optional extension segment whose length in
// bytes is carried in the tuple's value field, per §4.A's forward
// compatibility rule for unknown optional tags.
func (r *Reader) SkipSegment(lengthBytes int) error {
	if lengthBytes < 0 {
		return errors.Errorf("bitstream: negative segment length %d", lengthBytes)
	}
	return r.SkipBits(uint(lengthBytes) * 8)
}

// swap16 byte-swaps a 16-bit value; used when a host delivers tag/value
// tuples in the native byte order of a little-endian platform instead of
// the wire's big-endian form (ported from the reference swap.h helpers).
func swap16(v uint16) uint16 {
	return (v >> 8) | (v << 8)
}

// swap32 byte-swaps a 32-bit value.
func swap32(v uint32) uint32 {
	return (v>>24)&0xff | (v>>8)&0xff00 | (v<<8)&0xff0000 | (v << 24)
}

// Swap16 exposes swap16 for hosts that parse raw headers on a
// little-endian platform before handing the rest of the buffer to Reader.
func Swap16(v uint16) uint16 { return swap16(v) }

// Swap32 exposes swap32 for hosts that parse raw headers on a
// little-endian platform before handing the rest of the buffer to Reader.
func Swap32(v uint32) uint32 { return swap32(v) }
