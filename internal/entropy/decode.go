package entropy

import (
	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/bitstream"
	"github.com/gopro-cineform/decoder/internal/cferr"
	"github.com/gopro-cineform/decoder/internal/diag"
)

// Subband describes the destination of one FSM decode (§4.B's
// contract): a caller-provided i16 buffer, its logical width/height, and
// its row stride (pitch), all in coefficient units (not bytes).
type Subband struct {
	Dest   []int16
	Width  int
	Height int
	Pitch  int // >= Width
}

// size returns the number of coefficients in the subband (width*height),
// the value pos must reach exactly at KindEndOfBand (§4.B step 5).
func (s Subband) size() int { return s.Width * s.Height }

// addr maps a row-major position (wrapping at Width) to an index into
// Dest, accounting for Pitch.
func (s Subband) addr(pos int) int {
	y := pos / s.Width
	x := pos - y*s.Width
	return y*s.Pitch + x
}

// DecodeBand implements §4.B's algorithm: it decodes one subband in place
// into sb.Dest, driven by table starting in state 0, and fails with
// ErrEntropyCorrupt if a run would overflow the subband or if
// end-of-band arrives before every cell is written.
//
// peaksAllowed gates the "peaks" escape mechanism (§4.B): the reference
// decoder only permits escape codes at wavelet levels above the base
// level (DecodeBandFSM16sNoGapWithPeaks vs. DecodeBandFSM16sNoGap); a
// KindEscape entry encountered with peaksAllowed false is a corruption.
//
// stats, if non-nil, receives a RecordRun per zero run emitted (KindEmitRun,
// and the zero-run prefix ahead of a KindEmitValue/KindEscape, when
// non-empty) and a RecordEscape per escape-coded literal, feeding the
// run-length histogram and escape count Stats exposes.
func DecodeBand(r *bitstream.Reader, table *Table, sb Subband, peaksAllowed bool, stats *diag.Stats) error {
	if sb.Width <= 0 || sb.Height <= 0 {
		return errors.Wrap(cferr.ErrBadFormat, "entropy: non-positive subband dimensions")
	}
	if sb.Pitch < sb.Width {
		return errors.Wrap(cferr.ErrBadFormat, "entropy: pitch smaller than width")
	}
	needed := sb.size()
	maxIdx := sb.addr(needed-1) + 1
	if len(sb.Dest) < maxIdx {
		return errors.Wrapf(cferr.ErrBadFormat, "entropy: dest buffer too small (%d < %d)", len(sb.Dest), maxIdx)
	}

	state := int32(0)
	pos := 0
	for {
		window, err := r.PeekBits(IndexBits)
		if err != nil {
			return errors.Wrap(cferr.ErrTruncated, "entropy: reading FSM window")
		}
		entry := table.Entry(state, window)
		if err := r.SkipBits(uint(entry.BitsConsumed)); err != nil {
			return errors.Wrap(cferr.ErrTruncated, "entropy: consuming FSM entry bits")
		}

		switch entry.Kind {
		case KindContinue:
			state = entry.NextState

		case KindEmitRun:
			if err := writeZeros(sb, &pos, int(entry.Run), stats); err != nil {
				return err
			}
			state = entry.NextState

		case KindEmitValue:
			if err := writeZeros(sb, &pos, int(entry.Run), stats); err != nil {
				return err
			}
			if err := emitSignedValue(sb, &pos, entry.Magnitude, entry.Sign); err != nil {
				return err
			}
			state = entry.NextState

		case KindEscape:
			if !peaksAllowed {
				return errors.Wrap(cferr.ErrEntropyCorrupt, "entropy: escape code outside peaks-enabled level")
			}
			if err := writeZeros(sb, &pos, int(entry.Run), stats); err != nil {
				return err
			}
			literal, err := r.ReadBits(uint(entry.EscapeBits))
			if err != nil {
				return errors.Wrap(cferr.ErrTruncated, "entropy: reading escape literal")
			}
			if err := emitValue(r, sb, &pos, int16(literal)); err != nil {
				return err
			}
			if stats != nil {
				stats.RecordEscape()
			}
			state = entry.NextState

		case KindEndOfBand:
			if pos != needed {
				return errors.Wrapf(cferr.ErrEntropyCorrupt, "entropy: end-of-band at %d, want %d", pos, needed)
			}
			return nil

		default:
			return errors.Wrapf(cferr.ErrInternalInvariant, "entropy: unknown entry kind %d", entry.Kind)
		}
	}
}

// writeZeros writes count zero coefficients starting at *pos, advancing
// *pos, failing with ErrEntropyCorrupt if the run would overflow the
// subband (§4.B's "a run that would overflow the subband is a
// corruption"). A non-empty run is tallied against stats, when non-nil,
// for the run-length histogram.
func writeZeros(sb Subband, pos *int, count int, stats *diag.Stats) error {
	if count == 0 {
		return nil
	}
	if *pos+count > sb.size() {
		return errors.Wrapf(cferr.ErrEntropyCorrupt, "entropy: run of %d overflows subband at pos %d/%d", count, *pos, sb.size())
	}
	for i := 0; i < count; i++ {
		sb.Dest[sb.addr(*pos)] = 0
		*pos++
	}
	if stats != nil {
		stats.RecordRun(count)
	}
	return nil
}

// emitSignedValue writes a coefficient of the given unsigned magnitude and
// sign at *pos and advances *pos by one. Used for KindEmitValue, whose
// sign bit is already consumed by DecodeBand's SkipBits(entry.BitsConsumed)
// (it is packed into the same window as the magnitude, see Entry.Sign) —
// unlike emitValue, it never reads from the bitstream itself.
func emitSignedValue(sb Subband, pos *int, magnitude int16, negative bool) error {
	if *pos >= sb.size() {
		return errors.Wrapf(cferr.ErrEntropyCorrupt, "entropy: value emit overflows subband at pos %d/%d", *pos, sb.size())
	}
	value := magnitude
	if negative && magnitude != 0 {
		value = -magnitude
	}
	sb.Dest[sb.addr(*pos)] = value
	*pos++
	return nil
}

// emitValue reads one sign bit (only if magnitude != 0), writes the
// signed coefficient at *pos, and advances *pos by one (§4.B step 3). This
// is the KindEscape path's emit: an escape literal is not table-resident,
// so its sign genuinely is a fresh bit read from the stream immediately
// after the literal, unlike KindEmitValue's table-carried Sign.
func emitValue(r *bitstream.Reader, sb Subband, pos *int, magnitude int16) error {
	if *pos >= sb.size() {
		return errors.Wrapf(cferr.ErrEntropyCorrupt, "entropy: value emit overflows subband at pos %d/%d", *pos, sb.size())
	}
	value := magnitude
	if magnitude != 0 {
		sign, err := r.ReadBit()
		if err != nil {
			return errors.Wrap(cferr.ErrTruncated, "entropy: reading sign bit")
		}
		if sign == 1 {
			value = -magnitude
		}
	}
	sb.Dest[sb.addr(*pos)] = value
	*pos++
	return nil
}
