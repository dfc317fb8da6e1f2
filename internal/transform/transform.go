// Package transform implements the wavelet reconstruction engine (§4.E):
// given a transform tree of wavelets with per-band validity flags, it
// drives the inverse kernels (internal/wavelet) to turn a fully-valid
// wavelet into the LL band one level down, or, at the bottom of the
// pyramid, directly into the output channel image via row streaming.
//
// The reference decoder models "level L's LL is level L-1's reconstruction
// target" with pointer aliasing between C structs. §9 calls for an
// arena-of-wavelets with index handles instead, which is what Arena/
// WaveletHandle provide here: a wavelet never holds a pointer to its
// parent, only an index that stays valid across the arena's backing slice
// growing. This is grounded in the teacher package's tile/resolution/band
// tree shape (internal/tcd.Tile -> Resolution -> Band) generalized from
// JPEG 2000's packet-oriented resolutions to CineForm's flat per-channel
// wavelet list; tcd's Precinct/TagTree (packet inclusion bookkeeping) has
// no CineForm analogue and is not carried over.
package transform

import (
	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/cferr"
	"github.com/gopro-cineform/decoder/internal/entropy"
	"github.com/gopro-cineform/decoder/internal/wavelet"
)

// BandIndex names a subband's position within a wavelet using
// [vertical][horizontal] bit order: bit0 set means horizontal-highpass,
// bit1 set means vertical-highpass. This matches §3's enumeration order
// {LL,LH,HL,HH} and makes the half-resolution knob's "band indices 1 and
// 3 are horizontal highpass" (§4.E) a direct bit test.
type BandIndex int

const (
	BandLL BandIndex = iota // vertical-low,  horizontal-low
	BandLH                  // vertical-low,  horizontal-high
	BandHL                  // vertical-high, horizontal-low
	BandHH                  // vertical-high, horizontal-high
)

// IsHorizontalHighpass reports whether skipping this band's FSM decode is
// what the half-horizontal-resolution knob means (§4.E).
func (b BandIndex) IsHorizontalHighpass() bool { return b&1 == 1 }

// Shape selects which inverse kernel family a wavelet's bands need,
// formalizing §9's "tagged variant TransformShape" design note.
type Shape int

const (
	ShapeSpatial Shape = iota
	ShapeSpatialTemporal
	ShapeFieldPlus
)

// BandsAllValid returns the validity bitmask meaning every one of
// numBands bands has been entropy-decoded (§3's "band_valid_flags ==
// (1<<num_bands)-1" invariant).
func BandsAllValid(numBands int) uint8 {
	return uint8(1<<uint(numBands)) - 1
}

// WaveletHandle indexes a Wavelet within an Arena. NoParent marks the
// bottom-level wavelet of a channel, whose reconstruction target is the
// channel image itself rather than another wavelet's LL band.
type WaveletHandle int

const NoParent WaveletHandle = -1

// Wavelet is one decomposition level of one channel (§3's "Wavelet").
type Wavelet struct {
	Level            int
	Shape            Shape
	NumBands         int
	Bands            [4]entropy.Subband
	BandValidFlags   uint8
	BandStartedFlags uint8
	Parent           WaveletHandle
}

// Reconstructible reports the §3 invariant: every declared band has been
// entropy-decoded (or, for a band skipped by the half-resolution knob,
// registered valid with a zeroed Subband by the caller).
func (w *Wavelet) Reconstructible() bool {
	return w.BandValidFlags == BandsAllValid(w.NumBands)
}

// MarkBandValid records that band has started and finished decode.
func (w *Wavelet) MarkBandValid(band BandIndex) {
	bit := uint8(1) << uint(band)
	w.BandStartedFlags |= bit
	w.BandValidFlags |= bit
}

// MarkBandStarted records that a worker has claimed band but not yet
// finished it, the distinction §3's per-band "started" bitmask exists
// for (a worker scanning the transform queue must not mistake "claimed"
// for "valid").
func (w *Wavelet) MarkBandStarted(band BandIndex) {
	w.BandStartedFlags |= uint8(1) << uint(band)
}

// Arena owns the flat backing store for every wavelet in a channel's
// transform tree, so "level L's LL is level L-1's target" is a handle
// lookup rather than a pointer held across two structs' lifetimes.
type Arena struct {
	wavelets []Wavelet
}

// NewArena returns an empty arena.
func NewArena() *Arena { return &Arena{} }

// Add appends w to the arena and returns its handle.
func (a *Arena) Add(w Wavelet) WaveletHandle {
	a.wavelets = append(a.wavelets, w)
	return WaveletHandle(len(a.wavelets) - 1)
}

// Get returns a pointer to the wavelet at h, valid until the next Add
// triggers a backing-slice reallocation — callers needing a stable
// reference across Adds should re-resolve the handle rather than retain
// the pointer.
func (a *Arena) Get(h WaveletHandle) *Wavelet { return &a.wavelets[h] }

// Len reports how many wavelets the arena currently holds.
func (a *Arena) Len() int { return len(a.wavelets) }

// Reset empties the arena for reuse across samples (§3's "Transform
// memory is reused across samples" lifecycle rule), keeping the backing
// array's capacity.
func (a *Arena) Reset() { a.wavelets = a.wavelets[:0] }

// WriteParentLL installs a freshly reconstructed band as the LL band of
// h's parent wavelet, without h or the parent ever holding a pointer to
// each other (§9's arena note). It does not mark the parent's LL band
// valid; the scheduler does that once it has observed the copy complete,
// mirroring §4.E step 4's "mark the consumer's LL band valid."
func (a *Arena) WriteParentLL(h WaveletHandle, sb entropy.Subband) {
	w := a.Get(h)
	if w.Parent == NoParent {
		return
	}
	a.Get(w.Parent).Bands[BandLL] = sb
}

// bandRow returns band row i (clamped to the band's valid range, i.e.
// reflecting at the top/bottom boundary the way InvertVerticalTopRow/
// BottomRow expect their caller to have already resolved).
func bandRow(sb entropy.Subband, i int) []int16 {
	if i < 0 {
		i = 0
	}
	if i >= sb.Height {
		i = sb.Height - 1
	}
	start := i * sb.Pitch
	return sb.Dest[start : start+sb.Width]
}

// reconstructRowPair computes the two full-width spatial rows (2*j, 2*j+1)
// for band row j of a four-band spatial wavelet, fusing the vertical and
// horizontal inverse steps (§4.D's "band-pair fusion") so that no
// intermediate full-band array is ever materialized — only the per-row
// scratch slices the caller supplies.
func reconstructRowPair(w *Wavelet, j int, evenLow, oddLow, evenHigh, oddHigh, outEven, outOdd []int16) {
	ll, lh, hl, hh := w.Bands[BandLL], w.Bands[BandLH], w.Bands[BandHL], w.Bands[BandHH]
	last := ll.Height - 1

	lowCenter, lowBelow := bandRow(ll, j), bandRow(ll, j+1)
	switch {
	case j == 0:
		wavelet.InvertVerticalTopRow(lowCenter, lowBelow, bandRow(hl, j), bandRow(hl, j+1), evenLow, oddLow)
	case j == last:
		wavelet.InvertVerticalBottomRow(lowCenter, bandRow(hl, j-1), bandRow(hl, j), evenLow, oddLow)
	default:
		wavelet.InvertVerticalMiddleRow(lowCenter, lowBelow, bandRow(hl, j-1), bandRow(hl, j), bandRow(hl, j+1), evenLow, oddLow)
	}

	lowCenter2, lowBelow2 := bandRow(lh, j), bandRow(lh, j+1)
	switch {
	case j == 0:
		wavelet.InvertVerticalTopRow(lowCenter2, lowBelow2, bandRow(hh, j), bandRow(hh, j+1), evenHigh, oddHigh)
	case j == last:
		wavelet.InvertVerticalBottomRow(lowCenter2, bandRow(hh, j-1), bandRow(hh, j), evenHigh, oddHigh)
	default:
		wavelet.InvertVerticalMiddleRow(lowCenter2, lowBelow2, bandRow(hh, j-1), bandRow(hh, j), bandRow(hh, j+1), evenHigh, oddHigh)
	}

	wavelet.InvertHorizontalRow(evenLow, evenHigh, outEven)
	wavelet.InvertHorizontalRow(oddLow, oddHigh, outOdd)
}

// ReconstructFull performs §4.E step 2 for a non-bottom-level wavelet,
// where the full band is already resident in memory: it returns the
// reconstructed LL band for the level below as one contiguous buffer.
func ReconstructFull(w *Wavelet, _ wavelet.Precision) (entropy.Subband, error) {
	if w.NumBands != 4 {
		return entropy.Subband{}, errors.Wrapf(cferr.ErrBadFormat, "transform: ReconstructFull needs 4 bands, got %d", w.NumBands)
	}
	if !w.Reconstructible() {
		return entropy.Subband{}, errors.Wrapf(cferr.ErrInternalInvariant, "transform: level %d reconstruction started before all bands valid (flags=%#02x)", w.Level, w.BandValidFlags)
	}
	bw, bh := w.Bands[BandLL].Width, w.Bands[BandLL].Height
	outW, outH := bw*2, bh*2
	out := make([]int16, outW*outH)

	evenLow := make([]int16, bw)
	oddLow := make([]int16, bw)
	evenHigh := make([]int16, bw)
	oddHigh := make([]int16, bw)

	for j := 0; j < bh; j++ {
		reconstructRowPair(w, j, evenLow, oddLow, evenHigh, oddHigh, out[2*j*outW:2*j*outW+outW], out[(2*j+1)*outW:(2*j+1)*outW+outW])
	}
	return entropy.Subband{Dest: out, Width: outW, Height: outH, Pitch: outW}, nil
}

// RowSink receives one fully reconstructed output row at the bottom of
// the pyramid, typically the packer's row-pack entry point (§4.F).
type RowSink func(row int, pixels []int16)

// ReconstructBottomStreaming performs §4.E's row-streaming reconstruction
// for the bottom-level wavelet: it drives the fused vertical/horizontal
// kernels band-row by band-row, handing each pair of output rows to sink
// and never holding more than the three rolling band rows (top/mid/
// bottom) per band the spec calls for.
func ReconstructBottomStreaming(w *Wavelet, _ wavelet.Precision, sink RowSink) error {
	if w.NumBands != 4 {
		return errors.Wrapf(cferr.ErrBadFormat, "transform: ReconstructBottomStreaming needs 4 bands, got %d", w.NumBands)
	}
	if !w.Reconstructible() {
		return errors.Wrapf(cferr.ErrInternalInvariant, "transform: bottom level reconstruction started before all bands valid (flags=%#02x)", w.BandValidFlags)
	}
	bw, bh := w.Bands[BandLL].Width, w.Bands[BandLL].Height

	evenLow := make([]int16, bw)
	oddLow := make([]int16, bw)
	evenHigh := make([]int16, bw)
	oddHigh := make([]int16, bw)
	outEven := make([]int16, bw*2)
	outOdd := make([]int16, bw*2)

	for j := 0; j < bh; j++ {
		reconstructRowPair(w, j, evenLow, oddLow, evenHigh, oddHigh, outEven, outOdd)
		sink(2*j, outEven)
		sink(2*j+1, outOdd)
	}
	return nil
}

// ReconstructTemporal performs §4.E step 2/3 for a 2-band temporal
// wavelet: the result is a pair of full-resolution-in-time frames/fields,
// not a 2x-larger spatial buffer. The sample parser emits them as the
// even and odd output rows of the channel.
func ReconstructTemporal(w *Wavelet) (even, odd entropy.Subband, err error) {
	if w.NumBands != 2 {
		return entropy.Subband{}, entropy.Subband{}, errors.Wrapf(cferr.ErrBadFormat, "transform: ReconstructTemporal needs 2 bands, got %d", w.NumBands)
	}
	if !w.Reconstructible() {
		return entropy.Subband{}, entropy.Subband{}, errors.Wrapf(cferr.ErrInternalInvariant, "transform: temporal level %d reconstruction started before both bands valid", w.Level)
	}
	low, high := w.Bands[0], w.Bands[1]
	n := low.Width * low.Height
	evenData := make([]int16, n)
	oddData := make([]int16, n)
	wavelet.TemporalInvertPair(low.Dest[:n], high.Dest[:n], evenData, oddData)
	sb := entropy.Subband{Width: low.Width, Height: low.Height, Pitch: low.Width}
	sb.Dest = evenData
	even = sb
	sb.Dest = oddData
	odd = sb
	return even, odd, nil
}
