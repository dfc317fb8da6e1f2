package cineform

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/cferr"
	"github.com/gopro-cineform/decoder/internal/codestream"
	"github.com/gopro-cineform/decoder/internal/pack"
)

// formatKind groups a PixelFormat by which pack row type it assembles
// through: the wavelet channels always decode as Y/Cb/Cr (or the four
// Bayer difference planes), and the format only decides the final byte
// layout plus, for the RGB family, whether a color matrix runs first.
type formatKind int

const (
	kindYUV formatKind = iota
	kindRGB
	kindBayer
)

type formatInfo struct {
	numChannels int
	hasAlpha    bool
	kind        formatKind
}

// describeFormat maps a PixelFormat to the channel layout Decode needs to
// assemble before it can call the matching pack.Write function (§4.F).
func describeFormat(f PixelFormat) (formatInfo, error) {
	switch f {
	case PixelFormatYUYV, PixelFormatUYVY, PixelFormatYU64, PixelFormatYR16Planar:
		return formatInfo{numChannels: 3, kind: kindYUV}, nil
	case PixelFormatRGB24, PixelFormatRG48, PixelFormatRG30, PixelFormatAB10, PixelFormatAR10, PixelFormatR210, PixelFormatDPX0:
		return formatInfo{numChannels: 3, kind: kindRGB}, nil
	case PixelFormatRGB32, PixelFormatRGBA64, PixelFormatB64A:
		return formatInfo{numChannels: 4, hasAlpha: true, kind: kindRGB}, nil
	case PixelFormatBayerPlanes:
		return formatInfo{numChannels: 4, kind: kindBayer}, nil
	default:
		return formatInfo{}, errors.Wrapf(cferr.ErrUnsupportedTag, "cineform: unknown pixel format %d", f)
	}
}

// rowAssembler buffers per-channel reconstructed rows until every channel
// of a given row index has arrived (the scheduler finishes channels in
// whatever order their transform trees settle), then hands the complete
// row to dispatch and forgets it.
type rowAssembler struct {
	mu          sync.Mutex // addRow is called from several pool workers
	numChannels int
	pending     map[int][][]int16
	counts      map[int]int
	dispatch    func(row int, chans [][]int16)
}

func newRowAssembler(numChannels int, dispatch func(row int, chans [][]int16)) codestream.ChannelRowFunc {
	ra := &rowAssembler{
		numChannels: numChannels,
		pending:     make(map[int][][]int16),
		counts:      make(map[int]int),
		dispatch:    dispatch,
	}
	return ra.addRow
}

func (ra *rowAssembler) addRow(channel, row int, pixels []int16) {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	slot, ok := ra.pending[row]
	if !ok {
		slot = make([][]int16, ra.numChannels)
		ra.pending[row] = slot
	}
	if slot[channel] == nil {
		ra.counts[row]++
	}
	cp := make([]int16, len(pixels))
	copy(cp, pixels)
	slot[channel] = cp

	if ra.counts[row] == ra.numChannels {
		ra.dispatch(row, slot)
		delete(ra.pending, row)
		delete(ra.counts, row)
	}
}

// writeRow converts one assembled row (channel 0..n-1, in wavelet decode
// order) to the caller's output byte layout.
func writeRow(dst []byte, cp ColorParams, layout formatInfo, chans [][]int16, precision int) error {
	switch layout.kind {
	case kindYUV:
		row := pack.YUVRow{Y: chans[0], Cb: chans[1], Cr: chans[2]}
		switch cp.Format {
		case PixelFormatYUYV:
			return pack.WriteYUYV(dst, row, precision)
		case PixelFormatUYVY:
			return pack.WriteUYVY(dst, row, precision)
		case PixelFormatYU64:
			return pack.WriteYU64(dst, row, precision)
		default:
			return errors.Wrapf(cferr.ErrUnsupportedTag, "cineform: format %v needs DecodePlanes, not Decode", cp.Format)
		}

	case kindRGB:
		cs, rng := cp.ColorSpace.matrixArgs()
		matrix := pack.MatrixFor(cs, rng, precision)
		row := yuvToRGBRow(matrix, chans, layout.hasAlpha, precision)
		switch cp.Format {
		case PixelFormatRGB24:
			return pack.WriteRGB24(dst, row, precision)
		case PixelFormatRGB32:
			return pack.WriteRGB32(dst, row, cp.alphaCurve(), precision)
		case PixelFormatRG48:
			return pack.WriteRG48(dst, row, precision)
		case PixelFormatRGBA64:
			return pack.WriteRGBA64(dst, row, cp.alphaCurve(), precision)
		case PixelFormatB64A:
			return pack.Writeb64a(dst, row, cp.alphaCurve(), precision)
		case PixelFormatRG30:
			return pack.WriteRG30(dst, row, precision)
		case PixelFormatAB10:
			return pack.WriteAB10(dst, row, precision)
		case PixelFormatAR10:
			return pack.WriteAR10(dst, row, precision)
		case PixelFormatR210:
			return pack.WriteR210(dst, row, precision)
		case PixelFormatDPX0:
			return pack.WriteDPX0(dst, row, precision)
		}

	case kindBayer:
		return errors.Wrapf(cferr.ErrUnsupportedTag, "cineform: format %v needs DecodePlanes, not Decode", cp.Format)
	}
	return errors.Wrapf(cferr.ErrUnsupportedTag, "cineform: unhandled pixel format %v", cp.Format)
}

// yuvToRGBRow upsamples the 4:2:2 chroma channels by nearest-neighbor
// duplication across each luma pair and runs the fixed-point color matrix
// per sample; §4.F leaves chroma upsampling filter choice unspecified, so
// this follows the same nearest-neighbor convention the wavelet's own
// horizontal lowpass/highpass split treats a pair of samples with.
func yuvToRGBRow(m pack.Matrix, chans [][]int16, hasAlpha bool, precision int) pack.RGBRow {
	y := chans[0]
	width := len(y)
	r := make([]int16, width)
	g := make([]int16, width)
	b := make([]int16, width)
	cb, cr := chans[1], chans[2]
	for i := 0; i < width; i++ {
		ci := i / 2
		if ci >= len(cb) {
			ci = len(cb) - 1
		}
		rr, gg, bb := m.ToRGB(y[i], cb[ci], cr[ci], precision)
		r[i], g[i], b[i] = int16(rr), int16(gg), int16(bb)
	}
	row := pack.RGBRow{R: r, G: g, B: b}
	if hasAlpha {
		row.A = chans[3]
	}
	return row
}
