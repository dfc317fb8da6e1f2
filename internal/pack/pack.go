// Package pack implements the row packer / color output stage (§4.F): a
// family of row writers parameterized by (source layout, target format,
// color space, precision) that turn one or two reconstructed rows of
// signed, pre-saturation coefficients into a caller-supplied output byte
// row.
//
// Per §9's "dense per-format expansion" design note, each target format is
// a small adapter rather than a duplicated reconstruction driver: the
// shared pieces are the fixed-point color matrix (Matrix), the alpha
// companding curve (AlphaCurve) and the row-striping base (RowBase); the
// per-format functions only decide byte order and channel packing.
//
// The color-matrix coefficients are grounded in the same integer-lifting
// style as the teacher's internal/mct.InverseRCT (shift-based, no
// floating point at the per-pixel level) generalized from RCT's single
// reversible matrix to BT.601/BT.709 video- and full-range matrices,
// since CineForm decode needs the genuine (lossy) YUV<->RGB matrices,
// here as precomputed ≥13-bit fixed-point integer coefficients (§4.F)
// rather than float64 arithmetic.
package pack

import "github.com/pkg/errors"

// ColorSpace selects which matrix family a YUV-to-RGB conversion uses.
type ColorSpace int

const (
	BT601 ColorSpace = iota
	BT709
)

// Range selects studio ("video") or full-swing luma/chroma range.
type Range int

const (
	RangeVideo Range = iota
	RangeFull
)

// FixedShift is the fixed-point scale every Matrix coefficient and the
// luma/chroma range-expansion factors are expressed in (§4.F requires
// "≥13-bit" fixed point; this implementation uses exactly 13).
const FixedShift = 13

// Matrix holds one fixed-point YCbCr-to-RGB conversion, including the
// studio-range expansion factor folded into YScale/CScale so ToRGB never
// needs a second pass.
type Matrix struct {
	CrToR, CbToG, CrToG, CbToB int32
	YScale, CScale             int32
	YOffset, ChromaMid         int32
}

const (
	videoYScale = 9539 // round(255/219 * 1<<FixedShift)
	videoCScale = 9326 // round(255/224 * 1<<FixedShift)
	fullScale   = 1 << FixedShift
)

// MatrixFor builds the fixed-point matrix for one (color space, range,
// precision) combination. precision is the bit depth of Y/Cb/Cr samples
// (8, 10 or 12 per §4.D's precision policy).
func MatrixFor(cs ColorSpace, rng Range, precision int) Matrix {
	m := Matrix{ChromaMid: int32(1) << uint(precision-1)}
	switch cs {
	case BT709:
		m.CrToR, m.CbToG, m.CrToG, m.CbToB = 12900, -1534, -3834, 15200
	default: // BT601
		m.CrToR, m.CbToG, m.CrToG, m.CbToB = 11485, -2819, -5850, 14516
	}
	if rng == RangeVideo {
		m.YOffset = int32(16) << uint(precision-8)
		m.YScale = videoYScale
		m.CScale = videoCScale
	} else {
		m.YOffset = 0
		m.YScale = fullScale
		m.CScale = fullScale
	}
	return m
}

// ToRGB converts one YCbCr sample to RGB, saturating each component to
// [0, 2^precision). Saturation happens here and only here, per §4.F: "the
// output is saturated to the target precision at this stage and only at
// this stage."
func (m Matrix) ToRGB(y, cb, cr int16, precision int) (r, g, b int32) {
	y32 := (int32(y) - m.YOffset) * m.YScale >> FixedShift
	cb32 := (int32(cb) - m.ChromaMid) * m.CScale >> FixedShift
	cr32 := (int32(cr) - m.ChromaMid) * m.CScale >> FixedShift

	r = saturate(y32+((m.CrToR*cr32)>>FixedShift), precision)
	g = saturate(y32+((m.CbToG*cb32+m.CrToG*cr32)>>FixedShift), precision)
	b = saturate(y32+((m.CbToB*cb32)>>FixedShift), precision)
	return
}

func saturate(v int32, precision int) int32 {
	max := int32(1)<<uint(precision) - 1
	switch {
	case v < 0:
		return 0
	case v > max:
		return max
	default:
		return v
	}
}

// AlphaCurve implements the companding inverse §4.F specifies verbatim:
// a_unc = ((a_enc - offset) * gain) >> 16.
type AlphaCurve struct {
	Offset int32
	Gain   int32
}

// IdentityAlpha leaves alpha unchanged (offset 0, unity gain), the curve
// used when a stream carries no companding metadata.
var IdentityAlpha = AlphaCurve{Offset: 0, Gain: 1 << 16}

// Decompand inverts the encode-time companding curve.
func (c AlphaCurve) Decompand(enc int32) int32 {
	return int32((int64(enc-c.Offset) * int64(c.Gain)) >> 16)
}

// RowBase resolves a logical row index to a byte slice of an output
// buffer, modeling negative-pitch (bottom-up) output as an unsigned base
// plus a signed per-row stride (§4.F's row-striping rule) instead of
// branching on sign at every row.
type RowBase struct {
	data   []byte
	base   int
	stride int
}

// NewRowBase builds a RowBase over data for an image of the given height
// where each row occupies |pitch| bytes. invert selects bottom-up output.
func NewRowBase(data []byte, height, pitch int, invert bool) RowBase {
	if invert {
		return RowBase{data: data, base: (height - 1) * pitch, stride: -pitch}
	}
	return RowBase{data: data, base: 0, stride: pitch}
}

// Row returns the width-byte slice for logical row y.
func (rb RowBase) Row(y, width int) []byte {
	start := rb.base + y*rb.stride
	return rb.data[start : start+width]
}

// YUVRow is one row of a 4:2:2 YUV source: Y has `width` samples, Cb/Cr
// have width/2 (one chroma sample per luma pair).
type YUVRow struct {
	Y, Cb, Cr []int16
}

// RGBRow is one row of an RGB(A) source. A is nil when the source carries
// no alpha plane.
type RGBRow struct {
	R, G, B, A []int16
}

func put16LE(dst []byte, v int32) { dst[0] = byte(v); dst[1] = byte(v >> 8) }
func put16BE(dst []byte, v int32) { dst[0] = byte(v >> 8); dst[1] = byte(v) }

// scaleTo16 widens a precision-bit sample to the full 16-bit range, the
// convention the 16-bit-per-channel formats (YU64, YR16, RG48, RGBA64,
// b64a) use for sources narrower than 16 bits.
func scaleTo16(v int32, precision int) int32 {
	return v << uint(16-precision)
}

// WriteYUYV packs one 4:2:2 row as Y0 Cb Y1 Cr byte quads.
func WriteYUYV(dst []byte, row YUVRow, precision int) error {
	if err := checkYUVRow(dst, row, 4); err != nil {
		return err
	}
	for i, pair := range row.Cb {
		o := i * 4
		dst[o+0] = byte(saturate(int32(row.Y[2*i]), precision))
		dst[o+1] = byte(saturate(int32(pair), precision))
		dst[o+2] = byte(saturate(int32(row.Y[2*i+1]), precision))
		dst[o+3] = byte(saturate(int32(row.Cr[i]), precision))
	}
	return nil
}

// WriteUYVY packs one 4:2:2 row as Cb Y0 Cr Y1 byte quads.
func WriteUYVY(dst []byte, row YUVRow, precision int) error {
	if err := checkYUVRow(dst, row, 4); err != nil {
		return err
	}
	for i, pair := range row.Cb {
		o := i * 4
		dst[o+0] = byte(saturate(int32(pair), precision))
		dst[o+1] = byte(saturate(int32(row.Y[2*i]), precision))
		dst[o+2] = byte(saturate(int32(row.Cr[i]), precision))
		dst[o+3] = byte(saturate(int32(row.Y[2*i+1]), precision))
	}
	return nil
}

// WriteYU64 packs one 4:2:2 row as 16-bit-per-sample Y0 Cb Y1 Cr, little
// endian, samples widened to the full 16-bit range.
func WriteYU64(dst []byte, row YUVRow, precision int) error {
	if err := checkYUVRow(dst, row, 8); err != nil {
		return err
	}
	for i, pair := range row.Cb {
		o := i * 8
		put16LE(dst[o+0:], scaleTo16(int32(row.Y[2*i]), precision))
		put16LE(dst[o+2:], scaleTo16(int32(pair), precision))
		put16LE(dst[o+4:], scaleTo16(int32(row.Y[2*i+1]), precision))
		put16LE(dst[o+6:], scaleTo16(int32(row.Cr[i]), precision))
	}
	return nil
}

// WriteYR16 packs one 4:2:2 row into three planar 16-bit destinations.
func WriteYR16(dstY, dstCb, dstCr []byte, row YUVRow, precision int) error {
	if len(dstY) < len(row.Y)*2 || len(dstCb) < len(row.Cb)*2 || len(dstCr) < len(row.Cr)*2 {
		return errors.New("pack: YR16 destination too small")
	}
	for i, v := range row.Y {
		put16LE(dstY[i*2:], scaleTo16(int32(v), precision))
	}
	for i, v := range row.Cb {
		put16LE(dstCb[i*2:], scaleTo16(int32(v), precision))
	}
	for i, v := range row.Cr {
		put16LE(dstCr[i*2:], scaleTo16(int32(v), precision))
	}
	return nil
}

func checkYUVRow(dst []byte, row YUVRow, bytesPerPair int) error {
	if len(row.Cb) != len(row.Cr) || len(row.Y) != 2*len(row.Cb) {
		return errors.New("pack: malformed 4:2:2 row (Y/Cb/Cr length mismatch)")
	}
	if len(dst) < len(row.Cb)*bytesPerPair {
		return errors.New("pack: destination row too small")
	}
	return nil
}

func alphaOr(a []int16, i int, curve AlphaCurve, precision int) int32 {
	if a == nil {
		return int32(1)<<uint(precision) - 1
	}
	return saturate(curve.Decompand(int32(a[i])), precision)
}

// WriteRGB24 packs one row as 3 bytes/pixel, R G B order.
func WriteRGB24(dst []byte, row RGBRow, precision int) error {
	if len(dst) < len(row.R)*3 {
		return errors.New("pack: RGB24 destination too small")
	}
	for i := range row.R {
		o := i * 3
		dst[o+0] = byte(saturate(int32(row.R[i]), precision))
		dst[o+1] = byte(saturate(int32(row.G[i]), precision))
		dst[o+2] = byte(saturate(int32(row.B[i]), precision))
	}
	return nil
}

// WriteRGB32 packs one row as 4 bytes/pixel, R G B A order; rows without
// an alpha plane get an opaque alpha byte.
func WriteRGB32(dst []byte, row RGBRow, curve AlphaCurve, precision int) error {
	if len(dst) < len(row.R)*4 {
		return errors.New("pack: RGB32 destination too small")
	}
	for i := range row.R {
		o := i * 4
		dst[o+0] = byte(saturate(int32(row.R[i]), precision))
		dst[o+1] = byte(saturate(int32(row.G[i]), precision))
		dst[o+2] = byte(saturate(int32(row.B[i]), precision))
		dst[o+3] = byte(alphaOr(row.A, i, curve, precision))
	}
	return nil
}

// WriteRG48 packs one row as 16-bit R,G,B, little endian, samples
// widened to the full 16-bit range.
func WriteRG48(dst []byte, row RGBRow, precision int) error {
	if len(dst) < len(row.R)*6 {
		return errors.New("pack: RG48 destination too small")
	}
	for i := range row.R {
		o := i * 6
		put16LE(dst[o+0:], scaleTo16(saturate(int32(row.R[i]), precision), precision))
		put16LE(dst[o+2:], scaleTo16(saturate(int32(row.G[i]), precision), precision))
		put16LE(dst[o+4:], scaleTo16(saturate(int32(row.B[i]), precision), precision))
	}
	return nil
}

// WriteRGBA64 packs one row as 16-bit R,G,B,A, little endian.
func WriteRGBA64(dst []byte, row RGBRow, curve AlphaCurve, precision int) error {
	if len(dst) < len(row.R)*8 {
		return errors.New("pack: RGBA64 destination too small")
	}
	for i := range row.R {
		o := i * 8
		put16LE(dst[o+0:], scaleTo16(saturate(int32(row.R[i]), precision), precision))
		put16LE(dst[o+2:], scaleTo16(saturate(int32(row.G[i]), precision), precision))
		put16LE(dst[o+4:], scaleTo16(saturate(int32(row.B[i]), precision), precision))
		put16LE(dst[o+6:], scaleTo16(alphaOr(row.A, i, curve, precision), precision))
	}
	return nil
}

// Writeb64a packs one row as big-endian A,R,G,B 16-bit quads (QuickTime's
// "b64a" pixel format).
func Writeb64a(dst []byte, row RGBRow, curve AlphaCurve, precision int) error {
	if len(dst) < len(row.R)*8 {
		return errors.New("pack: b64a destination too small")
	}
	for i := range row.R {
		o := i * 8
		put16BE(dst[o+0:], scaleTo16(alphaOr(row.A, i, curve, precision), precision))
		put16BE(dst[o+2:], scaleTo16(saturate(int32(row.R[i]), precision), precision))
		put16BE(dst[o+4:], scaleTo16(saturate(int32(row.G[i]), precision), precision))
		put16BE(dst[o+6:], scaleTo16(saturate(int32(row.B[i]), precision), precision))
	}
	return nil
}

// tenBitLayout places three 10-bit channels (plus two padding bits) into
// one 32-bit word, with a chosen channel order and endianness. The five
// 10-bit packed formats §4.F lists (RG30, AB10, AR10, R210, DPX0) differ
// only in this layout.
type tenBitLayout struct {
	shiftR, shiftG, shiftB uint
	bigEndian              bool
}

// RG30 and AB10 share a byte layout in this implementation; hosts that
// distinguish them at the container level still get two named entry
// points to wire against.
var (
	layoutRG30 = tenBitLayout{shiftR: 0, shiftG: 10, shiftB: 20, bigEndian: false}
	layoutAB10 = tenBitLayout{shiftR: 0, shiftG: 10, shiftB: 20, bigEndian: false}
	layoutAR10 = tenBitLayout{shiftR: 20, shiftG: 10, shiftB: 0, bigEndian: false}
	layoutR210 = tenBitLayout{shiftR: 20, shiftG: 10, shiftB: 0, bigEndian: true}
	layoutDPX0 = tenBitLayout{shiftR: 22, shiftG: 12, shiftB: 2, bigEndian: true}
)

// to10 rescales a precision-bit sample to 10 bits.
func to10(v int32, precision int) int32 {
	if precision == 10 {
		return v
	}
	if precision < 10 {
		return v << uint(10-precision)
	}
	return v >> uint(precision-10)
}

func writeTenBitRow(dst []byte, row RGBRow, layout tenBitLayout, precision int) error {
	if len(dst) < len(row.R)*4 {
		return errors.New("pack: 10-bit packed destination too small")
	}
	for i := range row.R {
		r := to10(saturate(int32(row.R[i]), precision), precision)
		g := to10(saturate(int32(row.G[i]), precision), precision)
		b := to10(saturate(int32(row.B[i]), precision), precision)
		word := uint32(r)<<layout.shiftR | uint32(g)<<layout.shiftG | uint32(b)<<layout.shiftB
		o := i * 4
		if layout.bigEndian {
			dst[o+0] = byte(word >> 24)
			dst[o+1] = byte(word >> 16)
			dst[o+2] = byte(word >> 8)
			dst[o+3] = byte(word)
		} else {
			dst[o+0] = byte(word)
			dst[o+1] = byte(word >> 8)
			dst[o+2] = byte(word >> 16)
			dst[o+3] = byte(word >> 24)
		}
	}
	return nil
}

func WriteRG30(dst []byte, row RGBRow, precision int) error { return writeTenBitRow(dst, row, layoutRG30, precision) }
func WriteAB10(dst []byte, row RGBRow, precision int) error { return writeTenBitRow(dst, row, layoutAB10, precision) }
func WriteAR10(dst []byte, row RGBRow, precision int) error { return writeTenBitRow(dst, row, layoutAR10, precision) }
func WriteR210(dst []byte, row RGBRow, precision int) error { return writeTenBitRow(dst, row, layoutR210, precision) }
func WriteDPX0(dst []byte, row RGBRow, precision int) error { return writeTenBitRow(dst, row, layoutDPX0, precision) }

// BayerRow is one row of the decoder's internal 4-plane Bayer
// representation: G (green), R-G and B-G (color differences), and
// G1-G2 (the two green sub-lattices' difference), each at quarter
// resolution of the final mosaic.
type BayerRow struct {
	G, RMinusG, BMinusG, GDiff []int16
}

// WriteBayerPlanes reconstructs the four raw Bayer planes (as the packer
// never re-mosaics to a single CFA row per §4.F's scope) into four
// caller-supplied destinations, undoing the color-difference encoding.
func WriteBayerPlanes(dstG, dstR, dstB, dstG2 []byte, row BayerRow, precision int) error {
	n := len(row.G)
	if len(row.RMinusG) != n || len(row.BMinusG) != n || len(row.GDiff) != n {
		return errors.New("pack: Bayer plane length mismatch")
	}
	if len(dstG) < n*2 || len(dstR) < n*2 || len(dstB) < n*2 || len(dstG2) < n*2 {
		return errors.New("pack: Bayer destination too small")
	}
	for i := 0; i < n; i++ {
		g := int32(row.G[i])
		r := saturate(g+int32(row.RMinusG[i]), precision)
		b := saturate(g+int32(row.BMinusG[i]), precision)
		g1 := saturate(g, precision)
		g2 := saturate(g+int32(row.GDiff[i]), precision)
		put16LE(dstG[i*2:], scaleTo16(g1, precision))
		put16LE(dstR[i*2:], scaleTo16(r, precision))
		put16LE(dstB[i*2:], scaleTo16(b, precision))
		put16LE(dstG2[i*2:], scaleTo16(g2, precision))
	}
	return nil
}
