package cineform

import "github.com/gopro-cineform/decoder/internal/pack"

// ColorSpace selects the YUV<->RGB matrix family and range a sample's
// color channels are interpreted with (§6).
type ColorSpace int

const (
	// ColorSpaceCG601 is computer-graphics-range (full-swing) BT.601.
	ColorSpaceCG601 ColorSpace = iota
	// ColorSpaceVS601 is video-range (studio-swing) BT.601.
	ColorSpaceVS601
	// ColorSpaceCG709 is computer-graphics-range BT.709.
	ColorSpaceCG709
	// ColorSpaceVS709 is video-range BT.709.
	ColorSpaceVS709
)

func (cs ColorSpace) matrixArgs() (pack.ColorSpace, pack.Range) {
	switch cs {
	case ColorSpaceCG709:
		return pack.BT709, pack.RangeFull
	case ColorSpaceVS709:
		return pack.BT709, pack.RangeVideo
	case ColorSpaceVS601:
		return pack.BT601, pack.RangeVideo
	default: // ColorSpaceCG601
		return pack.BT601, pack.RangeFull
	}
}

// Resolution selects a reduced-resolution decode (§4.E/§6). Half
// horizontal elides the bottom level's horizontal-highpass bands only.
// ResolutionQuarter is accepted but decodes at full resolution: no
// reconstruction level is skipped.
type Resolution int

const (
	ResolutionFull Resolution = iota
	ResolutionHalfHorizontal
	ResolutionQuarter
)

// PixelFormat selects the row packer's output byte layout (§4.F). The
// zero value, PixelFormatYUYV, is the format a CineForm 4:2:2 iframe
// normally decodes to.
type PixelFormat int

const (
	PixelFormatYUYV PixelFormat = iota
	PixelFormatUYVY
	PixelFormatYU64
	PixelFormatYR16Planar
	PixelFormatRGB24
	PixelFormatRGB32
	PixelFormatRG48
	PixelFormatRGBA64
	PixelFormatB64A
	PixelFormatRG30
	PixelFormatAB10
	PixelFormatAR10
	PixelFormatR210
	PixelFormatDPX0
	PixelFormatBayerPlanes
)

// ColorParams bundles the per-decode color and layout parameters (§6's
// "color parameters struct"). It is the whole configuration surface for
// one Decode call; there is no environment or flag parsing in the core.
type ColorParams struct {
	ColorSpace  ColorSpace
	Resolution  Resolution
	Precision   int // 8, 10, or 12
	Invert      bool
	LimitYUV    bool
	Format      PixelFormat
	AlphaCurve  pack.AlphaCurve // identity used when zero or when EncodeCurve is false
	EncodeCurve bool            // honor a companding curve on non-Bayer sources too (§9 open question 3)
}

func (c ColorParams) alphaCurve() pack.AlphaCurve {
	if !c.EncodeCurve || c.AlphaCurve == (pack.AlphaCurve{}) {
		return pack.IdentityAlpha
	}
	return c.AlphaCurve
}
