// Package codestream implements the sample parser (§4.H): it walks the
// tagged-tuple stream that makes up one compressed CineForm sample,
// builds the transform tree for each channel, and drives the entropy and
// wavelet-reconstruction stages (internal/entropy, internal/transform,
// internal/schedule) to produce an output frame.
package codestream

import "github.com/gopro-cineform/decoder/internal/bitstream"

// Tag identifies one (tag, value) tuple's role in the wire format (§6):
// structural tags describe the transform tree shape, metadata tags carry
// color/format parameters, and any tag with bitstream.OptionalTagBit set
// is a forward-compatible extension unknown decoders may skip.
type Tag int16

// Structural tags (§4.H step 1/2): these describe the sample, channel,
// wavelet, and band shape and must be understood by every decoder.
const (
	TagSampleType       Tag = 0x0001
	TagSampleSize       Tag = 0x0002
	TagChannelCount     Tag = 0x0003
	TagFrameWidth       Tag = 0x0004
	TagFrameHeight      Tag = 0x0005
	TagDisplayHeight    Tag = 0x0006
	TagWaveletLevel     Tag = 0x0010
	TagWaveletShape     Tag = 0x0011
	TagWaveletNumBands  Tag = 0x0012
	TagWaveletWidth     Tag = 0x0013
	TagWaveletHeight    Tag = 0x0014
	TagBandIndex        Tag = 0x0020
	TagBandQuantizer    Tag = 0x0021
	TagBandCodebook     Tag = 0x0022
	TagBandPeaksAllowed Tag = 0x0023
	TagBandDifference   Tag = 0x0024
	TagBandDataStart    Tag = 0x0025
	TagBandDataLength   Tag = 0x0026
	TagEndOfChannel     Tag = 0x0030
	TagEndOfSample      Tag = 0x0031
)

// Metadata tags (§6): color/format parameters a decoder must apply but
// that never change the transform tree's shape.
const (
	TagColorSpace     Tag = 0x0040
	TagEncodeCurve    Tag = 0x0041
	TagAlphaCompanded Tag = 0x0042
	TagFrameRate      Tag = 0x0043
	TagPixelFormat    Tag = 0x0044
)

// SampleType enumerates §3's sample kinds.
type SampleType int16

const (
	TypeGroup SampleType = iota
	TypeFrame
	TypeIFrame
	TypeSequenceHeader
)

func tagOf(tv bitstream.TagValue) Tag { return Tag(tv.Code()) }
