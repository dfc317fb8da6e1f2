// Package cineform implements the decoder core of a CineForm-style
// visually-lossless wavelet video codec: an FSM entropy decoder, inverse
// wavelet reconstruction, and a concurrent shared-queue worker pool that
// turns one compressed sample into a packed output frame.
//
// Basic usage:
//
//	d, err := cineform.New(1920, 1080, 4, runtime.NumCPU())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	info, err := d.ParseHeader(sampleBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	frame := make([]byte, info.Height*outPitch)
//	err = d.Decode(sampleBytes, frame, outPitch, cineform.ColorParams{
//	    ColorSpace: cineform.ColorSpaceVS601,
//	    Precision:  8,
//	    Format:     cineform.PixelFormatYUYV,
//	})
//
// Encoding, a packaged CLI, platform thread primitives, and bit-exact
// parity with any particular hardware decoder are out of scope; see
// SPEC_FULL.md for the full boundary.
package cineform

import "github.com/gopro-cineform/decoder/internal/codestream"

// SampleInfo is the lightweight summary ParseHeader returns (§6): enough
// to size an output buffer without decoding a single subband.
type SampleInfo = codestream.SampleInfo

// SampleType enumerates the sample kinds a bitstream's type tag can carry.
type SampleType = codestream.SampleType

const (
	SampleGroup          = codestream.TypeGroup
	SampleFrame          = codestream.TypeFrame
	SampleIFrame         = codestream.TypeIFrame
	SampleSequenceHeader = codestream.TypeSequenceHeader
)
