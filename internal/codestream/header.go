package codestream

import (
	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/bitstream"
	"github.com/gopro-cineform/decoder/internal/cferr"
)

// SampleInfo is the lightweight summary parse_header returns (§6): enough
// to size an output buffer without decoding a single subband.
type SampleInfo struct {
	Type          SampleType
	Width         int
	Height        int
	DisplayHeight int
	NumChannels   int
	PixelFormat   int16
}

// ParseHeader walks the leading structural and metadata tags of one
// sample and stops at the first transform-tree tag, without touching any
// entropy payload (§6's parse_header contract). It is safe to call
// repeatedly on the same buffer; it does not mutate decoder state.
func ParseHeader(data []byte) (SampleInfo, error) {
	r := bitstream.NewReader(data)
	r.AlignToTag()

	var info SampleInfo
	sawType := false

	for {
		tv, err := r.ReadTagValue()
		if err != nil {
			return SampleInfo{}, errors.Wrap(err, "codestream: reading sample header")
		}
		tag := tagOf(tv)
		switch tag {
		case TagSampleType:
			info.Type = SampleType(tv.Value)
			sawType = true
		case TagFrameWidth:
			info.Width = int(tv.Value)
		case TagFrameHeight:
			info.Height = int(tv.Value)
		case TagDisplayHeight:
			info.DisplayHeight = int(tv.Value)
		case TagChannelCount:
			info.NumChannels = int(tv.Value)
		case TagPixelFormat:
			info.PixelFormat = tv.Value
		case TagColorSpace, TagEncodeCurve, TagAlphaCompanded, TagFrameRate:
			// metadata the header summary does not surface; consumed by
			// the full parser, not by ParseHeader.
		case TagWaveletLevel, TagBandIndex:
			// first tag belonging to the transform tree body: the header
			// summary is complete.
			if info.DisplayHeight == 0 {
				info.DisplayHeight = info.Height
			}
			if !sawType {
				return SampleInfo{}, errors.Wrap(cferr.ErrBadFormat, "codestream: sample body before sample type tag")
			}
			return info, nil
		default:
			if tv.Optional() {
				if err := r.SkipSegment(int(tv.Value)); err != nil {
					return SampleInfo{}, errors.Wrap(err, "codestream: skipping optional header tag")
				}
				continue
			}
			return SampleInfo{}, errors.Wrapf(cferr.ErrUnsupportedTag, "codestream: unsupported required tag %#04x in header", tv.Code())
		}
	}
}
