package cineform

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/codestream"
)

// buf accumulates a tagged-tuple sample body for hand-built fixtures, the
// same shape internal/codestream's own test helper uses (duplicated here
// since it is unexported across package boundaries).
type buf struct{ b []byte }

func (t *buf) tag(tag codestream.Tag, value int16) {
	t.b = append(t.b, byte(tag>>8), byte(tag), byte(value>>8), byte(value))
}

func (t *buf) raw(bytes ...byte) { t.b = append(t.b, bytes...) }

// zeroCoeffBandPayload decodes to a single zero coefficient under
// entropy.DefaultTable (window 0x01 = EmitRun{Run:1}, window 0xFF =
// EndOfBand), matching internal/codestream/parser_test.go's fixture.
var zeroCoeffBandPayload = []byte{0x01, 0xFF, 0x00, 0x00}

// zeroPairBandPayload decodes to two zero coefficients (window 0x02 =
// EmitRun{Run:2}, window 0xFF = EndOfBand).
var zeroPairBandPayload = []byte{0x02, 0xFF, 0x00, 0x00}

// buildUniformSample constructs a numChannels-channel, single-level, 4x2
// 4:2:2 output sample (channel 0 reconstructs 4 wide, every other channel
// 2 wide) where every band of every channel is all-zero, so the
// reconstructed frame is uniformly zero in every channel.
func buildUniformSample(numChannels int) []byte {
	var b buf
	b.tag(codestream.TagSampleType, int16(codestream.TypeFrame))
	b.tag(codestream.TagFrameWidth, 4)
	b.tag(codestream.TagFrameHeight, 2)
	b.tag(codestream.TagDisplayHeight, 2)
	b.tag(codestream.TagChannelCount, int16(numChannels))

	for ch := 0; ch < numChannels; ch++ {
		bandWidth, payload := int16(1), zeroCoeffBandPayload
		if ch == 0 {
			bandWidth, payload = 2, zeroPairBandPayload
		}
		b.tag(codestream.TagWaveletLevel, 1)
		b.tag(codestream.TagWaveletShape, 0)
		b.tag(codestream.TagWaveletNumBands, 4)
		b.tag(codestream.TagWaveletWidth, bandWidth)
		b.tag(codestream.TagWaveletHeight, 1)
		for band := int16(0); band < 4; band++ {
			b.tag(codestream.TagBandIndex, band)
			b.tag(codestream.TagBandQuantizer, 1)
			b.tag(codestream.TagBandCodebook, 0)
			b.tag(codestream.TagBandPeaksAllowed, 0)
			b.tag(codestream.TagBandDifference, 0)
			b.tag(codestream.TagBandDataStart, 0)
			b.tag(codestream.TagBandDataLength, 1)
			b.raw(payload...)
		}
		b.tag(codestream.TagEndOfChannel, 0)
	}
	b.tag(codestream.TagEndOfSample, 0)
	return b.b
}

func TestDecode_UniformZeroFrameProducesZeroPixels(t *testing.T) {
	d, err := New(64, 64, 4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sample := buildUniformSample(3)
	out := make([]byte, 2*8) // 2 rows, 8 bytes/row (YUYV, width 4)
	if err := d.Decode(sample, out, 8, ColorParams{Format: PixelFormatYUYV, Precision: 8}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := make([]byte, len(out))
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("Decode output mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_TruncatedPayloadFailsAndDecoderStaysReusable(t *testing.T) {
	d, err := New(64, 64, 4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sample := buildUniformSample(3)
	truncated := sample[:len(sample)-6]
	out := make([]byte, 2*8)

	if err := d.Decode(truncated, out, 8, ColorParams{Format: PixelFormatYUYV}); err == nil {
		t.Fatal("Decode on truncated sample: want error, got nil")
	}

	// The same Decoder must still work on the next, well-formed sample.
	if err := d.Decode(sample, out, 8, ColorParams{Format: PixelFormatYUYV}); err != nil {
		t.Fatalf("Decode after a prior failure: %v", err)
	}
}

func TestDecode_ByteIdenticalAcrossThreadCounts(t *testing.T) {
	sample := buildUniformSample(3)
	var outputs [][]byte
	for _, threads := range []int{1, 8} {
		d, err := New(64, 64, 4, threads)
		if err != nil {
			t.Fatalf("New(threads=%d): %v", threads, err)
		}
		out := make([]byte, 2*8)
		if err := d.Decode(sample, out, 8, ColorParams{Format: PixelFormatYUYV}); err != nil {
			t.Fatalf("Decode(threads=%d): %v", threads, err)
		}
		outputs = append(outputs, out)
	}
	if diff := cmp.Diff(outputs[0], outputs[1]); diff != "" {
		t.Fatalf("decode output differs between thread counts (-1thread +8thread):\n%s", diff)
	}
}

func TestDecode_FormatChannelCountMismatchRejected(t *testing.T) {
	d, err := New(64, 64, 4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sample := buildUniformSample(3)
	out := make([]byte, 2*8)
	err = d.Decode(sample, out, 8, ColorParams{Format: PixelFormatRGB32})
	if !errors.Is(err, ErrBadFormat) {
		t.Fatalf("err = %v, want ErrBadFormat", err)
	}
}

func TestDecode_PlanarFormatRejectedFromDecode(t *testing.T) {
	d, err := New(64, 64, 4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sample := buildUniformSample(3)
	out := make([]byte, 2*8)
	err = d.Decode(sample, out, 8, ColorParams{Format: PixelFormatYR16Planar})
	if !errors.Is(err, ErrUnsupportedTag) {
		t.Fatalf("err = %v, want ErrUnsupportedTag", err)
	}
}

func TestDecoder_ParseHeader(t *testing.T) {
	d, err := New(64, 64, 4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := d.ParseHeader(buildUniformSample(3))
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if info.Width != 4 || info.Height != 2 || info.NumChannels != 3 {
		t.Fatalf("unexpected header: %+v", info)
	}
}

func TestDecoder_StatsReflectLastDecode(t *testing.T) {
	d, err := New(64, 64, 4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sample := buildUniformSample(3)
	out := make([]byte, 2*8)
	if err := d.Decode(sample, out, 8, ColorParams{Format: PixelFormatYUYV}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	stats := d.Stats()
	if stats.BandsDecoded != 4*3 {
		t.Fatalf("BandsDecoded = %d, want %d", stats.BandsDecoded, 4*3)
	}
	if stats.ZeroBandCount != 4*3 {
		t.Fatalf("ZeroBandCount = %d, want %d (every band here is all-zero)", stats.ZeroBandCount, 4*3)
	}
}
