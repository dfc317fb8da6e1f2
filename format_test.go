package cineform

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/pack"
)

func TestDescribeFormat_ChannelCounts(t *testing.T) {
	cases := []struct {
		format      PixelFormat
		numChannels int
		hasAlpha    bool
		kind        formatKind
	}{
		{PixelFormatYUYV, 3, false, kindYUV},
		{PixelFormatRGB24, 3, false, kindRGB},
		{PixelFormatRGB32, 4, true, kindRGB},
		{PixelFormatRGBA64, 4, true, kindRGB},
		{PixelFormatBayerPlanes, 4, false, kindBayer},
	}
	for _, c := range cases {
		info, err := describeFormat(c.format)
		if err != nil {
			t.Fatalf("describeFormat(%v): %v", c.format, err)
		}
		if info.numChannels != c.numChannels || info.hasAlpha != c.hasAlpha || info.kind != c.kind {
			t.Fatalf("describeFormat(%v) = %+v, want {%d %v %v}", c.format, info, c.numChannels, c.hasAlpha, c.kind)
		}
	}
}

func TestDescribeFormat_UnknownRejected(t *testing.T) {
	_, err := describeFormat(PixelFormat(999))
	if !errors.Is(err, ErrUnsupportedTag) {
		t.Fatalf("err = %v, want ErrUnsupportedTag", err)
	}
}

func TestRowAssembler_WaitsForAllChannels(t *testing.T) {
	var dispatched []int
	onRow := newRowAssembler(3, func(row int, chans [][]int16) {
		dispatched = append(dispatched, row)
		for i, c := range chans {
			if c == nil {
				t.Fatalf("row %d dispatched with nil channel %d", row, i)
			}
		}
	})

	onRow(0, 0, []int16{1, 2})
	onRow(1, 0, []int16{3})
	if len(dispatched) != 0 {
		t.Fatalf("dispatched early after 2/3 channels: %v", dispatched)
	}
	onRow(2, 0, []int16{4})
	if len(dispatched) != 1 || dispatched[0] != 0 {
		t.Fatalf("dispatched = %v, want [0]", dispatched)
	}
}

func TestRowAssembler_OutOfOrderChannelsStillComplete(t *testing.T) {
	var got [][]int16
	onRow := newRowAssembler(2, func(row int, chans [][]int16) {
		got = chans
	})
	onRow(1, 5, []int16{9})
	onRow(0, 5, []int16{8})
	if len(got) != 2 || got[0][0] != 8 || got[1][0] != 9 {
		t.Fatalf("got = %v, want [[8] [9]]", got)
	}
}

func TestYUVToRGBRow_ConstantLumaYieldsGray(t *testing.T) {
	m := pack.MatrixFor(pack.BT601, pack.RangeFull, 8)
	chans := [][]int16{
		{128, 128, 128, 128},
		{128, 128},
		{128, 128},
	}
	row := yuvToRGBRow(m, chans, false, 8)
	for i := range row.R {
		if row.R[i] != row.G[i] || row.G[i] != row.B[i] {
			t.Fatalf("pixel %d not gray: R=%d G=%d B=%d", i, row.R[i], row.G[i], row.B[i])
		}
	}
}
