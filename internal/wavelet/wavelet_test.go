package wavelet

import "testing"

func TestInvertHorizontalRow_AllZeroHighpassIsFlat(t *testing.T) {
	low := []int16{10, 10, 10, 10}
	high := []int16{0, 0, 0, 0}
	out := make([]int16, 8)
	InvertHorizontalRow(low, high, out)
	for i, v := range out {
		if v != 10 {
			t.Fatalf("out[%d] = %d, want 10 (flat lowpass, zero highpass)", i, v)
		}
	}
}

func TestInvertHorizontalRow_SingleSample(t *testing.T) {
	low := []int16{5}
	high := []int16{3}
	out := make([]int16, 2)
	InvertHorizontalRow(low, high, out)
	// n=1: lp[0] reflects high[-1]=high[0], lpNext reflects lp[0] itself.
	wantLP := int32(5) - ((3 + 3 + 2) >> 2)
	wantHP := int32(3) + ((wantLP + wantLP) >> 1)
	if int32(out[0]) != wantLP || int32(out[1]) != wantHP {
		t.Fatalf("out = %v, want [%d %d]", out, wantLP, wantHP)
	}
}

func TestInvertHorizontalRow_Empty(t *testing.T) {
	InvertHorizontalRow(nil, nil, nil) // must not panic
}

func TestInvertVertical_FlatBandsReflectToFlatOutput(t *testing.T) {
	lowA := []int16{20, 20}
	lowB := []int16{20, 20}
	highA := []int16{0, 0}
	highC := []int16{0, 0}
	highB := []int16{0, 0}
	even := make([]int16, 2)
	odd := make([]int16, 2)

	// A flat lowpass band with an all-zero highpass band reconstructs to
	// a flat signal on *both* output rows: zero highpass coefficients mean
	// no vertical variation, not that the odd row is zero.
	InvertVerticalTopRow(lowA, lowB, highC, highB, even, odd)
	for i := range even {
		if even[i] != 20 || odd[i] != 20 {
			t.Fatalf("top row: even=%v odd=%v, want flat 20/20", even, odd)
		}
	}

	InvertVerticalMiddleRow(lowA, lowB, highA, highC, highB, even, odd)
	for i := range even {
		if even[i] != 20 || odd[i] != 20 {
			t.Fatalf("middle row: even=%v odd=%v, want flat 20/20", even, odd)
		}
	}

	InvertVerticalBottomRow(lowA, highA, highC, even, odd)
	for i := range even {
		if even[i] != 20 || odd[i] != 20 {
			t.Fatalf("bottom row: even=%v odd=%v, want flat 20/20", even, odd)
		}
	}
}

func TestTemporalInvertPair(t *testing.T) {
	low := []int16{10, -4}
	high := []int16{2, 6}
	a := make([]int16, 2)
	b := make([]int16, 2)
	TemporalInvertPair(low, high, a, b)
	wantA := []int16{(10 + 2) >> 1, (-4 + 6) >> 1}
	wantB := []int16{(10 - 2) >> 1, (-4 - 6) >> 1}
	for i := range a {
		if a[i] != wantA[i] || b[i] != wantB[i] {
			t.Fatalf("pair %d: got a=%d b=%d, want a=%d b=%d", i, a[i], b[i], wantA[i], wantB[i])
		}
	}
}

func TestSaturateI16_ClampsOverflow(t *testing.T) {
	if got := saturateI16(100000); got != 32767 {
		t.Fatalf("saturateI16(100000) = %d, want 32767", got)
	}
	if got := saturateI16(-100000); got != -32768 {
		t.Fatalf("saturateI16(-100000) = %d, want -32768", got)
	}
	if got := saturateI16(42); got != 42 {
		t.Fatalf("saturateI16(42) = %d, want 42", got)
	}
}
