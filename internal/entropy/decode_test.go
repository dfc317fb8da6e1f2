package entropy

import (
	"errors"
	"testing"

	"github.com/gopro-cineform/decoder/internal/bitstream"
	"github.com/gopro-cineform/decoder/internal/cferr"
	"github.com/gopro-cineform/decoder/internal/diag"
)

// byteWriter is a tiny test-only reference encoder for DefaultTable's
// byte-oriented layout, used to build bitstreams the decoder should
// round-trip. It is not part of the public contract (encoding is out of
// scope, §1) and exists only to manufacture valid test fixtures.
type byteWriter struct {
	out        []byte
	bitsFilled uint
}

func (w *byteWriter) run(n int) *byteWriter {
	w.out = append(w.out, byte(n&0x0F))
	return w
}

func (w *byteWriter) value(run int, magnitude int, negative bool) *byteWriter {
	b := byte(run & 0x0F)
	b |= byte(magnitude&0x07) << 4
	if negative {
		b |= 0x80
	}
	w.out = append(w.out, b)
	return w
}

func (w *byteWriter) escape(run int, literal uint32, width uint8, negative bool) *byteWriter {
	b := byte(run&0x0F) | 0x70
	if negative {
		b |= 0x80
	}
	w.out = append(w.out, b)
	// literal bits packed MSB-first immediately following, width bits wide,
	// then one sign bit, matching emitValue's expectations.
	var bits []int
	for i := int(width) - 1; i >= 0; i-- {
		bits = append(bits, int((literal>>uint(i))&1))
	}
	sign := 0
	if negative {
		sign = 1
	}
	bits = append(bits, sign)
	w.appendBits(bits)
	return w
}

func (w *byteWriter) appendBits(bits []int) {
	for _, bit := range bits {
		w.appendBit(bit)
	}
}

// appendBit appends a single bit to a trailing partial byte, growing out
// as needed. Tracks fill via a sentinel: we keep a simple bit-cursor by
// reusing the last byte's high bits when not yet full.
func (w *byteWriter) appendBit(bit int) {
	if w.bitsFilled == 0 {
		w.out = append(w.out, 0)
	}
	if bit != 0 {
		w.out[len(w.out)-1] |= byte(1) << (7 - w.bitsFilled)
	}
	w.bitsFilled++
	if w.bitsFilled == 8 {
		w.bitsFilled = 0
	}
}

// eob writes the 0xFF end-of-band window at the current bit position: the
// decoder reads the next window directly after an escape's sign bit, with
// no realignment to a byte boundary.
func (w *byteWriter) eob() *byteWriter {
	w.appendBits([]int{1, 1, 1, 1, 1, 1, 1, 1})
	return w
}

func (w *byteWriter) finishByte() {
	w.bitsFilled = 0
}

func TestDecodeBand_AllZeros(t *testing.T) {
	w := &byteWriter{}
	w.run(4).eob()
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 4), Width: 2, Height: 2, Pitch: 2}
	if err := DecodeBand(r, table, sb, false, nil); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	for i, v := range sb.Dest {
		if v != 0 {
			t.Errorf("Dest[%d] = %d, want 0", i, v)
		}
	}
}

func TestDecodeBand_RunThenValue(t *testing.T) {
	w := &byteWriter{}
	w.value(2, 3, false) // 2 zeros then +3
	w.value(0, 5, true)  // -5
	w.eob()
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 4), Width: 4, Height: 1, Pitch: 4}
	if err := DecodeBand(r, table, sb, false, nil); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	want := []int16{0, 0, 3, -5}
	for i, v := range want {
		if sb.Dest[i] != v {
			t.Errorf("Dest[%d] = %d, want %d", i, sb.Dest[i], v)
		}
	}
}

func TestDecodeBand_ZeroLengthRunIsPureEmit(t *testing.T) {
	w := &byteWriter{}
	w.value(0, 1, false)
	w.value(0, 1, false)
	w.eob()
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 2), Width: 2, Height: 1, Pitch: 2}
	if err := DecodeBand(r, table, sb, false, nil); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	if sb.Dest[0] != 1 || sb.Dest[1] != 1 {
		t.Fatalf("Dest = %v, want [1 1]", sb.Dest)
	}
}

func TestDecodeBand_RunOverflowIsCorrupt(t *testing.T) {
	w := &byteWriter{}
	w.run(8) // overflows a 2x2 subband (4 cells)
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 4), Width: 2, Height: 2, Pitch: 2}
	err := DecodeBand(r, table, sb, false, nil)
	if !errors.Is(err, cferr.ErrEntropyCorrupt) {
		t.Fatalf("DecodeBand overflow = %v, want ErrEntropyCorrupt", err)
	}
}

func TestDecodeBand_EarlyEndOfBandIsCorrupt(t *testing.T) {
	w := &byteWriter{}
	w.value(0, 1, false)
	w.eob() // only 1 of 4 cells written
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 4), Width: 2, Height: 2, Pitch: 2}
	err := DecodeBand(r, table, sb, false, nil)
	if !errors.Is(err, cferr.ErrEntropyCorrupt) {
		t.Fatalf("DecodeBand early EOB = %v, want ErrEntropyCorrupt", err)
	}
}

func TestDecodeBand_TruncatedStream(t *testing.T) {
	r := bitstream.NewReader(nil)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 4), Width: 2, Height: 2, Pitch: 2}
	err := DecodeBand(r, table, sb, false, nil)
	if !errors.Is(err, cferr.ErrTruncated) {
		t.Fatalf("DecodeBand on empty stream = %v, want ErrTruncated", err)
	}
}

// In DefaultTable's byte layout, an escape entry's run nibble does double
// duty as (zeros-before-value, escape-bit-width - 1): both are carried in
// the same 4 bits, so the literal width tests below always pass
// width == run+1.

func TestDecodeBand_EscapeRequiresPeaksAllowed(t *testing.T) {
	w := &byteWriter{}
	w.escape(0, 1, 1, false)
	w.eob()
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 1), Width: 1, Height: 1, Pitch: 1}
	err := DecodeBand(r, table, sb, false, nil)
	if !errors.Is(err, cferr.ErrEntropyCorrupt) {
		t.Fatalf("escape without peaksAllowed = %v, want ErrEntropyCorrupt", err)
	}
}

func TestDecodeBand_EscapeLiteral(t *testing.T) {
	w := &byteWriter{}
	w.escape(9, 300, 10, true) // 9 zeros, then literal -300 (needs 9 bits, stored in 10)
	w.eob()
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 10), Width: 10, Height: 1, Pitch: 10}
	stats := diag.NewStats()
	if err := DecodeBand(r, table, sb, true, stats); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	for i := 0; i < 9; i++ {
		if sb.Dest[i] != 0 {
			t.Fatalf("Dest[%d] = %d, want 0", i, sb.Dest[i])
		}
	}
	if sb.Dest[9] != -300 {
		t.Fatalf("Dest[9] = %d, want -300", sb.Dest[9])
	}
	snap := stats.Snapshot()
	if snap.EscapeCount != 1 {
		t.Fatalf("EscapeCount = %d, want 1", snap.EscapeCount)
	}
	if snap.RunLengthCounts[9] != 1 {
		t.Fatalf("RunLengthCounts[9] = %d, want 1", snap.RunLengthCounts[9])
	}
}

func TestDecodeBand_TrailingPaddingTolerated(t *testing.T) {
	w := &byteWriter{}
	w.run(4)
	w.eob()
	// Pad with extra trailing zero bits/bytes beyond EOB; a correct decode
	// returns as soon as KindEndOfBand fires and never looks at them.
	w.out = append(w.out, 0x00, 0x00, 0x00)
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 4), Width: 2, Height: 2, Pitch: 2}
	if err := DecodeBand(r, table, sb, false, nil); err != nil {
		t.Fatalf("DecodeBand with trailing padding: %v", err)
	}
}

func TestDecodeBand_DegenerateTwoByTwo(t *testing.T) {
	w := &byteWriter{}
	w.value(0, 1, false).value(0, 2, false).value(0, 3, false).value(0, 4, false)
	w.eob()
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 4), Width: 2, Height: 2, Pitch: 2}
	if err := DecodeBand(r, table, sb, false, nil); err != nil {
		t.Fatalf("DecodeBand 2x2: %v", err)
	}
	want := []int16{1, 2, 3, 4}
	for i, v := range want {
		if sb.Dest[i] != v {
			t.Errorf("Dest[%d] = %d, want %d", i, sb.Dest[i], v)
		}
	}
}

func TestDecodeBand_PitchWiderThanWidth(t *testing.T) {
	w := &byteWriter{}
	w.value(0, 1, false).value(0, 2, false).value(0, 3, false).value(0, 4, false)
	w.eob()
	r := bitstream.NewReader(w.out)
	table := DefaultTable(0)
	sb := Subband{Dest: make([]int16, 2*4), Width: 2, Height: 2, Pitch: 4}
	if err := DecodeBand(r, table, sb, false, nil); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	// Row 0 at offset 0-1, row 1 at offset 4-5; offsets 2,3,6,7 are padding
	// never touched by the writer (property 6's pitch respect).
	if sb.Dest[0] != 1 || sb.Dest[1] != 2 || sb.Dest[4] != 3 || sb.Dest[5] != 4 {
		t.Fatalf("Dest = %v, want row-major with pitch 4", sb.Dest)
	}
}

func TestIdempotence_SameBandTwice(t *testing.T) {
	w := &byteWriter{}
	w.value(1, 4, true).value(0, 2, false).eob()
	payload := append([]byte(nil), w.out...)

	table := DefaultTable(0)
	// run=1 zero + value + run=0 + value = 3 cells total.
	first := make([]int16, 3)
	second := make([]int16, 3)

	sb1 := Subband{Dest: first, Width: 3, Height: 1, Pitch: 3}
	if err := DecodeBand(bitstream.NewReader(payload), table, sb1, false, nil); err != nil {
		t.Fatalf("first decode: %v", err)
	}
	sb2 := Subband{Dest: second, Width: 3, Height: 1, Pitch: 3}
	if err := DecodeBand(bitstream.NewReader(payload), table, sb2, false, nil); err != nil {
		t.Fatalf("second decode: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("decode not idempotent at %d: %d != %d", i, first[i], second[i])
		}
	}
}
