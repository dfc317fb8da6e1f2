package entropy

import "math"

// saturateI16 clamps an int32 product into the i16 range, the saturation
// policy §4.C requires: "overflow of a single coefficient must not
// propagate to others."
func saturateI16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Dequantize multiplies every coefficient in coeffs by q in place,
// saturating to i16. This is §4.C's standalone contract, used directly by
// conformance tests (§8 invariant 4) even though production decode fuses
// the multiply into the FSM table via DeQuantFSM instead of running this
// as a second pass.
func Dequantize(coeffs []int16, q int16) {
	for i, c := range coeffs {
		coeffs[i] = saturateI16(int32(c) * int32(q))
	}
}

// DeQuantFSM writes into dst a copy of src with every KindEmitValue
// entry's Magnitude column pre-multiplied by q and saturated
// to i16 (§4.B "dequantization fusion", §4.C). dst may be a zero-value
// Table reused across calls (see Table.CopyInto) so that the fusion does
// not allocate on the steady-state decode path; src is never modified,
// preserving the idempotence §8 invariant 3 requires of the immutable
// master table.
//
// KindEscape magnitudes are literals read from the bitstream at decode
// time, not stored in the table, so escape entries are copied unchanged:
// only the Magnitude of KindEmitValue entries is a table-resident value
// subject to fusion.
func DeQuantFSM(dst, src *Table, q int16) {
	dst.CopyInto(src)
	for i := range dst.Entries {
		if dst.Entries[i].Kind == KindEmitValue {
			dst.Entries[i].Magnitude = saturateI16(int32(dst.Entries[i].Magnitude) * int32(q))
		}
	}
}
