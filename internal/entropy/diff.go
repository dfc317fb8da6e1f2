package entropy

// ApplyDifferenceCoding undoes the first-order horizontal difference some
// highpass bands are stored as (§4.B "difference coding"): for each row,
// x[i] += x[i-1] for i = 1..width-1. It runs after DecodeBand, mirroring
// the reference decoder's separate post-decode pass
// (entropy_threading.c's per-row accumulation loop) rather than being
// fused into the FSM loop itself.
func ApplyDifferenceCoding(sb Subband) {
	for y := 0; y < sb.Height; y++ {
		row := sb.Dest[y*sb.Pitch : y*sb.Pitch+sb.Width]
		for x := 1; x < sb.Width; x++ {
			row[x] += row[x-1]
		}
	}
}
