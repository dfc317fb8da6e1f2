// Package entropy implements the finite-state-machine entropy decoder
// (§4.B), its fused dequantizer (§4.C), and the "peaks" escape mechanism
// for rare large-magnitude coefficients.
//
// A Table is a directed graph of Entry values indexed by a packed bit
// window, exactly the shape described in §3 "FSM table": each entry either
// emits zero or more coefficients and transitions to a new state, or
// signals that more bits are needed by transitioning without emitting, or
// signals end-of-band.
package entropy

import "github.com/pkg/errors"

// Codebook identifies which FSM table master a subband was coded with.
type Codebook int

// EntryKind discriminates what an Entry does once looked up.
type EntryKind uint8

const (
	// KindContinue consumes bits and moves to another state without
	// producing output; it models "need more bits" (§3).
	KindContinue EntryKind = iota
	// KindEmitRun writes Run zeros and nothing else ("run only", §4.B
	// step 3's "unless the emit is run only").
	KindEmitRun
	// KindEmitValue writes Run zeros followed by one signed coefficient
	// of magnitude Magnitude.
	KindEmitValue
	// KindEscape writes Run zeros followed by one signed coefficient
	// whose magnitude is a full-precision literal of EscapeBits width
	// read immediately after this entry (the "peaks" mechanism).
	KindEscape
	// KindEndOfBand terminates decode of the current subband.
	KindEndOfBand
)

// Entry is one FSM table entry: (next_state, run_length, coeff_magnitude,
// sign_bit_or_flag, bits_consumed) per §3, plus the escape bit width used
// only by KindEscape entries.
//
// Sign applies only to KindEmitValue: the sign bit for a direct (non-
// escape) value is packed into the same window BitsConsumed already
// consumes (see DefaultTable's byte layout), so it is recorded here at
// table-build time rather than re-read from the bitstream at decode time,
// which would read the wrong bit (the next window's MSB) and desync the
// FSM by one bit. KindEscape values carry their own sign bit, read from
// the stream immediately after the escape literal instead.
type Entry struct {
	Kind         EntryKind
	NextState    int32
	Run          int32
	Magnitude    int16
	Sign         bool
	BitsConsumed uint8
	EscapeBits   uint8
}

// IndexBits is the width of the packed bit window used to index into a
// Table's entries for every state.
const IndexBits = 8

const windowSize = 1 << IndexBits

// Table is a codebook's FSM transition table: NumStates rows of
// windowSize entries each, addressed as Entries[state*windowSize+window].
//
// Per §9's design note, a Table built by NewTable (or DefaultTable) is the
// immutable master for its Codebook; DeQuantFSM never mutates a master in
// place, only a caller-supplied scratch copy, so one master safely backs
// many concurrent workers.
type Table struct {
	Codebook  Codebook
	NumStates int
	Entries   []Entry
}

// NewTable allocates a table with numStates rows, all entries zeroed to
// KindContinue/NextState=0 (an infinite loop if used as-is — callers must
// populate Entries before decoding).
func NewTable(cb Codebook, numStates int) *Table {
	return &Table{
		Codebook:  cb,
		NumStates: numStates,
		Entries:   make([]Entry, numStates*windowSize),
	}
}

// Entry looks up the table entry for the given state and bit window.
func (t *Table) Entry(state int32, window uint32) Entry {
	return t.Entries[int(state)*windowSize+int(window&(windowSize-1))]
}

// Clone returns a deep copy of t, suitable as a per-worker scratch table
// that DeQuantFSM can overwrite without disturbing the master (§9).
func (t *Table) Clone() *Table {
	c := &Table{
		Codebook:  t.Codebook,
		NumStates: t.NumStates,
		Entries:   make([]Entry, len(t.Entries)),
	}
	copy(c.Entries, t.Entries)
	return c
}

// CopyInto overwrites dst's entries with src's, resizing dst only if its
// backing array is too small. This is the scratch-table reuse path a
// worker takes when active_codebook changes between work items (§9): no
// new Entries allocation on the steady-state path.
func (dst *Table) CopyInto(src *Table) {
	dst.Codebook = src.Codebook
	dst.NumStates = src.NumStates
	if cap(dst.Entries) < len(src.Entries) {
		dst.Entries = make([]Entry, len(src.Entries))
	} else {
		dst.Entries = dst.Entries[:len(src.Entries)]
	}
	copy(dst.Entries, src.Entries)
}

// DefaultTable builds a single-state, byte-oriented reference codebook:
// every entry consumes exactly IndexBits bits, which is the simplest
// table shape the §3/§4.B contract allows (bits_consumed need not vary
// across entries). The actual per-codebook bit assignments used by a
// production CineForm encoder are proprietary and are not present in the
// retrieved reference sources, so this table exists to exercise the FSM
// runtime end-to-end and to give integrating hosts a documented byte
// layout they can substitute their own codebook for (see NewTable/CopyInto
// and Decoder.LoadCodebook).
//
// Byte layout (window w, 8 bits):
//
//	w == 0xFF                      -> KindEndOfBand
//	sign    = bit 7
//	magCode = bits 6..4 (0-7)
//	run     = bits 3..0 (0-15)
//	magCode == 0                   -> KindEmitRun{Run: run}
//	magCode == 7                   -> KindEscape{Run: run, EscapeBits: run+1}
//	otherwise (1-6)                -> KindEmitValue{Run: run, Magnitude: magCode, sign}
//
// Magnitude is negative-encoded by the decode loop's sign handling, not
// stored as negative here: Entry.Magnitude always holds the unsigned
// value pre-dequantization (§3's "magnitudes may be pre-multiplied by the
// band quantizer").
func DefaultTable(cb Codebook) *Table {
	t := NewTable(cb, 1)
	for w := 0; w < windowSize; w++ {
		e := Entry{BitsConsumed: IndexBits, NextState: 0}
		if w == 0xFF {
			e.Kind = KindEndOfBand
		} else {
			sign := (w >> 7) & 1
			magCode := (w >> 4) & 0x07
			run := w & 0x0F
			switch {
			case magCode == 0:
				e.Kind = KindEmitRun
				e.Run = int32(run)
			case magCode == 7:
				e.Kind = KindEscape
				e.Run = int32(run)
				e.EscapeBits = uint8(run + 1)
				_ = sign // sign is read from the bitstream for escapes, see decode.go
			default:
				e.Kind = KindEmitValue
				e.Run = int32(run)
				e.Magnitude = int16(magCode)
				e.Sign = sign == 1
			}
		}
		t.Entries[w] = e
	}
	return t
}

// validate reports a structural problem with a table that would make
// decode unsafe (out-of-range NextState) as a plain error. Nothing in the
// decode path calls it.
func (t *Table) validate() error {
	if t.NumStates <= 0 {
		return errors.Errorf("entropy: table has %d states", t.NumStates)
	}
	if len(t.Entries) != t.NumStates*windowSize {
		return errors.Errorf("entropy: table has %d entries, want %d", len(t.Entries), t.NumStates*windowSize)
	}
	for i, e := range t.Entries {
		if e.NextState < 0 || int(e.NextState) >= t.NumStates {
			return errors.Errorf("entropy: entry %d has out-of-range next state %d", i, e.NextState)
		}
	}
	return nil
}
