package cineform

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/cferr"
	"github.com/gopro-cineform/decoder/internal/codestream"
	"github.com/gopro-cineform/decoder/internal/diag"
	"github.com/gopro-cineform/decoder/internal/entropy"
	"github.com/gopro-cineform/decoder/internal/pack"
	"github.com/gopro-cineform/decoder/internal/schedule"
	"github.com/gopro-cineform/decoder/internal/transform"
	"github.com/gopro-cineform/decoder/internal/wavelet"
)

// Decoder holds the preallocated state one sequence of Decode calls
// reuses: the transform-tree arena, the codebook masters, and the
// diagnostics sink. Per §6, Decoder persists no per-sample state across
// calls other than this preallocated backing storage; a failed Decode
// leaves the instance fully usable for the next sample (§5, §7).
type Decoder struct {
	maxWidth, maxHeight, maxChannels, threadCount int

	mu        sync.Mutex
	arena     *transform.Arena
	codebooks map[entropy.Codebook]*entropy.Table
	log       diag.Logger
	stats     *diag.Stats
}

// New builds a Decoder sized for samples up to maxWidth x maxHeight with
// at most maxChannels channels, driven by a threadCount-worker pool.
// There is no allocator parameter: arena and scratch buffers are
// preallocated Go slices the runtime GC owns, not something the caller
// tunes (the reference's custom allocator is a Non-goal, see SPEC_FULL.md).
func New(maxWidth, maxHeight, maxChannels, threadCount int) (*Decoder, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, errors.Wrapf(cferr.ErrOversize, "cineform: non-positive decoder bounds %dx%d", maxWidth, maxHeight)
	}
	if maxChannels <= 0 {
		maxChannels = 4
	}
	if threadCount <= 0 {
		threadCount = 1
	}
	return &Decoder{
		maxWidth:     maxWidth,
		maxHeight:    maxHeight,
		maxChannels:  maxChannels,
		threadCount:  threadCount,
		arena:        transform.NewArena(),
		codebooks:    map[entropy.Codebook]*entropy.Table{0: entropy.DefaultTable(0)},
		log:          diag.Discard,
		stats:        diag.NewStats(),
	}, nil
}

// SetLogger installs a diagnostics sink; passing nil restores the silent
// default (§6's "never logs on the hot path unless asked").
func (d *Decoder) SetLogger(log diag.Logger) {
	if log == nil {
		log = diag.Discard
	}
	d.mu.Lock()
	d.log = log
	d.mu.Unlock()
}

// LoadCodebook installs or replaces the immutable FSM table master for one
// codebook id. The decoder ships only codebook 0, a documented reference
// table (entropy.DefaultTable); hosts with the proprietary production
// codebooks load them here before calling Decode.
func (d *Decoder) LoadCodebook(id entropy.Codebook, table *entropy.Table) {
	d.mu.Lock()
	d.codebooks[id] = table
	d.mu.Unlock()
}

// Stats returns a snapshot of the diagnostics accumulated by the most
// recent Decode call (§9's image_statistics supplement): zero-band
// counts, run-length histogram, escape counts. It never affects pixel
// output.
func (d *Decoder) Stats() diag.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats.Snapshot()
}

// ParseHeader reads a sample's structural summary without decoding any
// subband (§6's parse_header).
func (d *Decoder) ParseHeader(sampleBytes []byte) (SampleInfo, error) {
	return codestream.ParseHeader(sampleBytes)
}

// Destroy releases the decoder's preallocated buffers. Go's garbage
// collector reclaims them once the Decoder is no longer referenced, so
// this only needs to drop the large slices early for a host that wants to
// free memory before the Decoder itself goes out of scope; it is safe to
// call more than once and the Decoder must not be used afterward.
func (d *Decoder) Destroy() {
	d.mu.Lock()
	d.arena = transform.NewArena()
	d.codebooks = nil
	d.mu.Unlock()
}

// Decode decodes one sample into outFrame, an interleaved pixel buffer
// with row stride outPitch (negative for bottom-up output, §4.F/§6). An
// error leaves the Decoder reusable for the next sample; per §7's
// user-visible behavior, outFrame's prior contents are left unmodified on
// a decode failure rather than partially overwritten with nonsense.
func (d *Decoder) Decode(sampleBytes []byte, outFrame []byte, outPitch int, colorParams ColorParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := codestream.ParseHeader(sampleBytes)
	if err != nil {
		return err
	}
	if info.Width > d.maxWidth || info.Height > d.maxHeight {
		return errors.Wrapf(cferr.ErrOversize, "cineform: sample %dx%d exceeds decoder limits %dx%d", info.Width, info.Height, d.maxWidth, d.maxHeight)
	}
	if info.NumChannels > d.maxChannels {
		return errors.Wrapf(cferr.ErrOversize, "cineform: sample has %d channels, decoder limit is %d", info.NumChannels, d.maxChannels)
	}
	if info.Type == SampleSequenceHeader {
		return nil
	}

	if colorParams.Format == PixelFormatYR16Planar || colorParams.Format == PixelFormatBayerPlanes {
		return errors.Wrapf(cferr.ErrUnsupportedTag, "cineform: format %v produces separate planes, call DecodePlanes instead", colorParams.Format)
	}
	layout, err := describeFormat(colorParams.Format)
	if err != nil {
		return err
	}
	if layout.numChannels != info.NumChannels {
		return errors.Wrapf(cferr.ErrBadFormat, "cineform: format %v needs %d channels, sample has %d", colorParams.Format, layout.numChannels, info.NumChannels)
	}

	precision := colorParams.Precision
	if precision == 0 {
		precision = 8
	}
	var rowErr error
	// Rows are packed into a copy of outFrame that is copied back only
	// after the whole sample decoded, so a failure leaves outFrame as it was.
	staging := append([]byte(nil), outFrame...)
	rowBase := pack.NewRowBase(staging, info.DisplayHeight, abs(outPitch), colorParams.Invert || outPitch < 0)
	assembler := newRowAssembler(info.NumChannels, func(row int, chans [][]int16) {
		if row >= info.DisplayHeight {
			return
		}
		dst := rowBase.Row(row, abs(outPitch))
		if werr := writeRow(dst, colorParams, layout, chans, precision); werr != nil && rowErr == nil {
			rowErr = werr
			d.log.Log(diag.Error, "row pack failed", "row", row, "err", werr)
		}
	})
	padEdge := edgeReplicator(info.Height, info.DisplayHeight, assembler)

	d.arena.Reset()
	d.stats = diag.NewStats()
	correlationID := d.stats.CorrelationID
	d.log.Log(diag.Debug, "decode start", "correlation_id", correlationID, "width", info.Width, "height", info.Height, "channels", info.NumChannels)

	pool := schedule.NewPool(d.threadCount, schedule.DefaultQueueLength, d.arena, d.log)
	pool.Start()

	opt := codestream.DecodeOptions{
		Arena:     d.arena,
		Pool:      pool,
		Codebooks: d.codebooks,
		Precision: wavelet.Precision(precision),
		Stats:     d.stats,
		HalfHoriz: colorParams.Resolution == ResolutionHalfHorizontal,
		OnRow:     padEdge,
	}

	_, decodeErr := codestream.DecodeSample(sampleBytes, opt)
	pool.Stop()

	if decodeErr != nil {
		d.log.Log(diag.Error, "decode failed", "correlation_id", correlationID, "err", decodeErr)
		return decodeErr
	}
	if rowErr != nil {
		return rowErr
	}
	copy(outFrame, staging)
	return nil
}

// Plane is one destination buffer of a planar Decode output: a byte slice
// plus the stride between successive rows.
type Plane struct {
	Data  []byte
	Pitch int
}

// DecodePlanes decodes a sample whose pixel format has no single
// interleaved byte layout (YR16Planar's three channel planes, or
// BayerPlanes' four raw CFA planes, §4.F) into separate caller-supplied
// buffers, one per plane in channel order.
func (d *Decoder) DecodePlanes(sampleBytes []byte, planes []Plane, colorParams ColorParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := codestream.ParseHeader(sampleBytes)
	if err != nil {
		return err
	}
	if info.Width > d.maxWidth || info.Height > d.maxHeight {
		return errors.Wrapf(cferr.ErrOversize, "cineform: sample %dx%d exceeds decoder limits %dx%d", info.Width, info.Height, d.maxWidth, d.maxHeight)
	}
	if info.Type == SampleSequenceHeader {
		return nil
	}
	if colorParams.Format != PixelFormatYR16Planar && colorParams.Format != PixelFormatBayerPlanes {
		return errors.Wrapf(cferr.ErrUnsupportedTag, "cineform: format %v is not planar, call Decode instead", colorParams.Format)
	}
	if len(planes) != info.NumChannels {
		return errors.Wrapf(cferr.ErrBadFormat, "cineform: format %v needs %d planes, got %d", colorParams.Format, info.NumChannels, len(planes))
	}

	precision := colorParams.Precision
	if precision == 0 {
		precision = 8
	}
	bases := make([]pack.RowBase, len(planes))
	for i, p := range planes {
		bases[i] = pack.NewRowBase(p.Data, info.DisplayHeight, p.Pitch, colorParams.Invert)
	}

	onRow := func(channel, row int, pixels []int16) {
		if row >= info.DisplayHeight || channel >= len(bases) {
			return
		}
		dst := bases[channel].Row(row, abs(planes[channel].Pitch))
		for i, v := range pixels {
			if (i+1)*2 > len(dst) {
				break
			}
			scaled := int32(v) << uint(16-precision)
			dst[i*2] = byte(scaled)
			dst[i*2+1] = byte(scaled >> 8)
		}
	}
	padEdge := edgeReplicator(info.Height, info.DisplayHeight, onRow)

	d.arena.Reset()
	d.stats = diag.NewStats()
	correlationID := d.stats.CorrelationID
	d.log.Log(diag.Debug, "decode planes start", "correlation_id", correlationID, "width", info.Width, "height", info.Height, "channels", info.NumChannels)

	pool := schedule.NewPool(d.threadCount, schedule.DefaultQueueLength, d.arena, d.log)
	pool.Start()

	opt := codestream.DecodeOptions{
		Arena:     d.arena,
		Pool:      pool,
		Codebooks: d.codebooks,
		Precision: wavelet.Precision(precision),
		Stats:     d.stats,
		HalfHoriz: colorParams.Resolution == ResolutionHalfHorizontal,
		OnRow:     padEdge,
	}

	_, decodeErr := codestream.DecodeSample(sampleBytes, opt)
	pool.Stop()

	if decodeErr != nil {
		d.log.Log(diag.Error, "decode failed", "correlation_id", correlationID, "err", decodeErr)
		return decodeErr
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// edgeReplicator wraps a row sink so that rows in [displayHeight, height)
// — padding rows a coded wavelet height taller than the display height
// produces — are replaced with a copy of row displayHeight-1 (§8's
// boundary behavior for display_height < height).
func edgeReplicator(height, displayHeight int, next codestream.ChannelRowFunc) codestream.ChannelRowFunc {
	if displayHeight <= 0 || displayHeight >= height {
		return next
	}
	lastRows := make(map[int][]int16, 4)
	return func(channel, row int, pixels []int16) {
		if row < displayHeight {
			cp := make([]int16, len(pixels))
			copy(cp, pixels)
			lastRows[channel] = cp
			next(channel, row, pixels)
			return
		}
		if last, ok := lastRows[channel]; ok {
			next(channel, row, last)
		}
	}
}
