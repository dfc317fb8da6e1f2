package cineform

import "github.com/gopro-cineform/decoder/internal/cferr"

// Sentinel errors matching §7's taxonomy, checkable with errors.Is/errors.As
// against any error Decode or ParseHeader returns. Every internal package
// wraps these with github.com/pkg/errors.Wrap/Wrapf, so the sentinel stays
// reachable through the wrapping.
var (
	// ErrTruncated: bitstream ended inside a tuple or band payload.
	ErrTruncated = cferr.ErrTruncated

	// ErrUnsupportedTag: required tag the decoder does not implement.
	ErrUnsupportedTag = cferr.ErrUnsupportedTag

	// ErrBadFormat: structural mismatch, e.g. band count disagrees with
	// transform type.
	ErrBadFormat = cferr.ErrBadFormat

	// ErrEntropyCorrupt: FSM signaled end-of-band too early, or a run
	// overflowed the subband.
	ErrEntropyCorrupt = cferr.ErrEntropyCorrupt

	// ErrOversize: advertised dimensions exceed the limits New was
	// constructed with.
	ErrOversize = cferr.ErrOversize

	// ErrInternalInvariant: assertion-class failure.
	ErrInternalInvariant = cferr.ErrInternalInvariant
)
