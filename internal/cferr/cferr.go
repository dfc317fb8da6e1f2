// Package cferr defines the shared error taxonomy (§7) used across the
// decoder core so that internal packages and the public API agree on a
// single set of sentinel errors checkable with errors.Is/errors.As.
package cferr

import "github.com/pkg/errors"

// Sentinel errors, one per kind in §7's taxonomy. Packages wrap these with
// github.com/pkg/errors.Wrap/Wrapf to add context while keeping the
// sentinel reachable through errors.Is.
var (
	// ErrTruncated: bitstream ended inside a tuple or band payload.
	ErrTruncated = errors.New("cineform: truncated bitstream")

	// ErrUnsupportedTag: required tag the decoder does not implement.
	ErrUnsupportedTag = errors.New("cineform: unsupported required tag")

	// ErrBadFormat: structural mismatch (e.g. band count disagrees with
	// transform type).
	ErrBadFormat = errors.New("cineform: bad format")

	// ErrEntropyCorrupt: FSM signaled end-of-band too early, or a run
	// overflowed the subband.
	ErrEntropyCorrupt = errors.New("cineform: entropy stream corrupt")

	// ErrOversize: advertised dimensions exceed decoder limits.
	ErrOversize = errors.New("cineform: sample exceeds decoder limits")

	// ErrInternalInvariant: assertion-class failure. The decoder has no
	// tolerant mode: this error is always returned to the caller.
	ErrInternalInvariant = errors.New("cineform: internal invariant violated")
)
