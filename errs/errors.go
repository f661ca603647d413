// Package errs defines the sentinel error kinds returned by the layout
// engine. Callers use errors.Is against these sentinels; call sites wrap
// them with github.com/pkg/errors to attach the region or operation that
// failed.
package errs

import "github.com/pkg/errors"

// Sentinel error kinds. Every error surfaced by the engine has one of these
// as its errors.Cause.
var (
	// NoIndex means the backing store has never been formatted: the first
	// header block did not carry the region-table magic.
	NoIndex = errors.New("no index found on backing store")

	// CorruptData means the magic was fine but an invariant inside the
	// layout failed: unknown magic label, inconsistent offsets, bad
	// nonce, a decode length mismatch, and so on.
	CorruptData = errors.New("index layout is corrupt")

	// UnsupportedVersion means a recognized but unhandled on-disk version
	// was found (superblock versions 4-6, state-buffer version != 301).
	UnsupportedVersion = errors.New("unsupported on-disk version")

	// IncorrectAlignment means the geometry's page size is not a multiple
	// of the block size.
	IncorrectAlignment = errors.New("geometry is not block-aligned")

	// BadState means a save slot was asked to validate before it ever
	// received a timestamp/nonce, or a page map was sized for a geometry
	// with too many delta lists.
	BadState = errors.New("save slot or page map is in a bad state")

	// InvalidArgument means an out-of-range chapter, page, or delta-list
	// index was passed to a page-map operation.
	InvalidArgument = errors.New("invalid argument")

	// UnexpectedResult means the region iterator's invariants were broken
	// while reconstructing a region table.
	UnexpectedResult = errors.New("region table does not match expected layout")

	// NoSpace means the backing store is smaller than requested or
	// required.
	NoSpace = errors.New("backing store has insufficient space")

	// IndexNotSavedCleanly means select_latest found no valid save slot.
	IndexNotSavedCleanly = errors.New("index has no cleanly saved state")
)

// Wrap attaches ctx to cause, preserving cause as the errors.Cause() so that
// errors.Is(err, errs.CorruptData) keeps working after wrapping.
func Wrap(cause error, ctx string) error {
	return errors.Wrap(cause, ctx)
}

// Wrapf is like Wrap with a formatted context string.
func Wrapf(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(cause, format, args...)
}
