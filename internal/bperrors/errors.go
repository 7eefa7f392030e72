// Package bperrors collects the sentinel errors shared by the page, driver
// and btree packages so callers can compare with errors.Is regardless
// of which layer produced the failure.
package bperrors

import "github.com/pkg/errors"

var (
	// ErrBusy is returned when a mutation is attempted on a tree that
	// already has one in flight.
	ErrBusy = errors.New("bplustree: busy")

	// ErrCorrupt means the on-disk structure violates an invariant the
	// engine relies on. The tree's state is undefined after this error
	// and the tree should not be used further.
	ErrCorrupt = errors.New("bplustree: corrupt")

	// ErrKeyInvalid is returned for a key that cannot participate in the
	// current operation (e.g. a nil pointer-typed key). It is fatal only
	// for the operation that raised it.
	ErrKeyInvalid = errors.New("bplustree: invalid key")

	// ErrNoMapping is raised by the storage driver when an external id
	// has no corresponding internal id. Under normal use the tree never
	// presents an id it did not itself allocate, so this always
	// indicates corruption upstream.
	ErrNoMapping = errors.New("bplustree: external id has no mapping")
)

// Wrap attaches a call-site message to err, or returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, message)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
