// Package filelock provides the low-level advisory-locking primitive shared
// by the state store and the process registry. It is intentionally bare: the
// domain packages (internal/state, internal/registry) each wrap a Handle in
// their own typed witness so a lock obtained for one cannot be mistaken for
// a lock obtained for the other.
package filelock

import "os"

// Handle represents a held advisory lock. Release is idempotent.
type Handle struct {
	unlock func() error
}

// Release unlocks and closes the underlying descriptor. Safe to call more
// than once or on a nil Handle.
func (h *Handle) Release() error {
	if h == nil || h.unlock == nil {
		return nil
	}
	err := h.unlock()
	h.unlock = nil
	return err
}

// Acquire opens (creating if necessary) the file at path and takes an
// exclusive advisory lock on it, blocking until available. On platforms
// without advisory locking support this degrades to a no-op and logs a
// one-time startup warning (SPEC_FULL.md §9, Open Question 3).
func Acquire(path string) (*Handle, error) {
	unlock, err := flock(path)
	if err != nil {
		return nil, err
	}
	return &Handle{unlock: unlock}, nil
}

// LockFile takes an exclusive advisory lock directly on an already-open file
// descriptor. Used for append-only logs (decisions.log, process-kills.log)
// where the writer already holds the descriptor it writes through.
func LockFile(f *os.File) (unlock func() error, err error) {
	if err := lockFD(f); err != nil {
		return nil, err
	}
	return func() error { return unlockFD(f) }, nil
}
