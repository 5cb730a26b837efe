package state

import (
	"context"
	"fmt"

	"github.com/sparkst/qralph/internal/filelock"
)

// Lock is the type-level witness SPEC_FULL.md §4.1.1 requires in place of
// the source implementation's runtime stderr warning: every function in
// this package that mutates persisted state takes a *Lock parameter, and the
// only way to construct one is Acquire. There is no codepath that performs a
// read-modify-write without holding it.
type Lock struct {
	handle *filelock.Handle
}

// Acquire takes an exclusive advisory lock on a sibling ".lock" file next to
// the state it guards, held across a full read-modify-write cycle.
func Acquire(ctx context.Context, lockPath string) (*Lock, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	h, err := filelock.Acquire(lockPath)
	if err != nil {
		return nil, fmt.Errorf("acquiring state lock: %w", err)
	}
	return &Lock{handle: h}, nil
}

// Release is idempotent.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.handle.Release()
}
