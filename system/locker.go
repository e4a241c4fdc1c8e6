package system

import (
	"context"

	"emperror.dev/errors"
)

var ErrLockerLocked = errors.Sentinel("locker: cannot acquire lock, already locked")

// Locker is an exclusive lock that can be taken without blocking, or waited
// on for as long as a context allows. Managed worlds hold one for every
// lifecycle, console and file operation.
type Locker struct {
	ch chan struct{}
}

// NewLocker returns a new, unlocked Locker instance.
func NewLocker() *Locker {
	return &Locker{ch: make(chan struct{}, 1)}
}

// IsLocked reports whether the lock is currently held by someone.
func (l *Locker) IsLocked() bool {
	return len(l.ch) == 1
}

// Acquire takes the lock if it is free and returns ErrLockerLocked otherwise.
// It never blocks.
func (l *Locker) Acquire() error {
	select {
	case l.ch <- struct{}{}:
		return nil
	default:
		return ErrLockerLocked
	}
}

// TryAcquire waits for the lock until the context is canceled, in which case
// ErrLockerLocked is returned.
func (l *Locker) TryAcquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrLockerLocked
	}
}

// Release frees the lock. Releasing a lock that is not held is a no-op.
func (l *Locker) Release() {
	select {
	case <-l.ch:
	default:
	}
}

// Do runs fn while holding the lock, waiting for it as long as ctx allows.
func (l *Locker) Do(ctx context.Context, fn func() error) error {
	if err := l.TryAcquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
