//go:build unix || linux || darwin

// flock(2) implementation for Unix platforms.
// Both methods are called with l.mu held by the exported Lock/Unlock.
package strata

import "syscall"

func (l *directoryLock) lock(mode LockMode) error {
	op := syscall.LOCK_SH
	if mode == LockExclusive {
		op = syscall.LOCK_EX
	}
	// LOCK_NB: a Session that can't take the lock fails fast with
	// ErrLocked instead of blocking behind another session.
	return syscall.Flock(int(l.f.Fd()), op|syscall.LOCK_NB)
}

func (l *directoryLock) unlock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
