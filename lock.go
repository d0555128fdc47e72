// OS-level advisory locking for single-session directory exclusivity.
//
// directoryLock wraps flock(2) / LockFileEx with a mutex that guards the
// file handle's lifetime. The mutex is held for the entire duration of the
// flock syscall so that Fd() cannot race with Close() on the same *os.File.
//
// A Session takes this lock exclusively, non-blocking, on a dedicated
// .lock file in the database directory. It is a cheap local guard against
// two Sessions on the same directory corrupting the catalog (§5) — not a
// distributed coordination protocol, and it does nothing for a second host
// sharing the same network filesystem.
//
// Callers use setFile(nil) before closing the underlying file. This blocks
// until any in-flight flock completes, then makes subsequent Lock/Unlock
// calls no-ops. After reopening, setFile(f) restores normal operation.
package strata

import (
	"os"
	"sync"
)

// LockMode selects shared or exclusive locking.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// directoryLock coordinates the OS-level advisory lock on a database
// directory's .lock file with safe handle teardown. The mu field
// serialises flock syscalls against setFile so that a concurrent Close
// cannot invalidate the fd mid-syscall.
type directoryLock struct {
	mu sync.Mutex
	f  *os.File
}

// Lock acquires a shared or exclusive, non-blocking flock. Returns nil
// immediately if the handle has been cleared via setFile(nil).
func (l *directoryLock) Lock(mode LockMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.lock(mode)
}

// Unlock releases the flock. Returns nil immediately if the handle has been
// cleared via setFile(nil).
func (l *directoryLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

// setFile swaps the underlying file handle. Passing nil drains any
// in-flight flock (blocks until the mutex is available) and disables
// further locking. Used by Session.Close before closing the fd.
func (l *directoryLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
