package storage

import (
	"os"
	"sync"
	"syscall"
)

// FileLock serializes access to one stored document across processes.
// It pairs an in-process mutex with a flock(2) on a sidecar .lock file,
// so the run command, a serve process, and an approver sidecar can all
// touch the same permission store safely.
type FileLock struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewFileLock returns a lock guarding the document at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) acquire(how int) error {
	f, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return err
	}
	l.file = f
	return nil
}

// Lock blocks until the exclusive lock is held.
func (l *FileLock) Lock() error {
	l.mu.Lock()
	if err := l.acquire(syscall.LOCK_EX); err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

// TryLock acquires the lock without blocking, reporting whether it
// succeeded. Another holder, in this process or any other, means false.
func (l *FileLock) TryLock() bool {
	if !l.mu.TryLock() {
		return false
	}
	if err := l.acquire(syscall.LOCK_EX | syscall.LOCK_NB); err != nil {
		l.mu.Unlock()
		return false
	}
	return true
}

// Unlock releases the lock and removes the sidecar file. Unlocking an
// unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	os.Remove(l.path + ".lock")
	l.file = nil

	l.mu.Unlock()
	return nil
}
