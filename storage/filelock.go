package storage

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"
)

const lockPollInterval = 10 * time.Millisecond

// FileLock is an advisory, cross-process lock on "<ledger>.lock". The
// holder's pid is written into the lock file so a timeout can name it; the
// file is emptied on release.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock returns an unlocked lock guarding path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock polls until the lock is acquired or timeout passes. A timeout
// matches ErrLockTimeout.
func (l *FileLock) Lock(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "ledger", ID: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for tryLock(f) != nil {
		if !time.Now().Before(deadline) {
			holder := readHolder(f)
			f.Close()
			if holder == "" {
				return fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
			}
			return fmt.Errorf("%w: %s held by pid %s", ErrLockTimeout, l.path, holder)
		}
		time.Sleep(lockPollInterval)
	}

	f.Truncate(0)
	f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	l.file = f
	return nil
}

// Unlock releases the lock. The lock file stays on disk so every locker
// contends on the same inode. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	f.Truncate(0)
	err := unlockFile(f)
	f.Close()
	return err
}

func readHolder(f *os.File) string {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	return string(bytes.TrimSpace(buf[:n]))
}
