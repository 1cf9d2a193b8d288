package session

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Lock timing for the session file.
const (
	lockRetryDelay = 100 * time.Millisecond
	lockWait       = 5 * time.Second
	lockStaleAge   = 30 * time.Second
)

var errLockTimeout = errors.New("timed out waiting for session file lock")

// fileLock is an advisory cross-process lock: whoever creates
// <session file>.lock with O_EXCL owns the file until it removes it.
type fileLock struct {
	file *os.File
	path string
}

// lockOwner identifies this process inside the lock file.
func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("pid=%d host=%s", os.Getpid(), host)
}

// readLockOwner returns what the holder wrote into lockPath.
func readLockOwner(lockPath string) string {
	f, err := os.Open(lockPath)
	if err != nil {
		return "unknown"
	}
	defer f.Close()

	data, _ := io.ReadAll(io.LimitReader(f, 128))
	if owner := strings.TrimSpace(string(data)); owner != "" {
		return owner
	}
	return "unknown"
}

// acquireFileLock takes the lock for the session file at path. It waits up
// to lockWait for another holder, and breaks a lock older than lockStaleAge
// that a crashed process left behind.
func acquireFileLock(path string, logger *zap.Logger) (*fileLock, error) {
	lockPath := path + ".lock"
	deadline := time.Now().Add(lockWait)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			if _, err := f.WriteString(lockOwner()); err != nil {
				logger.Debug("could not record lock owner", zap.Error(err))
			}
			return &fileLock{file: f, path: lockPath}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		broken, err := breakStaleLock(lockPath, logger)
		if err != nil {
			return nil, err
		}
		if broken {
			continue
		}

		if time.Now().After(deadline) {
			owner := readLockOwner(lockPath)
			logger.Warn("gave up waiting for session file lock",
				zap.String("lock", lockPath),
				zap.String("owner", owner),
				zap.Duration("waited", lockWait))
			return nil, fmt.Errorf("%w after %v (held by %s)", errLockTimeout, lockWait, owner)
		}
		time.Sleep(lockRetryDelay)
	}
}

// breakStaleLock removes lockPath when it is older than lockStaleAge. It
// reports true when the lock is gone and acquiring should be tried again
// right away.
func breakStaleLock(lockPath string, logger *zap.Logger) (bool, error) {
	info, err := os.Stat(lockPath)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, nil
	}

	age := time.Since(info.ModTime())
	if age <= lockStaleAge {
		return false, nil
	}

	owner := readLockOwner(lockPath)
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, err)
	}
	logger.Warn("removed stale session file lock",
		zap.String("lock", lockPath),
		zap.String("owner", owner),
		zap.Duration("age", age.Round(time.Second)))
	return true, nil
}

func (l *fileLock) release() error {
	var closeErr error
	if l.file != nil {
		closeErr = l.file.Close()
		l.file = nil
	}
	return errors.Join(closeErr, os.Remove(l.path))
}
