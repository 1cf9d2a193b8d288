package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// storedSession is one profile's entry in the session file.
type storedSession struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// sessionFile is the on-disk document. Several profiles (accounts or
// servers) can share one file.
type sessionFile struct {
	Sessions map[string]*storedSession `json:"sessions"` // key = profile
}

// FileStore keeps the credential in a JSON file. Writes are atomic and
// serialized across processes with a lock file; entries for other profiles
// are preserved.
type FileStore struct {
	path    string
	profile string
	logger  *zap.Logger
}

// NewFileStore returns a store for profile inside the file at path.
func NewFileStore(path, profile string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, profile: profile, logger: logger}
}

func (f *FileStore) Get() (Credential, bool) {
	doc, err := f.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("session file unreadable, treating as logged out",
				zap.String("path", f.path), zap.Error(err))
		}
		return Credential{}, false
	}

	s, ok := doc.Sessions[f.profile]
	if !ok || s == nil {
		return Credential{}, false
	}
	c := Credential{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
	return c, !c.IsZero()
}

func (f *FileStore) SetAccess(token string) error {
	return f.update(func(s *storedSession) { s.AccessToken = token })
}

func (f *FileStore) SetRefresh(token string) error {
	return f.update(func(s *storedSession) { s.RefreshToken = token })
}

func (f *FileStore) Clear() error {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return f.modify(func(doc *sessionFile) {
		delete(doc.Sessions, f.profile)
	})
}

func (f *FileStore) read() (*sessionFile, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var doc sessionFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &doc, nil
}

func (f *FileStore) update(fn func(s *storedSession)) error {
	return f.modify(func(doc *sessionFile) {
		s, ok := doc.Sessions[f.profile]
		if !ok || s == nil {
			s = &storedSession{}
			doc.Sessions[f.profile] = s
		}
		fn(s)
		s.UpdatedAt = time.Now().UTC()
	})
}

// modify runs fn against the current document under the file lock and
// writes the result back atomically.
func (f *FileStore) modify(fn func(doc *sessionFile)) error {
	lock, err := acquireFileLock(f.path, f.logger)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			f.logger.Warn("failed to release session file lock", zap.Error(releaseErr))
		}
	}()

	// Re-read inside the lock; a corrupt file is replaced rather than fatal.
	doc, err := f.read()
	if err != nil {
		doc = &sessionFile{}
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]*storedSession)
	}

	fn(doc)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, f.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
