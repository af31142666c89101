package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

// TokenStore persists the bearer token of a session between restarts.
type TokenStore interface {
	// Load returns the stored token, or "" if there is none.
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// NopTokenStore keeps nothing.
type NopTokenStore struct{}

// Load ...
func (NopTokenStore) Load() (string, error) { return "", nil }

// Save ...
func (NopTokenStore) Save(string) error { return nil }

// Clear ...
func (NopTokenStore) Clear() error { return nil }

// FileTokenStore keeps the token in a file readable only by the owner.
type FileTokenStore struct {
	path        string
	fileManager fileutil.FileManager
	pathChecker pathutil.PathChecker
}

// NewFileTokenStore ...
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("token file path is empty")
	}

	absPath, err := pathutil.NewPathModifier().AbsPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve token file path: %w", err)
	}

	return &FileTokenStore{
		path:        absPath,
		fileManager: fileutil.NewFileManager(),
		pathChecker: pathutil.NewPathChecker(),
	}, nil
}

// Path ...
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load ...
func (s *FileTokenStore) Load() (string, error) {
	exists, err := s.pathChecker.IsPathExists(s.path)
	if err != nil {
		return "", fmt.Errorf("check token file: %w", err)
	}
	if !exists {
		return "", nil
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

// Save ...
func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := s.fileManager.Write(s.path, token, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Clear ...
func (s *FileTokenStore) Clear() error {
	exists, err := s.pathChecker.IsPathExists(s.path)
	if err != nil {
		return fmt.Errorf("check token file: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.fileManager.Remove(s.path); err != nil {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
