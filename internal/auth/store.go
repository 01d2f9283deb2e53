package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// CredentialStore persists the single user credential record.
type CredentialStore interface {
	// Read returns the stored credential, or nil when no usable record
	// exists. Missing, unreadable, and corrupt files are all absence,
	// never an error.
	Read(ctx context.Context) (*Credential, error)

	// Write replaces the stored record wholesale.
	Write(ctx context.Context, cred *Credential) error

	// Clear removes the stored record. Clearing an absent record is a no-op.
	Clear(ctx context.Context) error
}

// FileStore keeps the credential in a single JSON file with owner-only
// permissions. Writes use temp file + rename so a crash never leaves a
// partially written record.
type FileStore struct {
	path string
}

// Compile-time check to ensure FileStore implements CredentialStore
var _ CredentialStore = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path. The containing
// directory is created on first write, not here.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("credential file path cannot be empty")
	}
	return &FileStore{path: path}, nil
}

// Read loads the credential. A missing file, an unreadable file, or content
// that fails to parse as the expected shape all return nil: the credential is
// regenerable via login, so availability wins over strictness here.
func (s *FileStore) Read(ctx context.Context) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		slog.WarnContext(ctx, "credential file unreadable, treating as absent", "path", s.path, "error", err)
		return nil, nil
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		slog.WarnContext(ctx, "credential file corrupt, treating as absent", "path", s.path, "error", err)
		return nil, nil
	}
	if cred.AccessToken == "" || cred.ExpiresAt == 0 {
		slog.WarnContext(ctx, "credential file missing required fields, treating as absent", "path", s.path)
		return nil, nil
	}

	return &cred, nil
}

// Write atomically replaces the stored record, creating the containing
// directory with 0700 permissions if missing. The file is written with 0600
// permissions before it becomes visible at its final path.
func (s *FileStore) Write(ctx context.Context, cred *Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	// Temp file in the same directory so the rename is atomic
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tmpName) }()
	defer func() { _ = tmp.Close() }()

	if err := tmp.Chmod(0600); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return os.Rename(tmpName, s.path)
}

// Clear removes the credential file. A missing file is success.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear credential file: %w", err)
	}
	return nil
}
