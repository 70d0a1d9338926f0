package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps each account's record as <dir>/<account>.token.json.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir ("." when empty).
func NewFileStore(dir string) *FileStore {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &FileStore{Dir: filepath.Clean(dir)}
}

func (s *FileStore) path(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", errors.New("account must not be empty")
	}
	if strings.ContainsAny(account, `/\`) || account == "." || account == ".." {
		return "", fmt.Errorf("invalid account name %q", account)
	}
	return filepath.Join(s.Dir, account+".token.json"), nil
}

// Load reads the account's record, returning ErrNotAuthenticated when none exists.
func (s *FileStore) Load(ctx context.Context, account string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	path, err := s.path(account)
	if err != nil {
		return Credentials{}, err
	}
	data, err := os.ReadFile(path) // #nosec G304 - path built from configured dir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, ErrNotAuthenticated
		}
		return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials %s: %w", path, err)
	}
	return creds, nil
}

// Save replaces the account's record atomically: the JSON is written to a
// temp file in the same directory and renamed over the target.
func (s *FileStore) Save(ctx context.Context, account string, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(account)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir %s: %w", s.Dir, err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp credentials: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp credentials: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace credentials %s: %w", path, err)
	}
	committed = true
	return nil
}

var _ Store = (*FileStore)(nil)
