// Package file reads secrets from files such as mounted container secrets.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/order-intake-bot/internal/ports"
)

const maxSecretBytes = 64 << 10

var ErrSecretTooLarge = errors.New("secret file too large")

type Store struct {
	root string
}

var _ ports.SecretStore = (*Store)(nil)

// NewStore resolves relative names against root. Absolute names are read as is.
func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Get returns the file content with trailing line breaks removed.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file secret %q not found: %w", name, err)
		}
		return "", fmt.Errorf("open file secret %q: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSecretBytes+1))
	if err != nil {
		return "", fmt.Errorf("read file secret %q: %w", name, err)
	}
	if len(data) > maxSecretBytes {
		return "", fmt.Errorf("file secret %q: %w", name, ErrSecretTooLarge)
	}

	return strings.TrimRight(string(data), "\r\n"), nil
}

// resolve keeps relative names inside root.
func (s *Store) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secret file name is empty")
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}

	rel, err := filepath.Rel(s.root, filepath.Join(s.root, name))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("secret file name %q escapes %s", name, s.root)
	}

	return filepath.Join(s.root, rel), nil
}
