// Package pass reads secrets from the standard unix password manager.
package pass

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bnema/order-intake-bot/internal/ports"
)

var ErrUnavailable = errors.New("pass command unavailable")

// showFunc returns the decrypted entry or the reason pass gave for failing.
type showFunc func(ctx context.Context, dir, entry string) (string, error)

type Store struct {
	// Dir overrides PASSWORD_STORE_DIR for the pass process.
	Dir  string
	show showFunc
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{show: passShow}
}

// Get returns the first line of the entry, which is where pass keeps the
// password by convention.
func (s *Store) Get(ctx context.Context, entry string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	entry = strings.Trim(strings.TrimSpace(entry), "/")
	if entry == "" {
		return "", errors.New("pass entry name is empty")
	}

	out, err := s.show(ctx, s.Dir, entry)
	if err != nil {
		return "", fmt.Errorf("pass show %q: %w", entry, err)
	}

	password, _, _ := strings.Cut(out, "\n")
	password = strings.TrimRight(password, "\r")
	if password == "" {
		return "", fmt.Errorf("pass entry %q has an empty first line", entry)
	}

	return password, nil
}

func passShow(ctx context.Context, dir, entry string) (string, error) {
	binary, err := exec.LookPath("pass")
	if err != nil {
		return "", ErrUnavailable
	}

	cmd := exec.CommandContext(ctx, binary, "show", entry)
	if dir != "" {
		cmd.Env = append(os.Environ(), "PASSWORD_STORE_DIR="+dir)
	}

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if reason := strings.TrimSpace(string(exitErr.Stderr)); reason != "" {
				return "", fmt.Errorf("%w: %s", err, reason)
			}
		}
		return "", err
	}

	return string(out), nil
}
