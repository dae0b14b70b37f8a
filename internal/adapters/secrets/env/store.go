// Package env reads secrets from environment variables.
package env

import (
	"context"
	"fmt"
	"os"

	"github.com/bnema/order-intake-bot/internal/ports"
)

type Store struct {
	lookup func(string) (string, bool)
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{lookup: os.LookupEnv}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, ok := s.lookup(key)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", key)
	}

	return value, nil
}
