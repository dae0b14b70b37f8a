// Package resolver turns credential references from configuration into values.
// A reference is "pass:<entry>", "file:<path>", "env:<NAME>" or a literal.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	envstore "github.com/bnema/order-intake-bot/internal/adapters/secrets/env"
	filestore "github.com/bnema/order-intake-bot/internal/adapters/secrets/file"
	passstore "github.com/bnema/order-intake-bot/internal/adapters/secrets/pass"
	"github.com/bnema/order-intake-bot/internal/ports"
)

const (
	SchemePass = "pass"
	SchemeFile = "file"
	SchemeEnv  = "env"
)

type Resolver struct {
	backends map[string]ports.SecretStore
}

var _ ports.SecretStore = (*Resolver)(nil)

var errNilBackend = errors.New("secret backend is nil")

func New(pass, file, env ports.SecretStore) (*Resolver, error) {
	backends := map[string]ports.SecretStore{
		SchemePass: pass,
		SchemeFile: file,
		SchemeEnv:  env,
	}
	for scheme, backend := range backends {
		if backend == nil {
			return nil, fmt.Errorf("%s: %w", scheme, errNilBackend)
		}
	}

	return &Resolver{backends: backends}, nil
}

// NewDefault wires pass, files relative to fileRoot and the process
// environment.
func NewDefault(fileRoot string) *Resolver {
	return &Resolver{backends: map[string]ports.SecretStore{
		SchemePass: passstore.NewStore(),
		SchemeFile: filestore.NewStore(fileRoot),
		SchemeEnv:  envstore.NewStore(),
	}}
}

// Get resolves ref. Anything without a known scheme prefix is returned
// unchanged, so plain tokens such as "123456:ABC" keep working.
func (r *Resolver) Get(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	scheme, key, ok := strings.Cut(ref, ":")
	if !ok {
		return ref, nil
	}

	backend, known := r.backends[scheme]
	if !known {
		return ref, nil
	}

	value, err := backend.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve %s secret: %w", scheme, err)
	}

	return value, nil
}
