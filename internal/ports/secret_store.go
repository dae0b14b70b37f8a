package ports

import "context"

// SecretStore resolves credential references such as the bot token.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
}
