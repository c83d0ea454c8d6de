package settings

import (
	"context"
	"errors"
	"strings"
)

// Known setting keys.
const (
	KeyAPIEndpoint = "api_endpoint"
	KeyAPIKey      = "api_key"
	KeyAPIModel    = "api_model"
	KeyFigmaToken  = "figma_token"
	KeyGitHubToken = "github_token"
)

// Obfuscated replaces secret values in read responses.
const Obfuscated = "obfuscated"

var ErrUnknownKey = errors.New("unknown setting key")

// Keys lists every key the settings API accepts, in display order.
var Keys = []string{KeyAPIEndpoint, KeyAPIKey, KeyAPIModel, KeyFigmaToken, KeyGitHubToken}

var secretKeys = map[string]bool{
	KeyAPIKey:      true,
	KeyFigmaToken:  true,
	KeyGitHubToken: true,
}

// IsKnown reports whether key is part of Keys.
func IsKnown(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// IsSecret reports whether the value of key must never be echoed back.
func IsSecret(key string) bool {
	return secretKeys[key]
}

// Store is a flat key-value store for runtime settings.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Capabilities tells the routing core which optional integrations are usable.
type Capabilities struct {
	Figma    bool
	CodeHost bool
}

// LoadCapabilities derives capability flags from the configured tokens.
func LoadCapabilities(ctx context.Context, store Store) (Capabilities, error) {
	figma, err := Value(ctx, store, KeyFigmaToken)
	if err != nil {
		return Capabilities{}, err
	}
	github, err := Value(ctx, store, KeyGitHubToken)
	if err != nil {
		return Capabilities{}, err
	}
	return Capabilities{Figma: figma != "", CodeHost: github != ""}, nil
}

// Value returns the trimmed value of key, or "" when unset.
func Value(ctx context.Context, store Store, key string) (string, error) {
	value, ok, err := store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(value), nil
}
