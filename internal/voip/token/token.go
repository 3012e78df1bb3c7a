// Package token keeps the push token written by the push-registration
// collaborator and lets the center observe updates.
package token

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNoToken is returned by Load before any token was registered.
var ErrNoToken = errors.New("no push token registered")

// Store holds the latest push token.
type Store interface {
	// Load returns the latest token or ErrNoToken.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the token and notifies observers.
	Save(ctx context.Context, token []byte) error
	// Observe delivers every token saved after the call returns. The channel
	// is closed when ctx is done.
	Observe(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// EncodeHex renders a token as lowercase hex.
func EncodeHex(token []byte) string {
	return hex.EncodeToString(token)
}

// DecodeHex parses a hex token. Case and surrounding whitespace are ignored.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty token")
	}
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return b, nil
}
