package db

import (
	"context"

	"github.com/opst/pickfab/pkg/domain/keychain/key"
)

type KeychainInterface interface {
	// Lock the keychain named name, and run criticalSection while locked.
	//
	// The keychain row is created if it does not exist yet.
	//
	// When criticalSection returns an error, its effects are rolled back.
	Lock(ctx context.Context, name string, criticalSection func(context.Context) error) error

	// GetKeys returns all keys stored in the keychain named name,
	// mapping Key ID -> Key.
	GetKeys(ctx context.Context, name string) (map[string]key.Key, error)

	// UpdateKeys replaces the stored keys of the keychain named name.
	UpdateKeys(ctx context.Context, name string, keys map[string]key.Key) error
}
