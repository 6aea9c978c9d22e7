// Package secrets resolves sensitive configuration (JWT signing key,
// database password) from Vault, falling back to environment variables
// when Vault is disabled or a key is absent.
package secrets

import (
	"context"
	"errors"
	"sync"

	"advisor-marketplace/backend/pkg/logger"
)

// Manager provides access to secrets from various sources.
type Manager interface {
	// GetSecret retrieves a secret by key.
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found.
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

var (
	defaultManager Manager
	managerOnce    sync.Once

	ErrManagerNotInitialized = errors.New("secrets manager not initialized")
)

// Init initializes the default secrets manager.
func Init(log *logger.Logger) error {
	var err error
	managerOnce.Do(func() {
		manager, initErr := NewVaultManager(log)
		if initErr != nil {
			err = initErr
			return
		}
		defaultManager = manager
	})
	return err
}

// GetSecret retrieves a secret from the default manager.
func GetSecret(ctx context.Context, key string) (string, error) {
	if defaultManager == nil {
		return "", ErrManagerNotInitialized
	}
	return defaultManager.GetSecret(ctx, key)
}

// GetSecretWithDefault retrieves a secret with a default value if not found.
func GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	if defaultManager == nil {
		return defaultValue
	}
	return defaultManager.GetSecretWithDefault(ctx, key, defaultValue)
}

// SetManager replaces the default manager, primarily for tests.
func SetManager(manager Manager) {
	defaultManager = manager
}
