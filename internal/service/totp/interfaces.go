package totp

import (
	"context"
)

// Store defines the versioned storage operations needed by the TOTP engine
type Store interface {
	Get(ctx context.Context, key string) ([]byte, int64, error)
	Put(ctx context.Context, key string, value []byte) error
	ConditionalPut(ctx context.Context, key string, expectedVersion int64, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Encryptor defines encryption operations
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertextBase64 string) ([]byte, error)
}
