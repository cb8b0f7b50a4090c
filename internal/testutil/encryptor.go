package testutil

import "zenodo-upload/internal/encryption"

// NewTestEncryptor creates a deterministic encryptor for archive tests.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}
