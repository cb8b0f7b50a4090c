package testutil

import "zenodo-upload/internal/vault"

// NewTestVault creates an empty in-memory archive vault.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}
