package deposit

import "io"

// Vault stores archived copies of published files.
// Content is addressed by key: the MD5 checksum of the stored bytes.
type Vault interface {
	// PutContent stores content under key. Storing the same key twice is safe.
	// size is the number of bytes that will be read from r.
	PutContent(key string, r io.Reader, size int64) error

	// GetContent retrieves content by key and writes it to w.
	GetContent(key string, w io.Writer) error

	// HasContent reports whether content is stored under key.
	HasContent(key string) (bool, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
