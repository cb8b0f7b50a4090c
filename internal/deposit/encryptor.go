package deposit

import "io"

// Encryptor seals archived copies. Sealing only needs the public key;
// opening a copy needs the passphrase that protects the private key.
type Encryptor interface {
	// Setup creates the key pair, protecting the private key with
	// passphrase. It refuses to replace existing keys.
	Setup(passphrase string) error

	// Encrypt writes the ciphertext of r to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether the key pair exists.
	IsConfigured() bool
}

// DecryptionContext holds an opened private key for one restore.
type DecryptionContext interface {
	// Decrypt writes the plaintext of the ciphertext read from r to w.
	Decrypt(r io.Reader, w io.Writer) error
}
