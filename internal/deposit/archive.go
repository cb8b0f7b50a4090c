package deposit

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"zenodo-upload/internal/model"
)

// archive stores a copy of the published file in the vault and returns the
// key it is stored under. Plaintext copies are keyed by the file checksum;
// encrypted copies by the checksum of the ciphertext.
func (s *Service) archive(path, checksum string, size int64) (string, bool, error) {
	encrypt := s.settings.EncryptArchive
	if encrypt && s.encryptor == nil {
		return "", false, fmt.Errorf("archive encryption enabled but no encryptor configured")
	}

	prev, err := s.findArchived(checksum, encrypt)
	if err != nil {
		return "", false, err
	}
	if prev != nil {
		s.logger.Debug("archive deduplicated", "checksum", checksum, "key", prev.ArchiveKey)
		return prev.ArchiveKey, encrypt, nil
	}

	if encrypt {
		key, err := s.putEncrypted(path)
		if err != nil {
			return "", false, err
		}
		s.logger.Info("file archived", "checksum", checksum, "key", key, "encrypted", true)
		return key, true, nil
	}

	f, err := s.fsmgr.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	if err := s.vault.PutContent(checksum, f, size); err != nil {
		return "", false, fmt.Errorf("uploading to vault: %w", err)
	}
	s.logger.Info("file archived", "checksum", checksum, "key", checksum, "encrypted", false)
	return checksum, false, nil
}

// findArchived returns an earlier publication whose archived copy of the
// file is still present in the vault, or nil.
func (s *Service) findArchived(checksum string, encrypted bool) (*model.Publication, error) {
	pubs, err := s.database.FindPublicationsByChecksum(checksum)
	if err != nil {
		return nil, fmt.Errorf("finding archived copies: %w", err)
	}
	for _, p := range pubs {
		if !p.Archived || p.Encrypted != encrypted || p.ArchiveKey == "" {
			continue
		}
		ok, err := s.vault.HasContent(p.ArchiveKey)
		if err != nil {
			return nil, fmt.Errorf("checking vault: %w", err)
		}
		if ok {
			return p, nil
		}
	}
	return nil, nil
}

// putEncrypted encrypts the file into a temporary file, then uploads the
// ciphertext. The vault needs the size up front, which a stream cannot give.
func (s *Service) putEncrypted(path string) (string, error) {
	f, err := s.fsmgr.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	tmp, err := os.CreateTemp("", "zenodo-upload-*.age")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	h := md5.New()
	if err := s.encryptor.Encrypt(f, io.MultiWriter(tmp, h)); err != nil {
		return "", fmt.Errorf("encrypting file: %w", err)
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("sizing ciphertext: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding ciphertext: %w", err)
	}

	key := hex.EncodeToString(h.Sum(nil))
	if err := s.vault.PutContent(key, tmp, size); err != nil {
		return "", fmt.Errorf("uploading to vault: %w", err)
	}
	return key, nil
}

// normalizeChecksum lowercases a hex MD5 and strips an "md5:" prefix.
func normalizeChecksum(checksum string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(checksum)), "md5:")
}

// FindArchive returns the publication holding an archived copy of the file
// with the given checksum. It returns an error if there is none.
func (s *Service) FindArchive(checksum string) (*model.Publication, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("no archive vault configured")
	}
	checksum = normalizeChecksum(checksum)
	pubs, err := s.database.FindPublicationsByChecksum(checksum)
	if err != nil {
		return nil, fmt.Errorf("finding archived copies: %w", err)
	}
	for _, p := range pubs {
		if p.Archived && p.ArchiveKey != "" {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no archived copy with checksum %s", checksum)
}

// RestoreArchive writes the archived copy of the file with the given checksum
// to destPath, which must not exist. decryptCtx is required when the copy is
// encrypted; pass nil otherwise. The restored bytes are verified against the
// checksum before the file is kept.
func (s *Service) RestoreArchive(checksum, destPath string, decryptCtx DecryptionContext) (string, error) {
	checksum = normalizeChecksum(checksum)
	pub, err := s.FindArchive(checksum)
	if err != nil {
		return "", err
	}
	if pub.Encrypted && decryptCtx == nil {
		return "", fmt.Errorf("archived copy is encrypted but no passphrase was provided")
	}

	outPath, err := filepath.Abs(destPath)
	if err != nil {
		return "", fmt.Errorf("resolving destination: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("output file already exists: %s", outPath)
		}
		return "", fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	h := md5.New()
	w := io.MultiWriter(f, h)

	if pub.Encrypted {
		// Pipe vault output straight into the decryptor.
		pr, pw := io.Pipe()
		vaultErrCh := make(chan error, 1)
		go func() {
			err := s.vault.GetContent(pub.ArchiveKey, pw)
			pw.CloseWithError(err)
			vaultErrCh <- err
		}()

		decryptErr := decryptCtx.Decrypt(pr, w)
		pr.CloseWithError(decryptErr)
		vaultErr := <-vaultErrCh

		if decryptErr != nil {
			os.Remove(outPath)
			return "", fmt.Errorf("decrypting archive: %w", decryptErr)
		}
		if vaultErr != nil {
			os.Remove(outPath)
			return "", fmt.Errorf("retrieving archive from vault: %w", vaultErr)
		}
	} else if err := s.vault.GetContent(pub.ArchiveKey, w); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("retrieving archive from vault: %w", err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != checksum {
		os.Remove(outPath)
		return "", fmt.Errorf("restored content checksum %s does not match %s", got, checksum)
	}

	s.logger.Info("archive restored", "checksum", checksum, "path", outPath)
	return outPath, nil
}
