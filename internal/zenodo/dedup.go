package zenodo

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// checkDuplicate returns a *FilePresentError when the cached file list holds
// a file named filename whose checksum equals that of the file at path.
// The candidate is only hashed when a file of the same name exists.
func (d *Draft) checkDuplicate(path, filename string) error {
	existing, ok := findByFilename(d.state.files, filename)
	if !ok {
		return nil
	}

	sum, err := FileChecksum(d.client.fsys, path)
	if err != nil {
		return err
	}
	if !sameChecksum(sum, existing.Checksum) {
		d.client.logger.Debug("file changed", "filename", filename, "old", existing.Checksum, "new", sum)
		return nil
	}
	return &FilePresentError{Filename: filename, Checksum: sum}
}

func findByFilename(files []FileDescriptor, filename string) (FileDescriptor, bool) {
	for _, f := range files {
		if f.Filename == filename {
			return f, true
		}
	}
	return FileDescriptor{}, false
}

// sameChecksum compares MD5 checksums, ignoring case and an "md5:" prefix.
func sameChecksum(a, b string) bool {
	return normalizeChecksum(a) == normalizeChecksum(b)
}

func normalizeChecksum(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "md5:"))
}

// FileChecksum returns the lowercase hex MD5 of the file at path, the same
// checksum the service reports for attached files.
func FileChecksum(fsys Filesystem, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
