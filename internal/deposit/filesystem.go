package deposit

import (
	"io"
	"io/fs"
)

// FilesystemManager provides read access to the files being published.
// Paths are absolute strings as returned by Resolve. It satisfies
// zenodo.Filesystem, so the same manager feeds the upload itself.
type FilesystemManager interface {
	// Resolve turns a raw path into an absolute path and validates that it
	// names a regular file (not a directory, symlink, device, etc.).
	Resolve(rawPath string) (string, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	Stat(path string) (fs.FileInfo, error)
}
