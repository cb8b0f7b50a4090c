package deposit

import "zenodo-upload/internal/model"

// Database is the publication ledger.
type Database interface {
	// CreatePublication inserts p and sets its ID.
	CreatePublication(p *model.Publication) error

	// FinishPublication stores the outcome fields of p (status, record id,
	// DOI, archive state, error, finish time).
	FinishPublication(p *model.Publication) error

	// ListPublications returns the most recent publications, newest first.
	ListPublications(limit int) ([]*model.Publication, error)

	// FindPublicationsByChecksum returns all publications of a file with the
	// given MD5 checksum, newest first.
	FindPublicationsByChecksum(checksum string) ([]*model.Publication, error)

	// Close closes the database connection.
	Close() error
}
