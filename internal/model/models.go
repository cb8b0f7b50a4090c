package model

import "time"

// Publication statuses recorded in the ledger.
const (
	StatusRunning   = "running"
	StatusPublished = "published"
	StatusDiscarded = "discarded"
	StatusFailed    = "failed"
)

// Publication is one attempt to publish a new version of a record.
// It is created when the attempt starts and finished with its outcome.
type Publication struct {
	ID          int64
	OperationID string // UUID
	Reference   int64  // record or concept id given by the user
	FileName    string // base name of the uploaded file
	FileSize    int64
	Checksum    string // MD5 of the uploaded file
	Version     string
	Sandbox     bool
	Status      string
	RecordID    int64 // id of the published version
	DOI         string
	HTML        string
	Draft       string // draft location when the draft was discarded
	Error       string
	Archived    bool
	ArchiveKey  string // vault key of the archived copy
	Encrypted   bool   // archived copy is age-encrypted
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Finished reports whether the attempt has an outcome.
func (p *Publication) Finished() bool {
	return p.Status != StatusRunning
}
