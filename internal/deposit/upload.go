package deposit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"zenodo-upload/internal/model"
	"zenodo-upload/internal/zenodo"
)

// UploadRequest describes one new version to publish.
type UploadRequest struct {
	// Reference is the record or concept id of the deposition.
	Reference int64
	Path      string
	Version   string
	Token     string
	Sandbox   bool
	// Checksum enables skipping the upload when the file is unchanged.
	Checksum bool
}

// Upload publishes the file at req.Path as a new version of req.Reference,
// recording the attempt in the ledger and archiving the published file.
//
// When the file is unchanged the draft is discarded, the attempt is recorded
// as discarded and the *zenodo.DraftDiscardedError is returned. A publish
// whose response cannot be read is still recorded as published, without a DOI.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*model.Publication, error) {
	if req.Token == "" {
		return nil, fmt.Errorf("no access token given")
	}
	if req.Version == "" {
		return nil, fmt.Errorf("no version given")
	}

	path, err := s.fsmgr.Resolve(req.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving file: %w", err)
	}
	info, err := s.fsmgr.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading file info: %w", err)
	}
	checksum, err := zenodo.FileChecksum(s.fsmgr, path)
	if err != nil {
		return nil, err
	}

	pub := &model.Publication{
		OperationID: s.idgen.New(),
		Reference:   req.Reference,
		FileName:    filepath.Base(path),
		FileSize:    info.Size(),
		Checksum:    checksum,
		Version:     req.Version,
		Sandbox:     req.Sandbox,
		Status:      model.StatusRunning,
		StartedAt:   s.clock.Now(),
	}
	if err := s.database.CreatePublication(pub); err != nil {
		return nil, fmt.Errorf("recording publication: %w", err)
	}

	s.logger.Info("upload started",
		"reference", req.Reference,
		"file", pub.FileName,
		"size", humanize.Bytes(uint64(pub.FileSize)),
		"version", req.Version,
		"sandbox", req.Sandbox,
	)

	result, err := zenodo.Upload(ctx, s.newClient(req), req.Reference, path, req.Version)
	switch {
	case errors.Is(err, zenodo.ErrPublishResponse):
		s.logger.Warn("published, but the response could not be read", "error", err)
		pub.Error = err.Error()
	case err != nil:
		s.fail(pub, err)
		return nil, err
	default:
		pub.RecordID = result.ID
		pub.DOI = result.DOI
		pub.HTML = result.HTML
	}
	pub.Status = model.StatusPublished

	// The record is public at this point; an archive failure is only logged.
	if s.vault != nil {
		key, encrypted, err := s.archive(path, checksum, pub.FileSize)
		if err != nil {
			s.logger.Warn("archiving failed", "checksum", checksum, "error", err)
		} else {
			pub.Archived = true
			pub.ArchiveKey = key
			pub.Encrypted = encrypted
		}
	}

	s.finish(pub)
	s.logger.Info("upload complete", "record", pub.RecordID, "doi", pub.DOI, "archived", pub.Archived)
	return pub, nil
}

// fail records the outcome of an unsuccessful attempt.
func (s *Service) fail(pub *model.Publication, err error) {
	var discarded *zenodo.DraftDiscardedError
	if errors.As(err, &discarded) {
		pub.Status = model.StatusDiscarded
		pub.Draft = discarded.Draft
		s.logger.Info("upload skipped, file unchanged", "draft", discarded.Draft)
	} else {
		pub.Status = model.StatusFailed
		s.logger.Error("upload failed", "error", err)
	}
	pub.Error = err.Error()
	s.finish(pub)
}

// finish stamps and stores the outcome. A ledger failure must not mask the
// outcome of the upload, so it is logged only.
func (s *Service) finish(pub *model.Publication) {
	now := s.clock.Now()
	pub.FinishedAt = &now
	if err := s.database.FinishPublication(pub); err != nil {
		s.logger.Error("recording publication outcome failed", "id", pub.ID, "error", err)
	}
}
