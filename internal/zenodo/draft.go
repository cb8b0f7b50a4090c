package zenodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// PublicationDateLayout is the format of the publication_date metadata field.
const PublicationDateLayout = "2006-01-02"

// draftState is the cached view of a draft. It is always built from a single
// server response, so bucket, metadata and files stay consistent.
type draftState struct {
	bucket   string
	metadata Metadata
	files    []FileDescriptor
}

func newDraftState(d *deposition) *draftState {
	md := d.Metadata
	if md == nil {
		md = Metadata{}
	}
	return &draftState{
		bucket:   d.Links.Bucket,
		metadata: md,
		files:    append([]FileDescriptor(nil), d.Files...),
	}
}

// upsertFile replaces the descriptor with the same ID or appends fd.
func (s *draftState) upsertFile(fd FileDescriptor) {
	for i := range s.files {
		if s.files[i].ID == fd.ID {
			s.files[i] = fd
			return
		}
	}
	s.files = append(s.files, fd)
}

// Draft is a session on one unpublished deposition version.
//
// The draft's bucket, metadata and file list are fetched on first use and
// replaced from the server's answer after every successful mutation. A Draft
// is not safe for concurrent use; distinct Drafts share nothing.
type Draft struct {
	client   *Client
	location string
	dedup    bool
	state    *draftState
	closed   bool
}

func newDraft(c *Client, location string) *Draft {
	return &Draft{
		client:   c,
		location: location,
		dedup:    c.dedup,
	}
}

// String returns the draft's resource location.
func (d *Draft) String() string { return d.location }

// Dedup reports whether AddFile compares checksums before uploading.
func (d *Draft) Dedup() bool { return d.dedup }

// Metadata returns a copy of the draft's metadata, fetching the draft if it
// has not been fetched yet. Changes to the copy are local until passed to
// SetMetadata.
func (d *Draft) Metadata(ctx context.Context) (Metadata, error) {
	if err := d.ensureState(ctx); err != nil {
		return nil, err
	}
	return d.state.metadata.Clone(), nil
}

// Files returns a copy of the draft's file list, fetching the draft if needed.
func (d *Draft) Files(ctx context.Context) ([]FileDescriptor, error) {
	if err := d.ensureState(ctx); err != nil {
		return nil, err
	}
	return append([]FileDescriptor(nil), d.state.files...), nil
}

// Bucket returns the upload target of the draft, fetching the draft if needed.
func (d *Draft) Bucket(ctx context.Context) (string, error) {
	if err := d.ensureState(ctx); err != nil {
		return "", err
	}
	return d.state.bucket, nil
}

func (d *Draft) ensureState(ctx context.Context) error {
	if d.state != nil {
		return nil
	}
	return d.refresh(ctx)
}

// refresh replaces the cache with the server's current view of the draft.
func (d *Draft) refresh(ctx context.Context) error {
	if d.closed {
		return ErrDraftClosed
	}
	req, err := d.client.newRequest(ctx, http.MethodGet, d.location, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.do(d.client.httpClient, req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if !isSuccess(resp) {
		return newAPIError(OpFetchDraft, resp)
	}
	var body deposition
	if err := decodeJSON(resp, &body); err != nil {
		return fmt.Errorf("%s: %w", OpFetchDraft, err)
	}
	d.state = newDraftState(&body)
	return nil
}

// SetMetadata replaces the draft's metadata with md. On success the cache is
// rebuilt from the server's response, which may differ from md.
func (d *Draft) SetMetadata(ctx context.Context, md Metadata) error {
	if d.closed {
		return ErrDraftClosed
	}
	payload, err := json.Marshal(struct {
		Metadata Metadata `json:"metadata"`
	}{Metadata: md})
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	req, err := d.client.newRequest(ctx, http.MethodPut, d.location, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.do(d.client.httpClient, req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if !isSuccess(resp) {
		return newAPIError(OpUpdateMetadata, resp)
	}
	var body deposition
	if err := decodeJSON(resp, &body); err != nil {
		return fmt.Errorf("%s: %w", OpUpdateMetadata, err)
	}
	d.state = newDraftState(&body)
	return nil
}

// SetVersion sets the version string and stamps today's publication date.
func (d *Draft) SetVersion(ctx context.Context, version string) error {
	return d.SetVersionAt(ctx, version, d.client.clock.Now())
}

// SetVersionAt sets the version string and the publication date. All other
// metadata fields are kept as they are.
func (d *Draft) SetVersionAt(ctx context.Context, version string, date time.Time) error {
	md, err := d.Metadata(ctx)
	if err != nil {
		return err
	}
	md["version"] = version
	md["publication_date"] = date.Format(PublicationDateLayout)
	return d.SetMetadata(ctx, md)
}

// AddFile uploads the file at path into the draft's bucket under its base
// name, replacing a file of the same name.
//
// With dedup enabled, a file whose name and checksum match an attached file
// is not uploaded and a *FilePresentError is returned instead.
func (d *Draft) AddFile(ctx context.Context, path string) (*FileDescriptor, error) {
	if d.closed {
		return nil, ErrDraftClosed
	}
	if err := d.ensureState(ctx); err != nil {
		return nil, err
	}

	fsys := d.client.fsys
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	filename := filepath.Base(path)

	contentType, err := sniffContentType(fsys, path)
	if err != nil {
		return nil, err
	}

	if d.dedup {
		if err := d.checkDuplicate(path, filename); err != nil {
			return nil, err
		}
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var body io.Reader = f
	if info.Size() == 0 {
		body = http.NoBody
	}
	target := d.state.bucket + "/" + url.PathEscape(filename)
	req, err := d.client.newRequest(ctx, http.MethodPut, target, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.do(d.client.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	if !isSuccess(resp) {
		return nil, newAPIError(OpAddFile, resp)
	}
	var fd FileDescriptor
	if err := decodeJSON(resp, &fd); err != nil {
		return nil, fmt.Errorf("%s: %w", OpAddFile, err)
	}
	d.state.upsertFile(fd)

	d.client.logger.Info("file uploaded", "draft", d.location, "filename", filename, "size", info.Size())
	return &fd, nil
}

// Publish publishes the draft. The draft cannot be used for further calls
// afterwards, including when the error wraps ErrPublishResponse.
func (d *Draft) Publish(ctx context.Context) (*PublishResult, error) {
	if d.closed {
		return nil, ErrDraftClosed
	}
	req, err := d.client.newRequest(ctx, http.MethodPost, d.location+"/actions/publish", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.do(d.client.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	if !isSuccess(resp) {
		return nil, newAPIError(OpPublish, resp)
	}
	// The record is public once the server accepts the request.
	d.closed = true

	var body deposition
	if err := decodeJSON(resp, &body); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", OpPublish, ErrPublishResponse, err)
	}
	d.state = newDraftState(&body)

	return &PublishResult{
		ID:   body.ID,
		DOI:  body.Links.DOI,
		HTML: body.Links.LatestHTML,
	}, nil
}

// Discard deletes the draft on the server. The cache is left untouched; the
// draft cannot be used for further calls afterwards.
func (d *Draft) Discard(ctx context.Context) error {
	if d.closed {
		return ErrDraftClosed
	}
	req, err := d.client.newRequest(ctx, http.MethodDelete, d.location, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.do(d.client.httpClient, req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if !isSuccess(resp) {
		return newAPIError(OpDiscard, resp)
	}
	d.closed = true
	return nil
}

// sniffContentType detects the media type of the file at path from its
// leading bytes.
func sniffContentType(fsys Filesystem, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("detecting content type of %s: %w", path, err)
	}
	return mtype.String(), nil
}
