package zenodo

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Op names the remote call that produced an APIError.
type Op string

const (
	OpResolve        Op = "determining latest version from concept"
	OpCreateDraft    Op = "creating draft"
	OpFetchDraft     Op = "fetching draft"
	OpUpdateMetadata Op = "updating metadata"
	OpAddFile        Op = "adding file"
	OpPublish        Op = "publishing"
	OpDiscard        Op = "discarding draft"
)

// Sentinels matched by errors.Is against an *APIError of the corresponding Op.
var (
	ErrResolution     = errors.New("zenodo: concept resolution failed")
	ErrDraftCreation  = errors.New("zenodo: draft creation failed")
	ErrFetchDraft     = errors.New("zenodo: fetching draft failed")
	ErrMetadataUpdate = errors.New("zenodo: metadata update failed")
	ErrFileUpload     = errors.New("zenodo: file upload failed")
	ErrPublish        = errors.New("zenodo: publish failed")
	ErrDiscard        = errors.New("zenodo: discard failed")
)

// ErrDraftClosed is returned by network operations on a draft that has
// already been published or discarded.
var ErrDraftClosed = errors.New("zenodo: draft has been published or discarded")

// ErrPublishResponse is returned by Publish when the server accepted the
// request but its response could not be read. The record is public.
var ErrPublishResponse = errors.New("zenodo: published but response unreadable")

var opSentinels = map[Op]error{
	OpResolve:        ErrResolution,
	OpCreateDraft:    ErrDraftCreation,
	OpFetchDraft:     ErrFetchDraft,
	OpUpdateMetadata: ErrMetadataUpdate,
	OpAddFile:        ErrFileUpload,
	OpPublish:        ErrPublish,
	OpDiscard:        ErrDiscard,
}

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 64 << 10

// APIError is returned when the service answers a call with an unexpected status.
// Body holds the raw response text for diagnosis.
type APIError struct {
	Op         Op
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	// The landing page answers with HTML, which is noise in a message.
	if e.Op == OpResolve {
		return fmt.Sprintf("zenodo communication error %s: %s", e.Op, e.Status)
	}
	msg := fmt.Sprintf("zenodo api communication error %s: %s", e.Op, e.Status)
	if e.Body != "" {
		msg += ", " + e.Body
	}
	return msg
}

// Is reports whether target is the sentinel for e.Op.
func (e *APIError) Is(target error) bool {
	sentinel, ok := opSentinels[e.Op]
	return ok && target == sentinel
}

// newAPIError builds an APIError from resp, consuming (part of) its body.
func newAPIError(op Op, resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Body:       strings.TrimSpace(string(data)),
	}
}

// statusText returns the reason phrase of resp, e.g. "NOT FOUND".
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// FilePresentError reports that a file with the same name and content is
// already attached to the draft, so uploading it would change nothing.
type FilePresentError struct {
	Filename string
	Checksum string
}

func (e *FilePresentError) Error() string {
	return fmt.Sprintf("file %s with checksum %s is already present", e.Filename, e.Checksum)
}

// DraftDiscardedError is returned by Upload when the draft was rolled back
// because the file was unchanged. Err is the *FilePresentError that caused it.
type DraftDiscardedError struct {
	Draft string
	Err   error
}

func (e *DraftDiscardedError) Error() string {
	return fmt.Sprintf("zenodo draft version %s has been discarded", e.Draft)
}

func (e *DraftDiscardedError) Unwrap() error { return e.Err }
