package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"zenodo-upload/internal/zenodo"
)

// FakeToken is the access token FakeZenodo accepts.
const FakeToken = "sometoken"

// RecordedRequest is a request received by FakeZenodo.
type RecordedRequest struct {
	Method        string
	Path          string
	Header        http.Header
	Body          []byte
	ContentLength int64
}

// FakeFile is a file attached to a fake draft.
type FakeFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Checksum string `json:"checksum"`
}

// FakeDraft is the server-side state of a draft.
type FakeDraft struct {
	ID        int64
	Metadata  map[string]any
	Files     []FakeFile
	Published bool
	Deleted   bool
}

type fakeFailure struct {
	status int
	body   string
}

// FakeZenodo is an in-process stand-in for the deposition API. The REST API
// lives under /api and record landing pages under /record, mirroring the
// real deployment layout.
type FakeZenodo struct {
	Server *httptest.Server

	// PublicURL is the base of the latest_html links returned by publish.
	PublicURL string
	// DOIPrefix is the prefix of the DOIs returned by publish.
	DOIPrefix string

	mu         sync.Mutex
	requests   []RecordedRequest
	versions   map[int64]int64
	concepts   map[int64]int64
	drafts     map[int64]*FakeDraft
	failures   map[string]fakeFailure
	nextFileID int
}

// NewFakeZenodo starts a fake server that is closed when the test ends.
func NewFakeZenodo(t *testing.T) *FakeZenodo {
	t.Helper()
	f := &FakeZenodo{
		PublicURL: "https://sandbox.zenodo.org",
		DOIPrefix: "https://doi.org/10.5072/zenodo.",
		versions:  make(map[int64]int64),
		concepts:  make(map[int64]int64),
		drafts:    make(map[int64]*FakeDraft),
		failures:  make(map[string]fakeFailure),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

// Environment returns the environment pointing at the fake.
func (f *FakeZenodo) Environment() zenodo.Environment {
	return zenodo.Environment{APIURL: f.Server.URL + "/api", SiteURL: f.Server.URL}
}

// AddVersion makes version accept new-version requests, creating draftID.
// The draft starts with metadata {"version": "0.1.0"} and no files.
func (f *FakeZenodo) AddVersion(version, draftID int64) *FakeDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[version] = draftID
	d := &FakeDraft{ID: draftID, Metadata: map[string]any{"version": "0.1.0"}}
	f.drafts[draftID] = d
	return d
}

// AddConcept makes the landing page of concept redirect to latest.
func (f *FakeZenodo) AddConcept(concept, latest int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.concepts[concept] = latest
}

// AttachFile puts a file with the given content into a draft, as if it had
// been carried over from the previous version.
func (f *FakeZenodo) AttachFile(draftID int64, filename string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.drafts[draftID]
	f.nextFileID++
	d.Files = append(d.Files, FakeFile{
		ID:       fmt.Sprintf("fileid%d", f.nextFileID),
		Filename: filename,
		Filesize: int64(len(content)),
		Checksum: MD5Hex(content),
	})
}

// Fail makes every request with method and path answer status and body.
func (f *FakeZenodo) Fail(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+path] = fakeFailure{status: status, body: body}
}

// Draft returns the server-side state of a draft.
func (f *FakeZenodo) Draft(id int64) *FakeDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drafts[id]
}

// DraftURL returns the location of a draft.
func (f *FakeZenodo) DraftURL(id int64) string {
	return fmt.Sprintf("%s/api/deposit/depositions/%d", f.Server.URL, id)
}

// BucketURL returns the bucket of a draft.
func (f *FakeZenodo) BucketURL(id int64) string {
	return fmt.Sprintf("%s/api/files/bucket-%d", f.Server.URL, id)
}

// Requests returns a copy of all requests received so far.
func (f *FakeZenodo) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Count returns how many requests matched method and path.
func (f *FakeZenodo) Count(method, path string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Find returns the last request matching method and path.
func (f *FakeZenodo) Find(method, path string) (RecordedRequest, bool) {
	reqs := f.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method && reqs[i].Path == path {
			return reqs[i], true
		}
	}
	return RecordedRequest{}, false
}

func (f *FakeZenodo) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Header:        r.Header.Clone(),
		Body:          body,
		ContentLength: r.ContentLength,
	})

	if fail, ok := f.failures[r.Method+" "+r.URL.Path]; ok {
		w.WriteHeader(fail.status)
		io.WriteString(w, fail.body)
		return
	}

	path := r.URL.Path
	if strings.HasPrefix(path, "/record/") {
		f.handleLandingPage(w, strings.TrimPrefix(path, "/record/"))
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+FakeToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Wrong credentials", "status": 401})
		return
	}

	switch {
	case strings.HasPrefix(path, "/api/files/bucket-"):
		f.handleUpload(w, strings.TrimPrefix(path, "/api/files/bucket-"), body)
	case strings.HasPrefix(path, "/api/deposit/depositions/"):
		f.handleDeposition(w, r.Method, strings.TrimPrefix(path, "/api/deposit/depositions/"), body)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeZenodo) handleLandingPage(w http.ResponseWriter, rest string) {
	id, err := strconv.ParseInt(rest, 10, 64)
	latest, ok := f.concepts[id]
	if err != nil || !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "html page with not found error")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("%s/record/%d", f.Server.URL, latest))
	w.WriteHeader(http.StatusFound)
}

func (f *FakeZenodo) handleDeposition(w http.ResponseWriter, method, rest string, body []byte) {
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "PID does not exist."})
		return
	}
	action := strings.Join(parts[1:], "/")

	switch {
	case method == http.MethodPost && action == "actions/newversion":
		draftID, ok := f.versions[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "PID does not exist."})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":    id,
			"links": map[string]any{"latest_draft": f.DraftURL(draftID)},
		})
		return
	case method == http.MethodPost && action == "actions/publish":
		d, ok := f.liveDraft(w, id)
		if !ok {
			return
		}
		d.Published = true
		writeJSON(w, http.StatusAccepted, f.depositionJSON(d))
		return
	case action != "":
		writeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "not found"})
		return
	}

	d, ok := f.liveDraft(w, id)
	if !ok {
		return
	}
	switch method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, f.depositionJSON(d))
	case http.MethodPut:
		var payload struct {
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": err.Error()})
			return
		}
		d.Metadata = payload.Metadata
		writeJSON(w, http.StatusOK, f.depositionJSON(d))
	case http.MethodDelete:
		d.Deleted = true
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *FakeZenodo) liveDraft(w http.ResponseWriter, id int64) (*FakeDraft, bool) {
	d, ok := f.drafts[id]
	if !ok || d.Deleted {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "PID does not exist."})
		return nil, false
	}
	return d, true
}

func (f *FakeZenodo) handleUpload(w http.ResponseWriter, rest string, body []byte) {
	idPart, filename, found := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	d, ok := f.drafts[id]
	if !found || err != nil || !ok || d.Deleted {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "bucket does not exist"})
		return
	}

	file := FakeFile{Filename: filename, Filesize: int64(len(body)), Checksum: MD5Hex(body)}
	replaced := false
	for i := range d.Files {
		if d.Files[i].Filename == filename {
			file.ID = d.Files[i].ID
			d.Files[i] = file
			replaced = true
			break
		}
	}
	if !replaced {
		f.nextFileID++
		file.ID = fmt.Sprintf("fileid%d", f.nextFileID)
		d.Files = append(d.Files, file)
	}
	writeJSON(w, http.StatusCreated, file)
}

func (f *FakeZenodo) depositionJSON(d *FakeDraft) map[string]any {
	links := map[string]any{"bucket": f.BucketURL(d.ID)}
	if d.Published {
		links["doi"] = fmt.Sprintf("%s%d", f.DOIPrefix, d.ID)
		links["latest_html"] = fmt.Sprintf("%s/record/%d", f.PublicURL, d.ID)
	}
	files := d.Files
	if files == nil {
		files = []FakeFile{}
	}
	return map[string]any{
		"id":       d.ID,
		"links":    links,
		"metadata": d.Metadata,
		"files":    files,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
