package deposit_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"zenodo-upload/internal/deposit"
	"zenodo-upload/internal/model"
	"zenodo-upload/internal/testutil"
	"zenodo-upload/internal/vault"
	"zenodo-upload/internal/zenodo"
)

const (
	testVersion int64 = 1234567
	testDraft   int64 = 7654321
	testConcept int64 = 1000
	testFile          = "/data/archive.zip"
	testToken         = testutil.FakeToken
)

// testEnv bundles a service with the fakes behind it.
type testEnv struct {
	svc   *deposit.Service
	fake  *testutil.FakeZenodo
	fsys  *testutil.MockFilesystemManager
	db    deposit.Database
	vault *vault.MemoryVault
	enc   deposit.Encryptor
	clock *testutil.StubClock
}

type envOptions struct {
	noVault bool
	encrypt bool
	noEnc   bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	fake := testutil.NewFakeZenodo(t)
	fake.AddVersion(testVersion, testDraft)
	fsys := testutil.NewMockFilesystemManager()
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()

	e := &testEnv{fake: fake, fsys: fsys, db: db, clock: clock}

	var v deposit.Vault
	if !opts.noVault {
		e.vault = testutil.NewTestVault()
		v = e.vault
	}
	if !opts.noEnc {
		e.enc = testutil.NewTestEncryptor()
	}

	env := fake.Environment()
	e.svc = deposit.NewService(db, v, fsys, e.enc, deposit.NewNopLogger(), clock, testutil.NewStubIDGenerator(), deposit.Settings{
		Environment:    &env,
		EncryptArchive: opts.encrypt,
	})
	return e
}

func uploadRequest() deposit.UploadRequest {
	return deposit.UploadRequest{
		Reference: testVersion,
		Path:      testFile,
		Version:   "1.2.3",
		Token:     testToken,
		Sandbox:   true,
		Checksum:  true,
	}
}

func TestService_Upload_Published(t *testing.T) {
	e := newTestEnv(t, envOptions{noVault: true})
	content := []byte("release payload")
	e.fsys.AddFile(testFile, content)

	pub, err := e.svc.Upload(context.Background(), uploadRequest())
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if pub.Status != model.StatusPublished {
		t.Errorf("Status = %q, want %q", pub.Status, model.StatusPublished)
	}
	if pub.RecordID != testDraft {
		t.Errorf("RecordID = %d, want %d", pub.RecordID, testDraft)
	}
	if pub.DOI != "https://doi.org/10.5072/zenodo.7654321" {
		t.Errorf("DOI = %q", pub.DOI)
	}
	if pub.HTML != "https://sandbox.zenodo.org/record/7654321" {
		t.Errorf("HTML = %q", pub.HTML)
	}
	if pub.Archived {
		t.Error("Archived = true without a vault")
	}

	history, err := e.svc.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	got := history[0]
	if got.OperationID != "op-1" {
		t.Errorf("OperationID = %q, want op-1", got.OperationID)
	}
	if got.Status != model.StatusPublished || got.DOI != pub.DOI || got.RecordID != testDraft {
		t.Errorf("ledger row = %+v", got)
	}
	if got.FileName != "archive.zip" || got.FileSize != int64(len(content)) {
		t.Errorf("file = %q (%d bytes)", got.FileName, got.FileSize)
	}
	if got.Checksum != testutil.MD5Hex(content) {
		t.Errorf("Checksum = %q, want %q", got.Checksum, testutil.MD5Hex(content))
	}
	if got.Version != "1.2.3" || !got.Sandbox || got.Reference != testVersion {
		t.Errorf("request fields = %q, %v, %d", got.Version, got.Sandbox, got.Reference)
	}
	if !got.StartedAt.Equal(e.clock.Now()) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, e.clock.Now())
	}
	if !got.Finished() {
		t.Error("Finished() = false for a published row")
	}

	if !e.fake.Draft(testDraft).Published {
		t.Error("draft was not published")
	}
}

func TestService_Upload_ConceptReference(t *testing.T) {
	e := newTestEnv(t, envOptions{noVault: true})
	e.fake.AddConcept(testConcept, testVersion)
	e.fsys.AddFile(testFile, []byte("data"))

	req := uploadRequest()
	req.Reference = testConcept
	pub, err := e.svc.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if pub.Reference != testConcept || pub.RecordID != testDraft {
		t.Errorf("Reference = %d, RecordID = %d", pub.Reference, pub.RecordID)
	}
}

func TestService_Upload_UnchangedFile(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	content := []byte("same bytes")
	e.fake.AttachFile(testDraft, "archive.zip", content)
	e.fsys.AddFile(testFile, content)

	pub, err := e.svc.Upload(context.Background(), uploadRequest())
	if pub != nil {
		t.Errorf("Upload() publication = %+v, want nil", pub)
	}
	var discarded *zenodo.DraftDiscardedError
	if !errors.As(err, &discarded) {
		t.Fatalf("Upload() error = %v, want DraftDiscardedError", err)
	}

	history, err := e.svc.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	got := history[0]
	if got.Status != model.StatusDiscarded {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusDiscarded)
	}
	if want := e.fake.DraftURL(testDraft); got.Draft != want {
		t.Errorf("Draft = %s, want %s", got.Draft, want)
	}
	if got.Error == "" || got.DOI != "" || got.Archived {
		t.Errorf("ledger row = %+v", got)
	}
	if e.vault.Len() != 0 {
		t.Errorf("vault holds %d objects, want 0", e.vault.Len())
	}
}

func TestService_Upload_ChecksumDisabledPublishesUnchangedFile(t *testing.T) {
	e := newTestEnv(t, envOptions{noVault: true})
	content := []byte("same bytes")
	e.fake.AttachFile(testDraft, "archive.zip", content)
	e.fsys.AddFile(testFile, content)

	req := uploadRequest()
	req.Checksum = false
	pub, err := e.svc.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if pub.Status != model.StatusPublished {
		t.Errorf("Status = %q, want %q", pub.Status, model.StatusPublished)
	}
}

func TestService_Upload_Failed(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	e.fsys.AddFile(testFile, []byte("data"))
	e.fake.Fail(http.MethodPost, "/api/deposit/depositions/1234567/actions/newversion", http.StatusInternalServerError, `{"status":500,"message":"boom"}`)

	_, err := e.svc.Upload(context.Background(), uploadRequest())
	if err == nil {
		t.Fatal("Upload() expected error")
	}
	var apiErr *zenodo.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("Upload() error = %v, want *zenodo.APIError", err)
	}

	history, _ := e.svc.GetHistory(10)
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].Status != model.StatusFailed {
		t.Errorf("Status = %q, want %q", history[0].Status, model.StatusFailed)
	}
	if history[0].Error != err.Error() {
		t.Errorf("Error = %q, want %q", history[0].Error, err.Error())
	}
}

func TestService_Upload_UnreadablePublishResponse(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	e.fsys.AddFile(testFile, []byte("data"))
	e.fake.Fail(http.MethodPost, "/api/deposit/depositions/7654321/actions/publish", http.StatusAccepted, "<html>")

	pub, err := e.svc.Upload(context.Background(), uploadRequest())
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if pub.Status != model.StatusPublished || pub.DOI != "" {
		t.Errorf("publication = %+v", pub)
	}

	history, _ := e.svc.GetHistory(10)
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].Status != model.StatusPublished {
		t.Errorf("Status = %q, want %q", history[0].Status, model.StatusPublished)
	}
	if !strings.Contains(history[0].Error, "response unreadable") {
		t.Errorf("Error = %q", history[0].Error)
	}
	if n := e.fake.Count(http.MethodDelete, "/api/deposit/depositions/7654321"); n != 0 {
		t.Errorf("discard calls = %d, want 0", n)
	}
}

func TestService_Upload_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*deposit.UploadRequest)
	}{
		{"no token", func(r *deposit.UploadRequest) { r.Token = "" }},
		{"no version", func(r *deposit.UploadRequest) { r.Version = "" }},
		{"missing file", func(r *deposit.UploadRequest) { r.Path = "/data/missing.zip" }},
		{"directory", func(r *deposit.UploadRequest) { r.Path = "/data" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, envOptions{})
			e.fsys.AddFile(testFile, []byte("data"))
			e.fsys.AddDirectory("/data")

			req := uploadRequest()
			tt.mutate(&req)
			if _, err := e.svc.Upload(context.Background(), req); err == nil {
				t.Fatal("Upload() expected error")
			}

			if len(e.fake.Requests()) != 0 {
				t.Errorf("Zenodo received %d requests, want 0", len(e.fake.Requests()))
			}
			history, _ := e.svc.GetHistory(10)
			if len(history) != 0 {
				t.Errorf("len(history) = %d, want 0", len(history))
			}
		})
	}
}

func TestService_Upload_BadToken(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	e.fsys.AddFile(testFile, []byte("data"))

	req := uploadRequest()
	req.Token = "wrong"
	_, err := e.svc.Upload(context.Background(), req)
	var apiErr *zenodo.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Upload() error = %v, want 401 APIError", err)
	}
	if !errors.Is(err, zenodo.ErrDraftCreation) {
		t.Errorf("Upload() error = %v, want ErrDraftCreation", err)
	}
}

func TestService_GetHistory(t *testing.T) {
	e := newTestEnv(t, envOptions{noVault: true})
	e.fsys.AddFile(testFile, []byte("v1"))

	req := uploadRequest()
	req.Checksum = false
	for _, v := range []string{"1.0", "1.1", "1.2"} {
		req.Version = v
		if _, err := e.svc.Upload(context.Background(), req); err != nil {
			t.Fatalf("Upload(%s) error = %v", v, err)
		}
		e.clock.Advance(time.Hour)
	}

	history, err := e.svc.GetHistory(2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Version != "1.2" || history[1].Version != "1.1" {
		t.Errorf("history versions = %q, %q; want 1.2, 1.1", history[0].Version, history[1].Version)
	}
}

func encrypted(t *testing.T, enc deposit.Encryptor, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := enc.Encrypt(bytes.NewReader(content), &buf); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	return buf.Bytes()
}
