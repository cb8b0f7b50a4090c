package zenodo_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zenodo-upload/internal/testutil"
	"zenodo-upload/internal/zenodo"
)

func TestUpload(t *testing.T) {
	fake := testutil.NewFakeZenodo(t)
	fake.AddVersion(version, draftID).Metadata["title"] = "Measurements"
	fsys := testutil.NewMockFilesystemManager()
	fsys.AddFile(filePath, []byte("new release"))
	client := newTestClient(t, fake, fsys, zenodo.WithDedup(true))

	result, err := zenodo.Upload(context.Background(), client, version, filePath, "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, &zenodo.PublishResult{
		ID:   draftID,
		DOI:  "https://doi.org/10.5072/zenodo.7654321",
		HTML: "https://sandbox.zenodo.org/record/7654321",
	}, result)

	d := fake.Draft(draftID)
	assert.True(t, d.Published)
	assert.Equal(t, "1.2.3", d.Metadata["version"])
	assert.Equal(t, "2024-01-15", d.Metadata["publication_date"])
	assert.Equal(t, "Measurements", d.Metadata["title"])
	require.Len(t, d.Files, 1)
	assert.Equal(t, testutil.MD5Hex([]byte("new release")), d.Files[0].Checksum)
}

func TestUpload_CallOrder(t *testing.T) {
	fake := testutil.NewFakeZenodo(t)
	fake.AddConcept(concept, version)
	fake.AddVersion(version, draftID)
	fsys := testutil.NewMockFilesystemManager()
	fsys.AddFile(filePath, []byte("data"))
	client := newTestClient(t, fake, fsys)

	_, err := zenodo.Upload(context.Background(), client, concept, filePath, "2")
	require.NoError(t, err)

	var calls []string
	for _, r := range fake.Requests() {
		calls = append(calls, r.Method+" "+r.Path)
	}
	assert.Equal(t, []string{
		"POST " + newVersionPath(concept),
		"GET /record/" + itoa(concept),
		"POST " + newVersionPath(version),
		"GET " + draftPath(draftID),
		"PUT " + uploadPath(draftID, "archive.zip"),
		"PUT " + draftPath(draftID),
		"POST " + draftPath(draftID) + "/actions/publish",
	}, calls)
}

func TestUpload_UnchangedFileDiscardsDraft(t *testing.T) {
	fake := testutil.NewFakeZenodo(t)
	fake.AddVersion(version, draftID)
	content := []byte("release 1 payload")
	fake.AttachFile(draftID, "archive.zip", content)
	fsys := testutil.NewMockFilesystemManager()
	fsys.AddFile(filePath, content)
	client := newTestClient(t, fake, fsys, zenodo.WithDedup(true))

	result, err := zenodo.Upload(context.Background(), client, version, filePath, "1.2.3")
	require.Error(t, err)
	assert.Nil(t, result)

	var discarded *zenodo.DraftDiscardedError
	require.True(t, errors.As(err, &discarded))
	assert.Equal(t, fake.DraftURL(draftID), discarded.Draft)
	assert.Equal(t, "zenodo draft version "+fake.DraftURL(draftID)+" has been discarded", err.Error())

	var present *zenodo.FilePresentError
	assert.ErrorAs(t, err, &present)

	assert.Equal(t, 1, fake.Count(http.MethodDelete, draftPath(draftID)))
	assert.Zero(t, fake.Count(http.MethodPut, uploadPath(draftID, "archive.zip")))
	assert.Zero(t, fake.Count(http.MethodPut, draftPath(draftID)))
	assert.Zero(t, fake.Count(http.MethodPost, draftPath(draftID)+"/actions/publish"))
	assert.True(t, fake.Draft(draftID).Deleted)
}

func TestUpload_DiscardFailure(t *testing.T) {
	fake := testutil.NewFakeZenodo(t)
	fake.AddVersion(version, draftID)
	content := []byte("release 1 payload")
	fake.AttachFile(draftID, "archive.zip", content)
	fake.Fail(http.MethodDelete, draftPath(draftID), http.StatusForbidden, `{"message":"forbidden"}`)
	fsys := testutil.NewMockFilesystemManager()
	fsys.AddFile(filePath, content)
	client := newTestClient(t, fake, fsys, zenodo.WithDedup(true))

	_, err := zenodo.Upload(context.Background(), client, version, filePath, "1.2.3")
	require.Error(t, err)

	assert.ErrorIs(t, err, zenodo.ErrDiscard)
	var discarded *zenodo.DraftDiscardedError
	assert.False(t, errors.As(err, &discarded))
}

func TestUpload_FailuresPropagate(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		sentinel error
	}{
		{"create", http.MethodPost, newVersionPath(version), zenodo.ErrDraftCreation},
		{"fetch", http.MethodGet, draftPath(draftID), zenodo.ErrFetchDraft},
		{"upload", http.MethodPut, uploadPath(draftID, "archive.zip"), zenodo.ErrFileUpload},
		{"version", http.MethodPut, draftPath(draftID), zenodo.ErrMetadataUpdate},
		{"publish", http.MethodPost, draftPath(draftID) + "/actions/publish", zenodo.ErrPublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeZenodo(t)
			fake.AddVersion(version, draftID)
			fake.Fail(tt.method, tt.path, http.StatusBadRequest, `{"status":400}`)
			fsys := testutil.NewMockFilesystemManager()
			fsys.AddFile(filePath, []byte("data"))
			client := newTestClient(t, fake, fsys, zenodo.WithDedup(true))

			_, err := zenodo.Upload(context.Background(), client, version, filePath, "1")
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Zero(t, fake.Count(http.MethodDelete, draftPath(draftID)), "only dedup discards")
		})
	}
}
