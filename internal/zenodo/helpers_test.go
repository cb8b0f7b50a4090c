package zenodo_test

import (
	"strconv"
	"testing"

	"zenodo-upload/internal/testutil"
	"zenodo-upload/internal/zenodo"
)

const (
	concept  = int64(1000)
	version  = int64(1234567)
	draftID  = int64(7654321)
	filePath = "/data/archive.zip"
)

// newTestClient returns a client bound to fake, reading files from fsys.
func newTestClient(t *testing.T, fake *testutil.FakeZenodo, fsys *testutil.MockFilesystemManager, opts ...zenodo.Option) *zenodo.Client {
	t.Helper()
	base := []zenodo.Option{
		zenodo.WithFilesystem(fsys),
		zenodo.WithClock(testutil.FixedClock()),
		zenodo.WithHTTPClient(fake.Server.Client()),
	}
	return zenodo.NewClient(fake.Environment(), testutil.FakeToken, append(base, opts...)...)
}

func draftPath(id int64) string {
	return "/api/deposit/depositions/" + itoa(id)
}

func newVersionPath(id int64) string {
	return draftPath(id) + "/actions/newversion"
}

func uploadPath(id int64, filename string) string {
	return "/api/files/bucket-" + itoa(id) + "/" + filename
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
