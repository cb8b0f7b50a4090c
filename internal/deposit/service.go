package deposit

import (
	"net/http"
	"time"

	"zenodo-upload/internal/zenodo"
)

// Settings controls how the service reaches Zenodo and archives files.
type Settings struct {
	// Environment overrides the deployment selected by UploadRequest.Sandbox.
	Environment *zenodo.Environment
	// HTTPClient replaces the default HTTP client for all Zenodo calls.
	HTTPClient *http.Client
	// Timeout applies to each Zenodo call made with the default HTTP client.
	Timeout time.Duration
	// EncryptArchive stores archived copies age-encrypted.
	EncryptArchive bool
}

// Service is the orchestration layer behind the CLI. It runs the Zenodo
// new-version workflow and keeps a local ledger and archive of what was
// published.
type Service struct {
	database  Database
	vault     Vault
	fsmgr     FilesystemManager
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	settings  Settings
}

// NewService creates a new Service with the provided dependencies.
// vault may be nil, which disables archiving. encryptor is only needed when
// settings.EncryptArchive is set or encrypted archives are restored.
func NewService(database Database, vault Vault, fsmgr FilesystemManager, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, settings Settings) *Service {
	return &Service{
		database:  database,
		vault:     vault,
		fsmgr:     fsmgr,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		settings:  settings,
	}
}

// newClient builds a Zenodo client for one upload request.
func (s *Service) newClient(req UploadRequest) *zenodo.Client {
	env := zenodo.EnvironmentFor(req.Sandbox)
	if s.settings.Environment != nil {
		env = *s.settings.Environment
	}

	opts := []zenodo.Option{
		zenodo.WithDedup(req.Checksum),
		zenodo.WithFilesystem(s.fsmgr),
		zenodo.WithClock(s.clock),
		zenodo.WithLogger(s.logger),
	}
	// Timeout must come first: it adjusts the default client only.
	if s.settings.Timeout > 0 {
		opts = append([]zenodo.Option{zenodo.WithTimeout(s.settings.Timeout)}, opts...)
	}
	if s.settings.HTTPClient != nil {
		opts = append(opts, zenodo.WithHTTPClient(s.settings.HTTPClient))
	}
	return zenodo.NewClient(env, req.Token, opts...)
}
