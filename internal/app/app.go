package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"zenodo-upload/internal/config"
	"zenodo-upload/internal/database"
	"zenodo-upload/internal/deposit"
	"zenodo-upload/internal/encryption"
	"zenodo-upload/internal/fs"
	"zenodo-upload/internal/model"
	"zenodo-upload/internal/vault"
)

// Options adjusts how a ZenodoApp reports progress.
type Options struct {
	// Parameters is recorded with the operation in the log.
	Parameters string
	// Verbose copies every log record to Stderr, not only warnings.
	Verbose bool
	// Stderr receives console log output; os.Stderr when nil.
	Stderr io.Writer
}

// ZenodoApp is the application layer between the CLI and deposit.Service.
// It constructs all dependencies from config, applies the precedence rules
// for command-line arguments, and releases resources on Close.
type ZenodoApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	encryptor deposit.Encryptor
	service   *deposit.Service
	op        *Operation
	logger    *slogAdapter
	logFile   *os.File
}

// NewZenodoApp creates a fully wired ZenodoApp from the given config.
// operation names the CLI command being run (e.g. "Upload", "History").
// The caller must call Close when done.
func NewZenodoApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*ZenodoApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var v deposit.Vault
	vcfg, err := cfg.ArchiveVault()
	if err != nil {
		return nil, err
	}
	if vcfg != nil {
		v, err = vault.NewVaultFromConfig(ctx, *vcfg)
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
		if err := v.ValidateSetup(); err != nil {
			return nil, fmt.Errorf("archive vault %q: %w", vcfg.Name, err)
		}
	}

	// Encryption keys are only required when archives are encrypted.
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		if cfg.Archive.Encrypt {
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
		enc = nil
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	op := NewOperation(operation, opts.Parameters, time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, opts.Verbose, stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}
	adapter.Debug("operation started", "operation", op.Name, "parameters", op.Parameters)

	svc := deposit.NewService(db, v, fs.NewOSFilesystemManager(), enc, adapter, deposit.RealClock{}, deposit.UUIDGenerator{}, deposit.Settings{
		Environment:    cfg.Zenodo.Environment(),
		Timeout:        cfg.Zenodo.Timeout(),
		EncryptArchive: cfg.Archive.Encrypt,
	})

	return &ZenodoApp{
		cfg:       cfg,
		db:        db,
		encryptor: enc,
		service:   svc,
		op:        op,
		logger:    adapter,
		logFile:   logFile,
	}, nil
}

// UploadArgs are the raw command-line inputs of an upload. Nil flags fall
// back to the config file.
type UploadArgs struct {
	DepositionID string
	Path         string
	Version      string
	Token        string
	Sandbox      *bool
	Checksum     *bool
}

// Upload publishes a new version of the deposition.
func (a *ZenodoApp) Upload(ctx context.Context, args UploadArgs) (*model.Publication, error) {
	pub, err := a.upload(ctx, args)
	a.op.Fail(err)
	return pub, err
}

func (a *ZenodoApp) upload(ctx context.Context, args UploadArgs) (*model.Publication, error) {
	ref, err := ParseDepositionID(args.DepositionID)
	if err != nil {
		return nil, err
	}

	token := ResolveToken(args.Token, a.cfg)
	if token == "" {
		return nil, fmt.Errorf("no access token: pass ACCESS_TOKEN or set %s", EnvAccessToken)
	}

	if a.cfg.Archive.Encrypt && (a.encryptor == nil || !a.encryptor.IsConfigured()) {
		return nil, fmt.Errorf("archive encryption is enabled but no keys exist, run `zenodo-upload keys init`")
	}

	sandbox := a.cfg.Zenodo.Sandbox
	if args.Sandbox != nil {
		sandbox = *args.Sandbox
	}
	checksum := a.cfg.Zenodo.ChecksumEnabled()
	if args.Checksum != nil {
		checksum = *args.Checksum
	}

	return a.service.Upload(ctx, deposit.UploadRequest{
		Reference: ref,
		Path:      args.Path,
		Version:   args.Version,
		Token:     token,
		Sandbox:   sandbox,
		Checksum:  checksum,
	})
}

// ParseDepositionID parses a record or concept id given on the command line.
func ParseDepositionID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("deposition id must be a positive integer, got %q", raw)
	}
	return id, nil
}

// GetHistory returns the most recent publication attempts.
func (a *ZenodoApp) GetHistory(limit int) ([]*model.Publication, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	return a.service.GetHistory(limit)
}

// ArchiveEncrypted reports whether the archived copy of the file with the
// given checksum is encrypted, so the caller knows to ask for a passphrase.
func (a *ZenodoApp) ArchiveEncrypted(checksum string) (bool, error) {
	pub, err := a.service.FindArchive(checksum)
	if err != nil {
		return false, err
	}
	return pub.Encrypted, nil
}

// RestoreArchive writes the archived copy of the file with the given checksum
// to destPath. passphrase is only used for encrypted copies.
func (a *ZenodoApp) RestoreArchive(checksum, destPath, passphrase string) (string, error) {
	encrypted, err := a.ArchiveEncrypted(checksum)
	if err != nil {
		a.op.Fail(err)
		return "", err
	}

	var dc deposit.DecryptionContext
	if encrypted {
		if a.encryptor == nil {
			return "", fmt.Errorf("archive is encrypted but encryption is not configured")
		}
		dc, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			a.op.Fail(err)
			return "", fmt.Errorf("unlocking archive key: %w", err)
		}
	}

	out, err := a.service.RestoreArchive(checksum, destPath, dc)
	a.op.Fail(err)
	return out, err
}

// KeysConfigured reports whether an archive key pair exists.
func (a *ZenodoApp) KeysConfigured() bool {
	return a.encryptor != nil && a.encryptor.IsConfigured()
}

// SetupKeys generates the archive key pair, sealing the private key with
// passphrase.
func (a *ZenodoApp) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is not configured")
	}
	err := a.encryptor.Setup(passphrase)
	a.op.Fail(err)
	if err == nil {
		a.logger.Info("archive keys created", "public_key", a.cfg.Encryption.PublicKeyPath)
	}
	return err
}

// Close logs the outcome of the operation and closes all resources.
func (a *ZenodoApp) Close() error {
	a.logger.Debug("operation finished",
		"operation", a.op.Name,
		"status", a.op.Status,
		"elapsed", a.op.Elapsed(time.Now()).Truncate(time.Millisecond),
	)

	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
