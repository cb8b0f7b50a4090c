// Package database implements the publication ledger on SQLite.
package database

import (
	"database/sql"
	"fmt"
	"time"

	"zenodo-upload/internal/database/migrations"
	"zenodo-upload/internal/deposit"
	"zenodo-upload/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const publicationColumns = `id, operation_id, reference, file_name, file_size, checksum, version,
	sandbox, status, record_id, doi, html, draft, error, archived, archive_key, encrypted,
	started_at, finished_at`

// SQLiteDatabase implements the ledger using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the ledger at path and migrates it to the latest
// schema. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

func (s *SQLiteDatabase) CreatePublication(p *model.Publication) error {
	res, err := s.db.Exec(`INSERT INTO publications
		(operation_id, reference, file_name, file_size, checksum, version, sandbox, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OperationID, p.Reference, p.FileName, p.FileSize, p.Checksum, p.Version, p.Sandbox, p.Status, p.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating publication: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading publication id: %w", err)
	}
	p.ID = id
	return nil
}

func (s *SQLiteDatabase) FinishPublication(p *model.Publication) error {
	var finishedAt sql.NullTime
	if p.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: p.FinishedAt.UTC(), Valid: true}
	}

	res, err := s.db.Exec(`UPDATE publications SET
		status = ?, record_id = ?, doi = ?, html = ?, draft = ?, error = ?,
		archived = ?, archive_key = ?, encrypted = ?, finished_at = ?
		WHERE id = ?`,
		p.Status, p.RecordID, p.DOI, p.HTML, p.Draft, p.Error,
		p.Archived, p.ArchiveKey, p.Encrypted, finishedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing publication: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing publication: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("publication %d not found", p.ID)
	}
	return nil
}

func (s *SQLiteDatabase) ListPublications(limit int) ([]*model.Publication, error) {
	rows, err := s.db.Query(`SELECT `+publicationColumns+` FROM publications
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing publications: %w", err)
	}
	return scanPublications(rows)
}

func (s *SQLiteDatabase) FindPublicationsByChecksum(checksum string) ([]*model.Publication, error) {
	rows, err := s.db.Query(`SELECT `+publicationColumns+` FROM publications
		WHERE checksum = ? ORDER BY started_at DESC, id DESC`, checksum)
	if err != nil {
		return nil, fmt.Errorf("finding publications by checksum: %w", err)
	}
	return scanPublications(rows)
}

// FindPublication returns the publication with the given id, or nil.
func (s *SQLiteDatabase) FindPublication(id int64) (*model.Publication, error) {
	rows, err := s.db.Query(`SELECT `+publicationColumns+` FROM publications WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("finding publication: %w", err)
	}
	pubs, err := scanPublications(rows)
	if err != nil || len(pubs) == 0 {
		return nil, err
	}
	return pubs[0], nil
}

func scanPublications(rows *sql.Rows) ([]*model.Publication, error) {
	defer rows.Close()

	var pubs []*model.Publication
	for rows.Next() {
		var (
			p          model.Publication
			startedAt  time.Time
			finishedAt sql.NullTime
		)
		err := rows.Scan(
			&p.ID, &p.OperationID, &p.Reference, &p.FileName, &p.FileSize, &p.Checksum, &p.Version,
			&p.Sandbox, &p.Status, &p.RecordID, &p.DOI, &p.HTML, &p.Draft, &p.Error,
			&p.Archived, &p.ArchiveKey, &p.Encrypted,
			&startedAt, &finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning publication: %w", err)
		}
		p.StartedAt = startedAt
		if finishedAt.Valid {
			t := finishedAt.Time
			p.FinishedAt = &t
		}
		pubs = append(pubs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading publications: %w", err)
	}
	return pubs, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements deposit.Database interface
var _ deposit.Database = (*SQLiteDatabase)(nil)
