package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func migratedDB(t *testing.T) *sql.DB {
	t.Helper()
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	return db
}

func TestReadStatus(t *testing.T) {
	t.Run("fresh ledger", func(t *testing.T) {
		st, err := ReadStatus(openTestDB(t))
		if !errors.Is(err, ErrNoSchema) {
			t.Fatalf("ReadStatus() error = %v, want ErrNoSchema", err)
		}
		if st.Latest != 2 {
			t.Errorf("Latest = %d, want 2", st.Latest)
		}
	})

	t.Run("migrated ledger", func(t *testing.T) {
		st, err := ReadStatus(migratedDB(t))
		if err != nil {
			t.Fatalf("ReadStatus() error = %v", err)
		}
		if st != (Status{Current: 2, Latest: 2}) {
			t.Errorf("ReadStatus() = %+v", st)
		}
		if st.Pending() != 0 {
			t.Errorf("Pending() = %d, want 0", st.Pending())
		}
	})
}

func TestStatus_Pending(t *testing.T) {
	tests := []struct {
		st   Status
		want uint
	}{
		{Status{Current: 0, Latest: 2}, 2},
		{Status{Current: 1, Latest: 2}, 1},
		{Status{Current: 3, Latest: 2}, 0},
	}
	for _, tt := range tests {
		if got := tt.st.Pending(); got != tt.want {
			t.Errorf("%+v.Pending() = %d, want %d", tt.st, got, tt.want)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*sql.DB)
		wantErr bool
	}{
		{"fresh ledger", func(*sql.DB) {}, true},
		{"migrated", func(db *sql.DB) { MigrateUp(db) }, false},
		{"migrated twice", func(db *sql.DB) { MigrateUp(db); MigrateUp(db) }, false},
		{"dirty", func(db *sql.DB) {
			MigrateUp(db)
			db.Exec("UPDATE schema_migrations SET dirty = 1")
		}, true},
		{"ahead of binary", func(db *sql.DB) {
			MigrateUp(db)
			db.Exec("UPDATE schema_migrations SET version = 99")
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			tt.setup(db)
			if err := CheckDBMigrationStatus(db); (err != nil) != tt.wantErr {
				t.Errorf("CheckDBMigrationStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchema(t *testing.T) {
	db := migratedDB(t)

	rows, err := db.Query("SELECT name FROM pragma_table_info('publications')")
	if err != nil {
		t.Fatalf("reading table info: %v", err)
	}
	defer rows.Close()

	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scanning column: %v", err)
		}
		columns[name] = true
	}
	for _, col := range []string{"operation_id", "checksum", "doi", "draft", "archived", "archive_key", "encrypted", "finished_at"} {
		if !columns[col] {
			t.Errorf("column %s missing", col)
		}
	}

	insert := `INSERT INTO publications
		(operation_id, reference, file_name, file_size, checksum, version, status, started_at)
		VALUES ('op-1', 1, 'a.zip', 1, 'abc', '1.0', 'running', datetime('now'))`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first insert error = %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("duplicate operation_id was accepted")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
