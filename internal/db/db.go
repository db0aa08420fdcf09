package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DBPair splits SQLite access into a single-connection writer and a small
// read-only pool. In WAL mode readers never wait on the writer.
type DBPair struct {
	reader *sql.DB
	writer *sql.DB
}

func (p *DBPair) Reader() *sql.DB { return p.reader }

func (p *DBPair) Writer() *sql.DB { return p.writer }

// Close closes both pools and reports every failure.
func (p *DBPair) Close() error {
	var errs []error
	if err := p.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close reader: %w", err))
	}
	if err := p.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	return errors.Join(errs...)
}

// pool describes one side of a DBPair.
type pool struct {
	mode     string
	maxOpen  int
	maxIdle  int
	pragmas  []string
	lifetime time.Duration
}

var (
	writerPool = pool{
		mode:     "rwc",
		maxOpen:  1,
		maxIdle:  1,
		pragmas:  []string{"PRAGMA journal_mode = WAL;", "PRAGMA foreign_keys = ON;"},
		lifetime: time.Hour,
	}
	readerPool = pool{
		mode:     "ro",
		maxOpen:  4,
		maxIdle:  2,
		lifetime: time.Hour,
	}
)

func (p pool) open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=%s", path, p.mode)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(p.maxOpen)
	conn.SetMaxIdleConns(p.maxIdle)
	conn.SetConnMaxLifetime(p.lifetime)
	for _, pragma := range p.pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return conn, nil
}

// Init opens (creating if needed) the device and audit store at dbPath and
// brings its schema up to date.
func Init(dbPath string) (*DBPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// The writer goes first so mode=rwc creates the file before the
	// read-only pool tries to open it.
	writer, err := writerPool.open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	if err := migrate(writer); err != nil {
		writer.Close()
		return nil, err
	}

	reader, err := readerPool.open(dbPath)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	return &DBPair{reader: reader, writer: writer}, nil
}

// migration upgrades stores written by older releases. Each step is keyed
// by the PRAGMA user_version it produces.
type migration struct {
	version int
	name    string
	apply   func(*sql.DB) error
}

var migrations = []migration{
	{version: 1, name: "devices.product_id", apply: addColumn("devices", "product_id", "TEXT")},
	{version: 2, name: "devices.firmware_version", apply: addColumn("devices", "firmware_version", "TEXT")},
	{version: 3, name: "devices.enabled", apply: addColumn("devices", "enabled", "INTEGER NOT NULL DEFAULT 1")},
	{version: 4, name: "audit_events.device_id", apply: func(db *sql.DB) error {
		if err := addColumn("audit_events", "device_id", "TEXT")(db); err != nil {
			return err
		}
		_, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_events_device_id ON audit_events(device_id) WHERE device_id IS NOT NULL")
		return err
	}},
}

// SchemaVersion is the user_version of a fully migrated store.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not take bound parameters.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("set user_version %d: %w", m.version, err)
		}
	}
	return nil
}

// addColumn is a no-op when the column already exists, which is the case for
// any store created from the current schema.
func addColumn(table, column, ddl string) func(*sql.DB) error {
	return func(db *sql.DB) error {
		columns, err := tableColumns(db, table)
		if err != nil {
			return err
		}
		if columns[column] {
			return nil
		}
		_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl))
		return err
	}
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			defaultVal       sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
