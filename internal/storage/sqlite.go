package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kalambet/ticketkb/internal/retrieval"
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	bootstrap: `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	vectorValue:   func(v []float32) any { return retrieval.EncodeFloat32s(v) },
	newVectorDest: func() vectorDest { return &blobVector{} },
}

// OpenSQLite opens (or creates) ticketkb.db in dataDir and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func OpenSQLite(dataDir string) (*SQLStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ticketkb.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection serializes writers, which also makes the publish
	// transaction's conditional delete race-free.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s, err := newSQLStore(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// blobVector decodes the little-endian float32 BLOB used by SQLite.
type blobVector struct {
	v []float32
}

func (b *blobVector) Scan(src any) error {
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("embedding: unexpected column type %T", src)
	}
	v, err := retrieval.DecodeFloat32s(raw)
	if err != nil {
		return err
	}
	b.v = v
	return nil
}

func (b *blobVector) Slice() []float32 { return b.v }
