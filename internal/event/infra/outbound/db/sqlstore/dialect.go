package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"
)

// Dialect fija el driver, los placeholders y los tipos de columna.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(s)) {
	case SQLite:
		return SQLite, nil
	case Postgres, "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unknown sql dialect %q", s)
	}
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// rebind traduce los placeholders '?' a '$n' en Postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() []string {
	idType, blobType := "TEXT", "BLOB"
	if d == Postgres {
		// COLLATE "C" mantiene el orden byte a byte de los UUIDv7
		idType, blobType = `TEXT COLLATE "C"`, "BYTEA"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS events (
			id           ` + idType + ` PRIMARY KEY,
			kind         TEXT NOT NULL,
			source_label TEXT NOT NULL DEFAULT '',
			has_payload  INTEGER NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			filename     TEXT NOT NULL DEFAULT '',
			size         BIGINT NOT NULL DEFAULT 0,
			blob_key     TEXT NOT NULL DEFAULT '',
			data         ` + blobType + `,
			created_at   BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created ON events (created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind_created ON events (kind, created_at DESC, id DESC)`,
	}
}

// Open abre y verifica la conexión. SQLite se limita a una conexión: el
// archivo admite un único escritor.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d, err)
	}
	if d == SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d, err)
	}
	return db, nil
}

// InitSchema crea la tabla y los índices si no existen.
func InitSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize %s schema: %w", d, err)
		}
	}
	return nil
}
