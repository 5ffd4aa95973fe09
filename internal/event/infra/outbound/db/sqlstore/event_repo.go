package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davicafu/doorbell/internal/event/domain"
	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
)

// EventRepoSQL implementa EventStore sobre database/sql (SQLite o Postgres).
type EventRepoSQL struct {
	db      *sql.DB
	dialect Dialect
	ids     *domain.IdentityGenerator
}

var _ domain.EventStore = (*EventRepoSQL)(nil)

func NewEventRepoSQL(db *sql.DB, dialect Dialect, ids *domain.IdentityGenerator) *EventRepoSQL {
	return &EventRepoSQL{db: db, dialect: dialect, ids: ids}
}

const metaColumns = `id, kind, source_label, has_payload, content_type, filename, size, blob_key, created_at`

// ------------------ Métodos ------------------

// Commit inserta el evento completo dentro de una transacción.
func (r *EventRepoSQL) Commit(ctx context.Context, d domain.Draft) (evt *domain.Event, err error) {
	if err := d.Validate(0); err != nil {
		return nil, err
	}

	id, ts, err := r.ids.Next()
	if err != nil {
		return nil, err
	}
	evt = d.Seal(id, ts)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var (
		hasPayload                     int
		contentType, filename, blobKey string
		size                           int64
		data                           []byte
	)
	if p := evt.Payload; p != nil {
		hasPayload = 1
		contentType, filename, blobKey, size, data = p.ContentType, p.Filename, p.BlobKey, p.Size, p.Data
	}

	_, err = tx.ExecContext(ctx, r.dialect.rebind(
		`INSERT INTO events (`+metaColumns+`, data) VALUES (?,?,?,?,?,?,?,?,?,?)`),
		evt.ID, string(evt.Kind), evt.SourceLabel, hasPayload, contentType, filename, size, blobKey, ts.UnixMilli(), data,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event %s: %w", id, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return evt, nil
}

func (r *EventRepoSQL) Get(ctx context.Context, id string) (*domain.Event, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(
		`SELECT `+metaColumns+`, data FROM events WHERE id = ?`), id)

	var data []byte
	evt, err := scanEvent(row, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	if evt.Payload != nil {
		evt.Payload.Data = data
	}
	return evt, nil
}

func (r *EventRepoSQL) List(ctx context.Context, page sharedQuery.CursorPagination) ([]domain.EventMeta, error) {
	page = page.Normalize()

	var (
		conds []string
		args  []interface{}
	)
	if page.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, page.Kind)
	}
	if !page.BeforeTime.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, page.BeforeTime.UnixMilli())
	}
	if page.BeforeID != "" {
		var cursor int64
		err := r.db.QueryRowContext(ctx, r.dialect.rebind(`SELECT created_at FROM events WHERE id = ?`), page.BeforeID).Scan(&cursor)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.ErrEventNotFound
			}
			return nil, err
		}
		conds = append(conds, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, cursor, cursor, page.BeforeID)
	}

	query := `SELECT ` + metaColumns + ` FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, page.Limit)

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := make([]domain.EventMeta, 0, page.Limit)
	for rows.Next() {
		evt, err := scanEvent(rows, nil)
		if err != nil {
			return nil, err
		}
		metas = append(metas, evt.Meta())
	}
	return metas, rows.Err()
}

// DeleteAll borra todos los eventos (purga administrativa).
func (r *EventRepoSQL) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ------------------ Helpers ------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEvent lee las columnas de metadatos y, si data no es nil, también los bytes.
func scanEvent(s scanner, data *[]byte) (*domain.Event, error) {
	var (
		evt        domain.Event
		kind       string
		hasPayload int
		p          domain.Payload
		createdAt  int64
	)
	dest := []interface{}{&evt.ID, &kind, &evt.SourceLabel, &hasPayload, &p.ContentType, &p.Filename, &p.Size, &p.BlobKey, &createdAt}
	if data != nil {
		dest = append(dest, data)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	evt.Kind = domain.Kind(kind)
	evt.CreatedAt = time.UnixMilli(createdAt).UTC()
	if hasPayload != 0 {
		evt.Payload = &p
	}
	return &evt, nil
}
