package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/internal/live"
	"github.com/davicafu/doorbell/shared/utils"
)

const createEventsLog = `
CREATE TABLE IF NOT EXISTS doorbell_events_log (
	id            String,
	kind          LowCardinality(String),
	notification  LowCardinality(String),
	source_label  String,
	content_type  String,
	size          Int64,
	created_at    DateTime64(3, 'UTC'),
	logged_at     DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (created_at, id)`

const insertEventsLog = "INSERT INTO doorbell_events_log (id, kind, notification, source_label, content_type, size, created_at, logged_at)"

// EventLog es un suscriptor del servidor que deja cada notificación en ClickHouse
// para analítica. Sólo guarda metadatos, nunca los bytes del payload.
type EventLog struct {
	db  *sql.DB
	now func() time.Time
	log *zap.Logger
}

var _ live.Transport = (*EventLog)(nil)

// OpenDB abre y comprueba la conexión a ClickHouse.
func OpenDB(addr, dbName string) (*sql.DB, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	return conn, nil
}

func NewEventLog(db *sql.DB, log *zap.Logger) *EventLog {
	return &EventLog{db: db, now: time.Now, log: log}
}

func (l *EventLog) InitSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createEventsLog); err != nil {
		return fmt.Errorf("create doorbell_events_log: %w", err)
	}
	return nil
}

func (l *EventLog) Send(ctx context.Context, n domain.Notification) error {
	return utils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		return l.insert(ctx, n)
	})
}

// insert usa tx + prepare: es como el driver std de ClickHouse agrupa un INSERT.
func (l *EventLog) insert(ctx context.Context, n domain.Notification) (err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertEventsLog)
	if err != nil {
		return err
	}
	defer stmt.Close()

	m := n.Event
	if _, err = stmt.ExecContext(ctx,
		m.ID,
		string(m.Kind),
		n.Type,
		m.SourceLabel,
		m.ContentType,
		m.Size,
		m.CreatedAt,
		l.now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to exec statement for event %s: %w", m.ID, err)
	}

	return tx.Commit()
}

func (l *EventLog) Close() error {
	return l.db.Close()
}
