package todo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fluxorio/todo/pkg/core/failfast"
	"github.com/fluxorio/todo/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TableName is the table holding to-do items
const TableName = "TodoItems"

const tracerName = "github.com/fluxorio/todo/pkg/todo"

// ErrSessionReleased is returned when a released Session is used
var ErrSessionReleased = errors.New("todo: session already released")

// Store binds Item to the TodoItems table
type Store struct {
	pool    *db.Pool
	dialect db.Dialect

	schemaSQL string
	listSQL   string
	insertSQL string
}

// NewStore creates a store on pool. Call EnsureSchema before first use.
func NewStore(pool *db.Pool) *Store {
	failfast.NotNil(pool, "pool")
	d := pool.Dialect()
	q := d.Quote

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", q(TableName), q("Title"), q("IsComplete"))
	if d.SupportsReturning() {
		insertSQL += " RETURNING " + q("Id")
	}

	return &Store{
		pool:      pool,
		dialect:   d,
		schemaSQL: schemaSQL(d),
		listSQL:   fmt.Sprintf("SELECT %s, %s, %s FROM %s ORDER BY %s", q("Id"), q("Title"), q("IsComplete"), q(TableName), q("Id")),
		insertSQL: d.Rebind(insertSQL),
	}
}

func schemaSQL(d db.Dialect) string {
	q := d.Quote
	var id, isComplete string
	switch d {
	case db.Postgres:
		id = q("Id") + " BIGSERIAL PRIMARY KEY"
		isComplete = q("IsComplete") + " BOOLEAN NOT NULL DEFAULT FALSE"
	case db.MySQL:
		id = q("Id") + " BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
		isComplete = q("IsComplete") + " BOOLEAN NOT NULL DEFAULT FALSE"
	default:
		// AUTOINCREMENT keeps SQLite from reusing the ids of deleted rows
		id = q("Id") + " INTEGER PRIMARY KEY AUTOINCREMENT"
		isComplete = q("IsComplete") + " INTEGER NOT NULL DEFAULT 0"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, %s TEXT NULL, %s)", q(TableName), id, q("Title"), isComplete)
}

// EnsureSchema creates the table when it does not exist yet
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.schemaSQL); err != nil {
		return fmt.Errorf("create table %s: %w", TableName, err)
	}
	return nil
}

// Acquire reserves one pooled connection for the duration of a request.
// The caller must Release the session, typically with defer.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	conn, err := s.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{store: s, conn: conn}, nil
}

// Session is a per-request storage handle pinned to one connection.
// It is not safe for concurrent use.
type Session struct {
	store *Store
	conn  *sql.Conn
}

// Release returns the connection to the pool. Releasing twice is a no-op.
func (s *Session) Release() {
	if s == nil || s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
}

// ListAll returns every stored item. An empty table yields an empty, non-nil slice.
func (s *Session) ListAll(ctx context.Context) (items []Item, err error) {
	if s.conn == nil {
		return nil, ErrSessionReleased
	}
	ctx, span := s.startSpan(ctx, "SELECT")
	defer func() { endSpan(span, err) }()

	rows, err := s.conn.QueryContext(ctx, s.store.listSQL)
	if err != nil {
		return nil, fmt.Errorf("list todo items: %w", err)
	}
	defer rows.Close()

	items = make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todo items: %w", err)
	}
	span.SetAttributes(attribute.Int("todo.count", len(items)))
	return items, nil
}

// Insert stores item and returns it with the storage-assigned ID. Any ID
// already set on item is ignored. The write is committed when Insert returns.
func (s *Session) Insert(ctx context.Context, item Item) (saved Item, err error) {
	if s.conn == nil {
		return Item{}, ErrSessionReleased
	}
	ctx, span := s.startSpan(ctx, "INSERT")
	defer func() { endSpan(span, err) }()

	var id int64
	if s.store.dialect.SupportsReturning() {
		if err := s.conn.QueryRowContext(ctx, s.store.insertSQL, insertArgs(item)...).Scan(&id); err != nil {
			return Item{}, fmt.Errorf("insert todo item: %w", err)
		}
	} else {
		res, err := s.conn.ExecContext(ctx, s.store.insertSQL, insertArgs(item)...)
		if err != nil {
			return Item{}, fmt.Errorf("insert todo item: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return Item{}, fmt.Errorf("insert todo item: read id: %w", err)
		}
	}

	saved = item
	saved.ID = id
	span.SetAttributes(attribute.Int64("todo.id", id))
	return saved, nil
}

func (s *Session) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, operation+" "+TableName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", string(s.store.dialect)),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", TableName),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanItem maps the Id, Title, IsComplete columns onto an Item
func scanItem(row rowScanner) (Item, error) {
	var (
		item  Item
		title sql.NullString
	)
	if err := row.Scan(&item.ID, &title, &item.IsComplete); err != nil {
		return Item{}, err
	}
	if title.Valid {
		t := title.String
		item.Title = &t
	}
	return item, nil
}

// insertArgs maps an Item onto the Title, IsComplete insert parameters
func insertArgs(item Item) []interface{} {
	title := sql.NullString{}
	if item.Title != nil {
		title = sql.NullString{String: *item.Title, Valid: true}
	}
	return []interface{}{title, item.IsComplete}
}
