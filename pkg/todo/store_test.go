package todo

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fluxorio/todo/pkg/db"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	pool, err := db.NewPool(db.DefaultPoolConfig(filepath.Join(t.TempDir(), "todo.db"), "sqlite3"))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	store := NewStore(pool)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store
}

func strPtr(s string) *string { return &s }

// insertOne and listAll run a single call on a fresh session, the way a request does
func insertOne(store *Store, ctx context.Context, item Item) (Item, error) {
	sess, err := store.Acquire(ctx)
	if err != nil {
		return Item{}, err
	}
	defer sess.Release()
	return sess.Insert(ctx, item)
}

func listAll(store *Store, ctx context.Context) ([]Item, error) {
	sess, err := store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	return sess.ListAll(ctx)
}

func TestStore_EmptyListIsNonNil(t *testing.T) {
	store := newTestStore(t)

	items, err := listAll(store, context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("ListAll = %#v, want empty non-nil slice", items)
	}
}

func TestStore_InsertAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer sess.Release()

	tests := []struct {
		name string
		in   Item
	}{
		{"title", Item{Title: strPtr("Buy milk")}},
		{"complete", Item{Title: strPtr("Walk dog"), IsComplete: true}},
		{"null title", Item{}},
		{"empty title", Item{Title: strPtr("")}},
		{"id ignored", Item{ID: 999, Title: strPtr("x")}},
	}

	saved := make([]Item, 0, len(tests))
	for _, tt := range tests {
		got, err := sess.Insert(ctx, tt.in)
		if err != nil {
			t.Fatalf("%s: Insert: %v", tt.name, err)
		}
		if got.ID <= 0 || got.ID == 999 {
			t.Errorf("%s: ID = %d, want storage-assigned id", tt.name, got.ID)
		}
		saved = append(saved, got)
	}

	items, err := sess.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(items) != len(saved) {
		t.Fatalf("len(items) = %d, want %d", len(items), len(saved))
	}
	for i, item := range items {
		want := saved[i]
		if item.ID != want.ID || item.IsComplete != want.IsComplete {
			t.Errorf("item %d = %+v, want %+v", i, item, want)
		}
		if (item.Title == nil) != (want.Title == nil) {
			t.Errorf("item %d title nil mismatch", i)
		} else if item.Title != nil && *item.Title != *want.Title {
			t.Errorf("item %d title = %q, want %q", i, *item.Title, *want.Title)
		}
	}
}

func TestStore_IDsNotReused(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := insertOne(store, ctx, Item{Title: strPtr("a")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := store.pool.Exec(ctx, `DELETE FROM "TodoItems"`); err != nil {
		t.Fatalf("delete: %v", err)
	}
	second, err := insertOne(store, ctx, Item{Title: strPtr("b")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("id %d reused after delete (first %d)", second.ID, first.ID)
	}
}

func TestStore_ConcurrentInserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make(map[int64]bool)
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := insertOne(store, ctx, Item{Title: strPtr("concurrent")})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[item.ID] = true
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("%d inserts failed, first: %v", len(errs), errs[0])
	}
	if len(ids) != n {
		t.Errorf("distinct ids = %d, want %d", len(ids), n)
	}
	items, err := listAll(store, ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(items) != n {
		t.Errorf("persisted = %d, want %d", len(items), n)
	}
}

func TestSession_Released(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	sess.Release()
	sess.Release()

	if _, err := sess.ListAll(context.Background()); !errors.Is(err, ErrSessionReleased) {
		t.Errorf("ListAll after Release = %v, want ErrSessionReleased", err)
	}
	if _, err := sess.Insert(context.Background(), Item{}); !errors.Is(err, ErrSessionReleased) {
		t.Errorf("Insert after Release = %v, want ErrSessionReleased", err)
	}
	if got := store.pool.Stats().InUse; got != 0 {
		t.Errorf("connections in use = %d, want 0", got)
	}
}

func TestStore_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	store := newTestStore(t)
	if _, err := insertOne(store, context.Background(), Item{Title: strPtr("traced")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := listAll(store, context.Background()); err != nil {
		t.Fatalf("ListAll: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name() != "INSERT TodoItems" || spans[1].Name() != "SELECT TodoItems" {
		t.Errorf("span names = %q, %q", spans[0].Name(), spans[1].Name())
	}
}

func TestSchemaSQL(t *testing.T) {
	tests := []struct {
		dialect db.Dialect
		want    string
	}{
		{db.SQLite, `CREATE TABLE IF NOT EXISTS "TodoItems" ("Id" INTEGER PRIMARY KEY AUTOINCREMENT, "Title" TEXT NULL, "IsComplete" INTEGER NOT NULL DEFAULT 0)`},
		{db.Postgres, `CREATE TABLE IF NOT EXISTS "TodoItems" ("Id" BIGSERIAL PRIMARY KEY, "Title" TEXT NULL, "IsComplete" BOOLEAN NOT NULL DEFAULT FALSE)`},
		{db.MySQL, "CREATE TABLE IF NOT EXISTS `TodoItems` (`Id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, `Title` TEXT NULL, `IsComplete` BOOLEAN NOT NULL DEFAULT FALSE)"},
	}
	for _, tt := range tests {
		if got := schemaSQL(tt.dialect); got != tt.want {
			t.Errorf("schemaSQL(%s) =\n%s\nwant\n%s", tt.dialect, got, tt.want)
		}
	}
}

type fakeRow []interface{}

func (r fakeRow) Scan(dest ...interface{}) error {
	*dest[0].(*int64) = r[0].(int64)
	if err := dest[1].(*sql.NullString).Scan(r[1]); err != nil {
		return err
	}
	*dest[2].(*bool) = r[2].(bool)
	return nil
}

func TestExplicitMapping(t *testing.T) {
	item, err := scanItem(fakeRow{int64(3), "Buy milk", true})
	if err != nil {
		t.Fatalf("scanItem: %v", err)
	}
	if item.ID != 3 || item.Title == nil || *item.Title != "Buy milk" || !item.IsComplete {
		t.Errorf("scanItem = %+v", item)
	}

	item, err = scanItem(fakeRow{int64(4), nil, false})
	if err != nil {
		t.Fatalf("scanItem: %v", err)
	}
	if item.Title != nil {
		t.Errorf("NULL title should map to nil, got %q", *item.Title)
	}

	args := insertArgs(Item{ID: 9, Title: strPtr("x"), IsComplete: true})
	if len(args) != 2 {
		t.Fatalf("insertArgs = %v, want 2 parameters", args)
	}
	if ns := args[0].(sql.NullString); !ns.Valid || ns.String != "x" {
		t.Errorf("title arg = %+v", ns)
	}
	if args[1] != true {
		t.Errorf("isComplete arg = %v", args[1])
	}
	if ns := insertArgs(Item{})[0].(sql.NullString); ns.Valid {
		t.Error("nil title should map to NULL")
	}
}
