package backup

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

func TestPostgresStoreSave(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	rec := testRecord("sess-1", 2)
	mock.ExpectExec(`INSERT INTO track_backups`).
		WithArgs("sess-1", pgxmock.AnyArg(), rec.SavedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock)
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreLoad(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	rec := testRecord("sess-1", 2)
	payload, _ := json.Marshal(rec)
	mock.ExpectQuery(`SELECT record FROM track_backups`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(payload))

	store := NewPostgresStore(mock)
	loaded, ok, err := store.Load(context.Background(), "sess-1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(loaded.Points) != 2 || loaded.SessionID != "sess-1" {
		t.Fatalf("unexpected record %+v", loaded)
	}
}

func TestPostgresStoreLoadMissing(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT record FROM track_backups`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"record"}))

	store := NewPostgresStore(mock)
	_, ok, err := store.Load(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
}

func TestPostgresStoreClearAndList(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM track_backups`).
		WithArgs("sess-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(`SELECT session_id FROM track_backups`).
		WillReturnRows(pgxmock.NewRows([]string{"session_id"}).AddRow("sess-2"))

	store := NewPostgresStore(mock)
	if err := store.Clear(context.Background(), "sess-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	ids, err := store.List(context.Background())
	if err != nil || len(ids) != 1 || ids[0] != "sess-2" {
		t.Fatalf("list: %v %v", ids, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := testRecord("sess-1", 1)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, _, _ := store.Load(ctx, "sess-1")
	loaded.Points[0].Lat = 0

	again, _, _ := store.Load(ctx, "sess-1")
	if again.Points[0].Lat != 37.7 {
		t.Fatalf("loaded record mutation leaked into store")
	}
}

func TestNewPicksBackend(t *testing.T) {
	if _, err := New(cfgWith("memory"), nil, nil); err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, err := New(cfgWith("redis"), nil, nil); err == nil {
		t.Fatalf("redis backend without client must fail")
	}
	if _, err := New(cfgWith("postgres"), nil, nil); err == nil {
		t.Fatalf("postgres backend without pool must fail")
	}
	if _, err := New(cfgWith("bogus"), nil, nil); err == nil {
		t.Fatalf("unknown backend must fail")
	}
}
