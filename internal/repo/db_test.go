package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-status-backend/internal/domain"
)

// newRepoDB returns a unique in-memory database with all migrations applied.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newRawDB(t)
	if _, err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newRawDB returns a unique, empty in-memory database.
func newRawDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	db, err := Open("mysql", "whatever")
	if err == nil || db != nil {
		t.Fatalf("expected error for unsupported driver, got db=%v err=%v", db, err)
	}
	if !strings.Contains(err.Error(), "mysql") {
		t.Fatalf("error should name the driver, got %v", err)
	}
}

func TestOpenPostgres_EmptyDSN(t *testing.T) {
	if _, err := Open(DriverPostgres, "  "); err == nil {
		t.Fatalf("expected error for empty postgres dsn")
	}
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Windows reports a *os.PathError, Unix "no such file or directory".
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.db")

	db, err := Open("", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	if syncVal != 1 { // NORMAL
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	ran, err := Migrate(context.Background(), db)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	want := []string{"0001_projects", "0002_status_history", "0003_user_tokens", "0004_idempotency", "0005_status_history_append_only"}
	if !reflect.DeepEqual(ran, want) {
		t.Fatalf("applied = %v, want %v", ran, want)
	}

	m := db.Migrator()
	for _, tbl := range []any{&domain.Project{}, &domain.StatusHistory{}, &domain.UserToken{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newRawDB(t)
	ctx := context.Background()

	first, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("expected migrations to run on an empty database")
	}
	second, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no migrations on re-run, got %v", second)
	}

	var n int64
	if err := db.Table("goose_db_version").Where("version_id > 0 AND is_applied").Count(&n).Error; err != nil {
		t.Fatalf("count goose_db_version: %v", err)
	}
	if int(n) != len(first) {
		t.Fatalf("applied versions = %d, want %d", n, len(first))
	}
}

func TestMigrate_StatusCheckConstraint(t *testing.T) {
	db := newRepoDB(t)
	p := domain.Project{ID: "p1", Name: "API", OwnerID: "u1", CreatedAt: 1, UpdatedAt: 1}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("insert project: %v", err)
	}
	err := db.Exec(`INSERT INTO status_history (project_id, status, created_at) VALUES ('p1', 'sideways', 1)`).Error
	if err == nil {
		t.Fatalf("expected CHECK constraint to reject unknown status")
	}
}

func TestMigrate_HistoryIsAppendOnly(t *testing.T) {
	db := newRepoDB(t)
	p := domain.Project{ID: "p1", Name: "API", OwnerID: "u1", CreatedAt: 1, UpdatedAt: 1}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := db.Exec(`INSERT INTO status_history (project_id, status, created_at) VALUES ('p1', 'degraded', 1)`).Error; err != nil {
		t.Fatalf("append: %v", err)
	}

	for name, stmt := range map[string]string{
		"update": `UPDATE status_history SET status = 'operational' WHERE project_id = 'p1'`,
		"delete": `DELETE FROM status_history WHERE project_id = 'p1'`,
	} {
		err := db.Exec(stmt).Error
		if err == nil || !strings.Contains(err.Error(), "append-only") {
			t.Fatalf("%s: expected append-only trigger to abort, got %v", name, err)
		}
	}

	var got string
	if err := db.Raw(`SELECT status FROM status_history WHERE project_id = 'p1'`).Row().Scan(&got); err != nil || got != "degraded" {
		t.Fatalf("history row changed: %q, %v", got, err)
	}
}

func TestNewGormLogger_QuietOnNotFoundAndHidesParams(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)

	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if _, err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	const owner = "secret-owner@example.com"
	var p domain.Project
	if err := db.Where("owner_id = ?", owner).First(&p).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("not-found lookups must not log, got %s", buf.String())
	}

	if err := db.Exec("SELECT * FROM no_such_table WHERE owner_id = ?", owner).Error; err == nil {
		t.Fatalf("expected error for missing table")
	}
	out := buf.String()
	if !strings.Contains(out, "no_such_table") || !strings.Contains(out, `"component":"gorm"`) {
		t.Fatalf("failed statement should be logged through zerolog, got %s", out)
	}
	if strings.Contains(out, owner) {
		t.Fatalf("bound values leaked into logs: %s", out)
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
