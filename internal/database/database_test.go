package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/isdelr/blog-be/internal/database"
)

func TestRebind(t *testing.T) {
	c := qt.New(t)

	q := "SELECT id FROM posts WHERE author_id = ? AND status = ? LIMIT ?"
	sqliteDB := &database.DB{Dialect: database.SQLite}
	pgDB := &database.DB{Dialect: database.Postgres}

	c.Assert(sqliteDB.Rebind(q), qt.Equals, q)
	c.Assert(pgDB.Rebind(q), qt.Equals, "SELECT id FROM posts WHERE author_id = $1 AND status = $2 LIMIT $3")
}

func TestMigrateAndUniqueViolation(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	c.Assert(err, qt.IsNil)
	defer db.Close()
	c.Assert(db.Dialect, qt.Equals, database.SQLite)

	c.Assert(database.Migrate(ctx, db), qt.IsNil)
	// Migrations are idempotent.
	c.Assert(database.Migrate(ctx, db), qt.IsNil)

	now := time.Now().UTC()
	insert := `INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, insert, "u1", "Alice", "alice@example.com", "x", "user", now, now)
	c.Assert(err, qt.IsNil)

	_, err = db.ExecContext(ctx, insert, "u2", "Alice Again", "alice@example.com", "x", "user", now, now)
	c.Assert(err, qt.IsNotNil)
	c.Assert(database.IsUniqueViolation(err), qt.IsTrue)

	c.Assert(database.IsUniqueViolation(errors.New("boom")), qt.IsFalse)
}

func TestForeignKeysEnforced(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	c.Assert(err, qt.IsNil)
	defer db.Close()
	c.Assert(database.Migrate(ctx, db), qt.IsNil)

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `INSERT INTO posts (id, title, slug, content, category, author_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, "p1", "T", "t", "c", "cat", "missing-user", now, now)
	c.Assert(err, qt.IsNotNil)
	c.Assert(database.IsForeignKeyViolation(err), qt.IsTrue)
	c.Assert(database.IsUniqueViolation(err), qt.IsFalse)
}
