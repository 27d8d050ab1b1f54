package services_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	qt "github.com/frankban/quicktest"
	"golang.org/x/crypto/bcrypt"

	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/database"
	"github.com/isdelr/blog-be/internal/models"
	"github.com/isdelr/blog-be/internal/services"
)

// fakeAssets records deletions and fails them when fail is set.
type fakeAssets struct {
	mu      sync.Mutex
	fail    bool
	deleted []string
}

func (f *fakeAssets) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("asset store unreachable")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type env struct {
	db     *database.DB
	assets *fakeAssets
	events *services.EventService
	users  *services.UserService
	posts  *services.PostService
}

func newEnv(c *qt.C) *env {
	c.Helper()
	db, err := database.New(filepath.Join(c.TempDir(), "test.db"))
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { db.Close() })
	c.Assert(database.Migrate(context.Background(), db), qt.IsNil)

	assets := &fakeAssets{}
	events := services.NewEventService(db)
	return &env{
		db:     db,
		assets: assets,
		events: events,
		users:  services.NewUserService(db, assets, events).WithBcryptCost(bcrypt.MinCost),
		posts:  services.NewPostService(db, assets, events),
	}
}

func (e *env) user(c *qt.C, name, email string, role models.Role) auth.Principal {
	c.Helper()
	u, err := e.users.CreateUser(context.Background(), name, email, "Secret123", role)
	c.Assert(err, qt.IsNil)
	return auth.Principal{UserID: u.ID, Role: u.Role}
}

func (e *env) post(c *qt.C, actor auth.Principal, title string, status models.PostStatus) models.Post {
	c.Helper()
	p, err := e.posts.CreatePost(context.Background(), actor, services.PostInput{
		Title:    title,
		Content:  "<p>Body of " + title + "</p>",
		Category: "general",
		Status:   status,
	})
	c.Assert(err, qt.IsNil)
	return p
}

func ptr[T any](v T) *T { return &v }
