package services_test

import (
	"context"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/models"
	"github.com/isdelr/blog-be/internal/services"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	c := qt.New(t)
	e := newEnv(c)
	ctx := context.Background()

	u, err := e.users.Register(ctx, services.RegisterInput{Name: "Alice", Email: " Alice@Example.com ", Password: "Secret123"})
	c.Assert(err, qt.IsNil)
	c.Assert(u.Email, qt.Equals, "alice@example.com")
	c.Assert(u.Role, qt.Equals, models.RoleUser)

	got, err := e.users.AuthenticateUser(ctx, "ALICE@example.com", "Secret123")
	c.Assert(err, qt.IsNil)
	c.Assert(got.ID, qt.Equals, u.ID)
	c.Assert(got.PasswordHash, qt.Equals, "")

	_, wrongPassword := e.users.AuthenticateUser(ctx, "alice@example.com", "nope-nope")
	_, unknownEmail := e.users.AuthenticateUser(ctx, "bob@example.com", "Secret123")
	c.Assert(apperror.KindOf(wrongPassword), qt.Equals, apperror.KindUnauthorized)
	c.Assert(apperror.KindOf(unknownEmail), qt.Equals, apperror.KindUnauthorized)
	c.Assert(wrongPassword.Error(), qt.Equals, unknownEmail.Error())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	c := qt.New(t)
	e := newEnv(c)
	ctx := context.Background()

	first, err := e.users.Register(ctx, services.RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "Secret123"})
	c.Assert(err, qt.IsNil)

	_, err = e.users.Register(ctx, services.RegisterInput{Name: "Mallory", Email: "ALICE@example.com", Password: "Other456"})
	c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindConflict)

	// The first account is untouched.
	got, err := e.users.AuthenticateUser(ctx, "alice@example.com", "Secret123")
	c.Assert(err, qt.IsNil)
	c.Assert(got.ID, qt.Equals, first.ID)
	c.Assert(got.Name, qt.Equals, "Alice")
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		in   services.RegisterInput
		kind apperror.Kind
	}{
		{"missing name", services.RegisterInput{Email: "a@example.com", Password: "Secret123"}, apperror.KindValidation},
		{"bad email", services.RegisterInput{Name: "A", Email: "not-an-email", Password: "Secret123"}, apperror.KindValidation},
		{"short password", services.RegisterInput{Name: "A", Email: "a@example.com", Password: "123"}, apperror.KindValidation},
		{"long password", services.RegisterInput{Name: "A", Email: "a@example.com", Password: strings.Repeat("x", 73)}, apperror.KindValidation},
		{"unknown role", services.RegisterInput{Name: "A", Email: "a@example.com", Password: "Secret123", Role: "root"}, apperror.KindValidation},
		{"admin role", services.RegisterInput{Name: "A", Email: "a@example.com", Password: "Secret123", Role: models.RoleAdmin}, apperror.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			e := newEnv(c)
			_, err := e.users.Register(context.Background(), tt.in)
			c.Assert(apperror.KindOf(err), qt.Equals, tt.kind)
		})
	}
}

func TestUpdateProfileAndPassword(t *testing.T) {
	c := qt.New(t)
	e := newEnv(c)
	ctx := context.Background()
	alice := e.user(c, "Alice", "alice@example.com", models.RoleEditor)
	e.user(c, "Bob", "bob@example.com", models.RoleUser)

	u, err := e.users.UpdateProfile(ctx, alice.UserID, services.ProfileUpdate{Name: ptr("Alice Liddell")})
	c.Assert(err, qt.IsNil)
	c.Assert(u.Name, qt.Equals, "Alice Liddell")
	c.Assert(u.Email, qt.Equals, "alice@example.com")
	c.Assert(u.Role, qt.Equals, models.RoleEditor)

	_, err = e.users.UpdateProfile(ctx, alice.UserID, services.ProfileUpdate{Email: ptr("bob@example.com")})
	c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindConflict)

	err = e.users.UpdatePassword(ctx, alice.UserID, "wrong-password", "NewSecret1")
	c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindUnauthorized)

	c.Assert(e.users.UpdatePassword(ctx, alice.UserID, "Secret123", "NewSecret1"), qt.IsNil)
	_, err = e.users.AuthenticateUser(ctx, "alice@example.com", "NewSecret1")
	c.Assert(err, qt.IsNil)
	_, err = e.users.AuthenticateUser(ctx, "alice@example.com", "Secret123")
	c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindUnauthorized)
}

func TestUpdateUserRequiresAdmin(t *testing.T) {
	c := qt.New(t)
	e := newEnv(c)
	ctx := context.Background()
	admin := e.user(c, "Root", "root@example.com", models.RoleAdmin)
	bob := e.user(c, "Bob", "bob@example.com", models.RoleUser)

	_, err := e.users.UpdateUser(ctx, bob, bob.UserID, services.UserUpdate{Role: ptr(models.RoleAdmin)})
	c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindForbidden)

	_, err = e.users.UpdateUser(ctx, admin, bob.UserID, services.UserUpdate{Role: ptr(models.Role("owner"))})
	c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindValidation)

	u, err := e.users.UpdateUser(ctx, admin, bob.UserID, services.UserUpdate{Role: ptr(models.RoleEditor)})
	c.Assert(err, qt.IsNil)
	c.Assert(u.Role, qt.Equals, models.RoleEditor)

	_, err = e.users.UpdateUser(ctx, admin, "missing", services.UserUpdate{Name: ptr("X")})
	c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindNotFound)
}

func TestDeleteUser(t *testing.T) {
	c := qt.New(t)
	e := newEnv(c)
	ctx := context.Background()
	admin := e.user(c, "Root", "root@example.com", models.RoleAdmin)
	bob := e.user(c, "Bob", "bob@example.com", models.RoleUser)

	c.Run("self deletion is rejected", func(c *qt.C) {
		err := e.users.DeleteUser(ctx, admin, admin.UserID)
		c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindValidation)
		_, err = e.users.GetUserByID(ctx, admin.UserID)
		c.Assert(err, qt.IsNil)
	})

	c.Run("non admin is rejected", func(c *qt.C) {
		err := e.users.DeleteUser(ctx, bob, admin.UserID)
		c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindForbidden)
	})

	c.Run("posts and assets follow the user", func(c *qt.C) {
		_, err := e.posts.CreatePost(ctx, bob, services.PostInput{
			Title: "Bob's Post", Content: "<p>hi</p>", Category: "misc",
			Image: "https://img.example.com/a.png", ImagePublicID: "blog-images/a",
		})
		c.Assert(err, qt.IsNil)

		c.Assert(e.users.DeleteUser(ctx, admin, bob.UserID), qt.IsNil)

		_, err = e.users.GetUserByID(ctx, bob.UserID)
		c.Assert(apperror.KindOf(err), qt.Equals, apperror.KindNotFound)
		stats, err := e.posts.GetStats(ctx, bob.UserID)
		c.Assert(err, qt.IsNil)
		c.Assert(stats.TotalBlogs, qt.Equals, 0)
		c.Assert(e.assets.deleted, qt.DeepEquals, []string{"blog-images/a"})
	})
}

func TestDeleteUserKeepsSharedAssets(t *testing.T) {
	c := qt.New(t)
	e := newEnv(c)
	ctx := context.Background()
	admin := e.user(c, "Root", "root@example.com", models.RoleAdmin)
	bob := e.user(c, "Bob", "bob@example.com", models.RoleUser)
	carol := e.user(c, "Carol", "carol@example.com", models.RoleUser)

	withImage := func(actor auth.Principal, title, assetID string) {
		_, err := e.posts.CreatePost(ctx, actor, services.PostInput{
			Title: title, Content: "<p>hi</p>", Category: "misc",
			Image: "https://img.example.com/" + assetID + ".png", ImagePublicID: assetID,
		})
		c.Assert(err, qt.IsNil)
	}
	withImage(bob, "Bob Shared", "blog-images/shared")
	withImage(bob, "Bob Own", "blog-images/bob")
	withImage(carol, "Carol Shared", "blog-images/shared")

	c.Assert(e.users.DeleteUser(ctx, admin, bob.UserID), qt.IsNil)
	c.Assert(e.assets.deleted, qt.DeepEquals, []string{"blog-images/bob"})

	page, err := e.posts.ListPosts(ctx, services.ListFilter{})
	c.Assert(err, qt.IsNil)
	c.Assert(page.Posts, qt.HasLen, 1)
	c.Assert(page.Posts[0].ImagePublicID, qt.Equals, "blog-images/shared")
}

func TestCreateUserRoleIsReadBack(t *testing.T) {
	c := qt.New(t)
	e := newEnv(c)
	ctx := context.Background()
	p := e.user(c, "Ed", "ed@example.com", models.RoleEditor)

	u, err := e.users.GetUserByID(ctx, p.UserID)
	c.Assert(err, qt.IsNil)
	c.Assert(u.Role, qt.Equals, models.RoleEditor)
	c.Assert(auth.Principal{UserID: u.ID, Role: u.Role}.IsAdmin(), qt.IsFalse)
}
