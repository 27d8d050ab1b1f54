package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/database"
	"github.com/isdelr/blog-be/internal/models"
)

const (
	minPasswordLength = 6
	maxNameLength     = 100
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	Register(ctx context.Context, in RegisterInput) (models.User, error)
	CreateUser(ctx context.Context, name, email, password string, role models.Role) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (models.User, error)
	UpdatePassword(ctx context.Context, id, currentPassword, newPassword string) error
	UpdateUser(ctx context.Context, actor auth.Principal, id string, in UserUpdate) (models.User, error)
	DeleteUser(ctx context.Context, actor auth.Principal, id string) error
}

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// ProfileUpdate lists the fields a user may change on their own account.
// Nil means "leave unchanged".
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// UserUpdate lists the fields an administrator may change on any account.
type UserUpdate struct {
	Name  *string
	Email *string
	Role  *models.Role
}

// UserService provides business logic for user management.
type UserService struct {
	db           *database.DB
	assets       AssetDeleter
	eventService EventServiceProvider
	bcryptCost   int
}

// NewUserService creates a new UserService.
func NewUserService(db *database.DB, assets AssetDeleter, eventService EventServiceProvider) *UserService {
	return &UserService{db: db, assets: assets, eventService: eventService, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost returns a copy using the given hashing cost.
func (s *UserService) WithBcryptCost(cost int) *UserService {
	tmp := *s
	tmp.bcryptCost = cost
	return &tmp
}

const userColumns = "id, name, email, role, avatar, created_at, updated_at"

func scanUser(scanner interface{ Scan(...any) error }, extra ...any) (models.User, error) {
	var user models.User
	dest := append([]any{&user.ID, &user.Name, &user.Email, &user.Role, &user.Avatar, &user.CreatedAt, &user.UpdatedAt}, extra...)
	err := scanner.Scan(dest...)
	return user, err
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperror.NotFound("User not found")
		}
		return models.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

// getUserByEmail retrieves a single user by their email, including the password hash.
func (s *UserService) getUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+", password_hash FROM users WHERE email = ?", email)
	var hash string
	user, err := scanUser(row, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperror.NotFound("User not found")
		}
		return models.User{}, fmt.Errorf("get user by email: %w", err)
	}
	user.PasswordHash = hash
	return user, nil
}

// ListUsers returns all users, newest first.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Register creates an account through the public registration endpoint.
// The role defaults to user; admin accounts cannot be self-registered.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return models.User{}, apperror.Validation("Invalid role")
	}
	if role == models.RoleAdmin {
		return models.User{}, apperror.Forbidden("Admin accounts cannot be self-registered")
	}

	user, err := s.CreateUser(ctx, in.Name, in.Email, in.Password, role)
	if err != nil {
		return models.User{}, err
	}
	recordEvent(ctx, s.eventService, "user.register", "info", fmt.Sprintf("User '%s' registered.", user.Email), user.ID)
	return user, nil
}

// CreateUser creates a new user, hashing their password.
func (s *UserService) CreateUser(ctx context.Context, name, email, password string, role models.Role) (models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if err := validateName(name); err != nil {
		return models.User{}, err
	}
	if err := validateEmail(email); err != nil {
		return models.User{}, err
	}
	if err := validatePassword(password); err != nil {
		return models.User{}, err
	}
	if !role.Valid() {
		return models.User{}, apperror.Validation("Invalid role")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := models.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash, role, avatar, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Name, user.Email, string(hashedPassword), string(user.Role), user.Avatar, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, apperror.Conflict("User already exists")
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// dummyHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// AuthenticateUser verifies a user's credentials. Unknown email and wrong
// password produce the same error.
func (s *UserService) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return models.User{}, apperror.Validation("Please provide email and password")
	}

	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if apperror.KindOf(err) != apperror.KindNotFound {
			return models.User{}, err
		}
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return models.User{}, apperror.Unauthorized("Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, apperror.Unauthorized("Invalid credentials")
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile changes the caller's own name and email. Password and role
// are never touched here.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := applyIdentity(&user, in.Name, in.Email); err != nil {
		return models.User{}, err
	}
	return s.save(ctx, user)
}

// UpdatePassword verifies the current password, then hashes and sets a new password for a user.
func (s *UserService) UpdatePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT password_hash FROM users WHERE id = ?", id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("User not found")
		}
		return fmt.Errorf("load password hash: %w", err)
	}

	// Check if the current password is correct
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(currentPassword)); err != nil {
		return apperror.Unauthorized("Current password is incorrect")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, "UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		string(hashedPassword), time.Now().UTC(), id)
	return err
}

// UpdateUser lets an administrator change a user's name, email and role.
func (s *UserService) UpdateUser(ctx context.Context, actor auth.Principal, id string, in UserUpdate) (models.User, error) {
	if !actor.IsAdmin() {
		return models.User{}, apperror.Forbidden("Not authorized to update users")
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := applyIdentity(&user, in.Name, in.Email); err != nil {
		return models.User{}, err
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return models.User{}, apperror.Validation("Invalid role")
		}
		user.Role = *in.Role
	}

	updated, err := s.save(ctx, user)
	if err != nil {
		return models.User{}, err
	}
	recordEvent(ctx, s.eventService, "user.update", "info",
		fmt.Sprintf("User '%s' updated by an administrator (role %s).", updated.Email, updated.Role), actor.UserID)
	return updated, nil
}

// DeleteUser removes a user and, through the foreign key, their posts. The
// image assets of those posts are deleted afterwards on a best-effort basis
// unless another user's post still uses them.
// Administrators cannot delete their own account here.
func (s *UserService) DeleteUser(ctx context.Context, actor auth.Principal, id string) error {
	if !actor.IsAdmin() {
		return apperror.Forbidden("Not authorized to delete users")
	}
	if actor.UserID == id {
		return apperror.Validation("You cannot delete your own account")
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	assetIDs, err := s.postAssetIDs(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	recordEvent(ctx, s.eventService, "user.delete", "warn", fmt.Sprintf("User '%s' was deleted.", user.Email), actor.UserID)

	for _, assetID := range assetIDs {
		releaseAsset(ctx, s.db, s.assets, s.eventService, assetID, actor.UserID)
	}
	return nil
}

func (s *UserService) postAssetIDs(ctx context.Context, authorID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT image_public_id FROM posts WHERE author_id = ? AND image_public_id <> ''", authorID)
	if err != nil {
		return nil, fmt.Errorf("list post assets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *UserService) save(ctx context.Context, user models.User) (models.User, error) {
	user.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, "UPDATE users SET name = ?, email = ?, role = ?, updated_at = ? WHERE id = ?",
		user.Name, user.Email, string(user.Role), user.UpdatedAt, user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, apperror.Conflict("Email already in use")
		}
		return models.User{}, fmt.Errorf("update user %s: %w", user.ID, err)
	}
	return s.GetUserByID(ctx, user.ID)
}

func applyIdentity(user *models.User, name, email *string) error {
	if name != nil {
		n := strings.TrimSpace(*name)
		if err := validateName(n); err != nil {
			return err
		}
		user.Name = n
	}
	if email != nil {
		e := normalizeEmail(*email)
		if err := validateEmail(e); err != nil {
			return err
		}
		user.Email = e
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateName(name string) error {
	if name == "" {
		return apperror.Validation("Name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return apperror.Validation(fmt.Sprintf("Name cannot exceed %d characters", maxNameLength))
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperror.Validation("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.Validation("Please provide a valid email")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperror.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if len(password) > 72 {
		// bcrypt ignores anything past 72 bytes.
		return apperror.Validation("Password cannot exceed 72 bytes")
	}
	return nil
}

// releaseAsset runs the compensating asset deletion that follows a post
// removal. The asset is kept while any remaining post references it. The
// outcome is logged; it never fails the caller.
func releaseAsset(ctx context.Context, db *database.DB, assets AssetDeleter, events EventServiceProvider, assetID, actorID string) {
	if assets == nil || assetID == "" {
		return
	}
	var refs int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE image_public_id = ?", assetID).Scan(&refs)
	if err != nil {
		log.Error().Err(err).Str("asset_id", assetID).Msg("Failed to check image asset references")
		return
	}
	if refs > 0 {
		log.Debug().Str("asset_id", assetID).Int("refs", refs).Msg("Keeping image asset still in use")
		return
	}
	if err := assets.Delete(ctx, assetID); err != nil {
		log.Error().Err(err).Str("asset_id", assetID).Msg("Failed to delete image asset")
		recordEvent(ctx, events, "asset.delete.fail", "error", fmt.Sprintf("Image asset '%s' could not be deleted.", assetID), actorID)
		return
	}
	log.Info().Str("asset_id", assetID).Msg("Deleted image asset")
}
