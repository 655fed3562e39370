package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/infrastructure/persistence/gormdb/model"
	"patchtriage/internal/ports"
)

// UserRepository is the local user directory.
type UserRepository struct {
	db *gorm.DB
}

var _ ports.UserDirectory = (*UserRepository)(nil)

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) findOne(ctx context.Context, what string, query string, args ...any) (triage.User, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return triage.User{}, err
	}

	var row model.User
	if err := db.Where(query, args...).Order("id asc").Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return triage.User{}, fmt.Errorf("user %s: %w", what, triage.ErrNotFound)
		}
		return triage.User{}, errs.Wrapf(err, "query user %s", what)
	}
	return mapUser(row), nil
}

func (r *UserRepository) GetUser(ctx context.Context, userID uint64) (triage.User, error) {
	return r.findOne(ctx, fmt.Sprintf("%d", userID), "id = ?", userID)
}

func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (triage.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return triage.User{}, fmt.Errorf("user with blank email: %w", triage.ErrNotFound)
	}
	return r.findOne(ctx, email, "LOWER(email) = ?", email)
}

func (r *UserRepository) FindUserByGitHubID(ctx context.Context, githubID int64) (triage.User, error) {
	if githubID <= 0 {
		return triage.User{}, fmt.Errorf("user with github id %d: %w", githubID, triage.ErrNotFound)
	}
	return r.findOne(ctx, fmt.Sprintf("github:%d", githubID), "github_id = ?", githubID)
}

func (r *UserRepository) FindUserByGitHubUsername(ctx context.Context, username string) (triage.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return triage.User{}, fmt.Errorf("user with blank github username: %w", triage.ErrNotFound)
	}
	return r.findOne(ctx, "github:"+username, "LOWER(github_username) = ?", username)
}

func (r *UserRepository) CreateUser(ctx context.Context, user triage.User) (triage.User, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return triage.User{}, err
	}

	user.Email = strings.TrimSpace(user.Email)
	user.Username = strings.TrimSpace(user.Username)
	if user.Email == "" || user.Username == "" {
		return triage.User{}, &triage.ValidationError{Fields: []triage.FieldError{{Field: "user", Message: "email and username are required"}}}
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	row := toUserModel(user)
	row.ID = 0
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return triage.User{}, fmt.Errorf("user %s: %w", user.Email, triage.ErrDuplicate)
		}
		return triage.User{}, errs.Wrap(err, "insert user")
	}
	return mapUser(row), nil
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]triage.User, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.User
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query users")
	}
	return mapUsers(rows), nil
}

func (r *UserRepository) ListUsersByIDs(ctx context.Context, userIDs []uint64) ([]triage.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.User
	if err := db.Where("id IN ?", userIDs).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query users by id")
	}
	return mapUsers(rows), nil
}

func mapUsers(rows []model.User) []triage.User {
	items := make([]triage.User, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapUser(row))
	}
	return items
}
