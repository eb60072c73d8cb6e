package repository

import (
	"context"
	"errors"
	"fmt"

	"musicbox/model"

	"gorm.io/gorm"
)

// UserRepository defines the interface for user data operations.
//
// Username and email uniqueness is enforced by unique indexes, not by a
// lookup before insert. CreateUser reports a conflict as
// ErrDuplicateUsername or ErrDuplicateEmail.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// gormUserRepository implements UserRepository on top of gorm.
type gormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new gorm backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// CreateUser adds a new user to the database and fills in its ID.
func (r *gormUserRepository) CreateUser(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err == nil {
		return nil
	}
	if !isDuplicateKey(err) {
		return fmt.Errorf("failed to create user: %w", err)
	}
	// The driver error does not reliably name the index, so look it up.
	existing, lookupErr := r.GetUserByUsername(ctx, user.Username)
	if lookupErr != nil {
		return fmt.Errorf("failed to resolve duplicate user %s: %w", user.Username, lookupErr)
	}
	if existing != nil {
		return ErrDuplicateUsername
	}
	return ErrDuplicateEmail
}

func (r *gormUserRepository) findOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // User not found
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by their ID.
func (r *gormUserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := r.findOne(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID %d: %w", id, err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by their username.
func (r *gormUserRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := r.findOne(ctx, "username = ?", username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *gormUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.findOne(ctx, "email = ?", email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email %s: %w", email, err)
	}
	return user, nil
}
