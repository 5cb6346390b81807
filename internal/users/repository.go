package users

import (
	"context"
	"errors"

	"confwaitlist/internal/bookingerr"

	"gorm.io/gorm"
)

// Repository is the Persistence Gateway's user-facing slice: create_user
// plus the user reads; Exists backs the booking-creation check that the
// user is known.
type Repository interface {
	CreateUser(ctx context.Context, userID string, topics []string) error
	GetUser(ctx context.Context, userID string) (*User, error)
	Exists(ctx context.Context, userID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// CreateUser inserts the user and topic rows in one transaction. Fails
// AlreadyExists (Conflict) on a duplicate id.
func (r *repository) CreateUser(ctx context.Context, userID string, topics []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return bookingerr.Wrap(bookingerr.Transient, "checking existing user", err)
		}
		if count > 0 {
			return bookingerr.New(bookingerr.Conflict, "user already exists")
		}

		if err := tx.Create(&User{ID: userID}).Error; err != nil {
			return bookingerr.Wrap(bookingerr.Transient, "creating user", err)
		}

		seen := make(map[string]bool, len(topics))
		rows := make([]Interest, 0, len(topics))
		for _, topic := range topics {
			if seen[topic] {
				continue
			}
			seen[topic] = true
			rows = append(rows, Interest{UserID: userID, Topic: topic})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return bookingerr.Wrap(bookingerr.Transient, "creating user topics", err)
			}
		}
		return nil
	})
}

func (r *repository) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingerr.New(bookingerr.NotFound, "user not found")
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "loading user", err)
	}
	return &user, nil
}

func (r *repository) Exists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return false, bookingerr.Wrap(bookingerr.Transient, "checking user existence", err)
	}
	return count > 0, nil
}
