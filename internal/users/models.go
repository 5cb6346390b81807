package users

import "time"

// User is a registered attendee. Identity is the caller-supplied id
// itself (validated upstream as ^[A-Za-z0-9]+$), not a surrogate key.
type User struct {
	ID        string    `json:"user_id" gorm:"column:user_id;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Interest is one row of a user's topic set.
type Interest struct {
	UserID string `json:"-" gorm:"column:user_id;primaryKey"`
	Topic  string `json:"topic" gorm:"column:topic;primaryKey"`
}

func (Interest) TableName() string {
	return "user_interests"
}

// CreateUserRequest is the POST /user request body.
type CreateUserRequest struct {
	UserID string   `json:"user_id" binding:"required" validate:"required,alnum,max=64"`
	Topics []string `json:"topics" validate:"max=50,dive,confname"`
}
