package conferences

import (
	"time"

	"github.com/google/uuid"
)

// Conference is append-only aside from AvailableSlots, which the
// Booking Engine mutates under a row lock.
type Conference struct {
	ID             uuid.UUID `json:"id" gorm:"column:id;primaryKey;type:uuid;default:gen_random_uuid()"`
	Name           string    `json:"name" gorm:"column:name;uniqueIndex;not null"`
	Location       string    `json:"location" gorm:"column:location;not null"`
	Start          time.Time `json:"start" gorm:"column:start_timestamp;not null"`
	End            time.Time `json:"end" gorm:"column:end_timestamp;not null"`
	TotalSlots     int       `json:"total_slots" gorm:"column:total_slots;not null"`
	AvailableSlots int       `json:"available_slots" gorm:"column:available_slots;not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Conference) TableName() string {
	return "conferences"
}

// Topic is one row of a conference's topic set.
type Topic struct {
	ConferenceID uuid.UUID `json:"-" gorm:"column:conference_id;primaryKey;type:uuid"`
	Topic        string    `json:"topic" gorm:"column:topic;primaryKey"`
}

func (Topic) TableName() string {
	return "conference_topics"
}

// CreateConferenceRequest is the POST /conference request body.
type CreateConferenceRequest struct {
	Name     string   `json:"name" validate:"required,confname,max=200"`
	Location string   `json:"location" validate:"required,confname,max=200"`
	Start    string   `json:"start" validate:"required"`
	End      string   `json:"end" validate:"required"`
	Slots    int      `json:"slots" validate:"required,min=1"`
	Topics   []string `json:"topics" validate:"required,min=1,max=10,dive,confname"`
}

// TimestampLayout is the spec's UTC-naive wire format for timestamps.
const TimestampLayout = "2006-01-02 15:04:05"
