package database

import (
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/users"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&users.User{},
		&users.Interest{},

		&conferences.Conference{},
		&conferences.Topic{},

		&bookings.Booking{},
	)
	if err != nil {
		return err
	}

	return MigrateConstraints(db)
}
