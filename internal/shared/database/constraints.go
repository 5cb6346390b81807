package database

import "gorm.io/gorm"

// MigrateConstraints adds the constraints AutoMigrate cannot express
// from Go struct tags alone.
func MigrateConstraints(db *gorm.DB) error {
	// I2: at most one non-CANCELED booking per (user_id, conference_id).
	// A plain unique index can't express "unless canceled", so this is a
	// partial index over the live rows only.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_booking_per_user_conference
		ON bookings (user_id, conference_id)
		WHERE status <> 'CANCELED'
	`).Error; err != nil {
		return err
	}

	// Defends I1 alongside the row lock: available_slots can never leave
	// [0, total_slots]. Postgres has no "ADD CONSTRAINT IF NOT EXISTS", so
	// the idempotency is done by catching duplicate_object on reruns.
	if err := db.Exec(`
		DO $$
		BEGIN
			ALTER TABLE conferences
			ADD CONSTRAINT chk_available_slots_bounds
			CHECK (available_slots >= 0 AND available_slots <= total_slots);
		EXCEPTION
			WHEN duplicate_object THEN NULL;
		END $$;
	`).Error; err != nil {
		return err
	}

	return nil
}
