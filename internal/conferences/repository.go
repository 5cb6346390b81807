package conferences

import (
	"context"
	"errors"
	"strings"
	"time"

	"confwaitlist/internal/bookingerr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxDuration = 12 * time.Hour

// Repository is the conference slice of the Persistence Gateway.
//
// LockForUpdate and the slot mutators take an explicit tx handle rather
// than owning a transaction themselves: the Booking Engine's decision
// (§4.2) spans the conferences and bookings aggregates inside a single
// transaction, so the transaction boundary belongs to the engine, not to
// any one repository.
type Repository interface {
	CreateConference(ctx context.Context, req CreateConferenceRequest) (*Conference, error)
	GetByName(ctx context.Context, name string) (*Conference, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Conference, error)

	// LockForUpdate performs a SELECT ... FOR UPDATE equivalent on the
	// conference row, establishing the total order per conference that
	// §5 requires. Must be called inside tx.
	LockForUpdate(tx *gorm.DB, name string) (*Conference, error)
	LockForUpdateByID(tx *gorm.DB, id uuid.UUID) (*Conference, error)

	DecrementAvailableSlots(tx *gorm.DB, id uuid.UUID) error
	IncrementAvailableSlots(tx *gorm.DB, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// CreateConference validates and inserts a conference plus its topic
// rows atomically, per §4.1.
func (r *repository) CreateConference(ctx context.Context, req CreateConferenceRequest) (*Conference, error) {
	start, err := time.Parse(TimestampLayout, req.Start)
	if err != nil {
		return nil, bookingerr.Wrap(bookingerr.Validation, "invalid start timestamp", err)
	}
	end, err := time.Parse(TimestampLayout, req.End)
	if err != nil {
		return nil, bookingerr.Wrap(bookingerr.Validation, "invalid end timestamp", err)
	}
	if !start.Before(end) {
		return nil, bookingerr.New(bookingerr.Validation, "start must be before end")
	}
	if end.Sub(start) > maxDuration {
		return nil, bookingerr.New(bookingerr.Validation, "conference duration exceeds 12 hours")
	}
	if req.Slots < 1 {
		return nil, bookingerr.New(bookingerr.Validation, "slots must be at least 1")
	}
	if len(req.Topics) > 10 {
		return nil, bookingerr.New(bookingerr.Validation, "at most 10 topics allowed")
	}

	conf := &Conference{
		Name:           req.Name,
		Location:       req.Location,
		Start:          start,
		End:            end,
		TotalSlots:     req.Slots,
		AvailableSlots: req.Slots,
		CreatedAt:      time.Now().UTC(),
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Conference{}).Where("name = ?", req.Name).Count(&count).Error; err != nil {
			return bookingerr.Wrap(bookingerr.Transient, "checking existing conference", err)
		}
		if count > 0 {
			return bookingerr.New(bookingerr.Conflict, "conference already exists")
		}

		if err := tx.Create(conf).Error; err != nil {
			if isUniqueViolation(err) {
				return bookingerr.New(bookingerr.Conflict, "conference already exists")
			}
			return bookingerr.Wrap(bookingerr.Transient, "creating conference", err)
		}

		seen := make(map[string]bool, len(req.Topics))
		rows := make([]Topic, 0, len(req.Topics))
		for _, topic := range req.Topics {
			if seen[topic] {
				continue
			}
			seen[topic] = true
			rows = append(rows, Topic{ConferenceID: conf.ID, Topic: topic})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return bookingerr.Wrap(bookingerr.Transient, "creating conference topics", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}

func (r *repository) GetByName(ctx context.Context, name string) (*Conference, error) {
	var conf Conference
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&conf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingerr.New(bookingerr.NotFound, "conference not found")
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "loading conference", err)
	}
	return &conf, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Conference, error) {
	var conf Conference
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingerr.New(bookingerr.NotFound, "conference not found")
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "loading conference", err)
	}
	return &conf, nil
}

func (r *repository) LockForUpdate(tx *gorm.DB, name string) (*Conference, error) {
	var conf Conference
	err := tx.Set("gorm:query_option", "FOR UPDATE").
		Where("name = ?", name).
		First(&conf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingerr.New(bookingerr.NotFound, "conference not found")
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "locking conference", err)
	}
	return &conf, nil
}

func (r *repository) LockForUpdateByID(tx *gorm.DB, id uuid.UUID) (*Conference, error) {
	var conf Conference
	err := tx.Set("gorm:query_option", "FOR UPDATE").
		Where("id = ?", id).
		First(&conf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingerr.New(bookingerr.NotFound, "conference not found")
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "locking conference", err)
	}
	return &conf, nil
}

func (r *repository) DecrementAvailableSlots(tx *gorm.DB, id uuid.UUID) error {
	res := tx.Model(&Conference{}).
		Where("id = ? AND available_slots > 0", id).
		UpdateColumn("available_slots", gorm.Expr("available_slots - 1"))
	if res.Error != nil {
		return bookingerr.Wrap(bookingerr.Transient, "decrementing available slots", res.Error)
	}
	if res.RowsAffected == 0 {
		return bookingerr.New(bookingerr.Conflict, "no available slots to decrement")
	}
	return nil
}

func (r *repository) IncrementAvailableSlots(tx *gorm.DB, id uuid.UUID) error {
	res := tx.Model(&Conference{}).
		Where("id = ?", id).
		UpdateColumn("available_slots", gorm.Expr("available_slots + 1"))
	if res.Error != nil {
		return bookingerr.Wrap(bookingerr.Transient, "incrementing available slots", res.Error)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint")
}
