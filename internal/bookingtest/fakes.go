// Package bookingtest provides in-memory fakes for the Persistence
// Gateway interfaces and the Timer/Event Bus seams (ExpiryArmer,
// StartArmer, WaitlistHousekeeper), plus a throwaway sqlite-backed
// *gorm.DB for driving gorm's transaction plumbing in tests. The fakes
// ignore the tx handle they are passed — they hold their own
// mutex-protected state instead of issuing SQL — so tests never depend
// on "SELECT ... FOR UPDATE" being valid syntax on the test database.
package bookingtest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"confwaitlist/internal/bookingerr"
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/users"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewSQLiteDB opens an in-memory sqlite database (shared-cache, so every
// caller in the test process gets the same one) for the sole
// purpose of giving the Booking Engine a real *gorm.DB to call
// .Transaction() on; no table is ever created in it because the fake
// repositories below never issue SQL against the tx they are handed.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	return db
}

// ---- Conferences ----

type ConferenceRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*conferences.Conference
	byName  map[string]uuid.UUID
	CreateN int
}

func NewConferenceRepo() *ConferenceRepo {
	return &ConferenceRepo{
		byID:   make(map[uuid.UUID]*conferences.Conference),
		byName: make(map[string]uuid.UUID),
	}
}

// Seed registers a conference directly, bypassing CreateConference's
// validation, for tests that want to start from a known state.
func (r *ConferenceRepo) Seed(c *conferences.Conference) *conferences.Conference {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	r.byID[c.ID] = &cp
	r.byName[c.Name] = c.ID
	return &cp
}

func (r *ConferenceRepo) CreateConference(ctx context.Context, req conferences.CreateConferenceRequest) (*conferences.Conference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CreateN++
	if _, exists := r.byName[req.Name]; exists {
		return nil, bookingerr.New(bookingerr.Conflict, "conference already exists")
	}
	start, err := time.Parse(conferences.TimestampLayout, req.Start)
	if err != nil {
		return nil, bookingerr.Wrap(bookingerr.Validation, "invalid start timestamp", err)
	}
	end, err := time.Parse(conferences.TimestampLayout, req.End)
	if err != nil {
		return nil, bookingerr.Wrap(bookingerr.Validation, "invalid end timestamp", err)
	}
	if !start.Before(end) {
		return nil, bookingerr.New(bookingerr.Validation, "start must be before end")
	}
	if end.Sub(start) > 12*time.Hour {
		return nil, bookingerr.New(bookingerr.Validation, "conference duration exceeds 12 hours")
	}
	if req.Slots < 1 {
		return nil, bookingerr.New(bookingerr.Validation, "slots must be at least 1")
	}
	if len(req.Topics) > 10 {
		return nil, bookingerr.New(bookingerr.Validation, "at most 10 topics allowed")
	}
	conf := &conferences.Conference{
		ID:             uuid.New(),
		Name:           req.Name,
		Location:       req.Location,
		Start:          start,
		End:            end,
		TotalSlots:     req.Slots,
		AvailableSlots: req.Slots,
		CreatedAt:      time.Now().UTC(),
	}
	r.byID[conf.ID] = conf
	r.byName[conf.Name] = conf.ID
	cp := *conf
	return &cp, nil
}

func (r *ConferenceRepo) get(id uuid.UUID) (*conferences.Conference, error) {
	conf, ok := r.byID[id]
	if !ok {
		return nil, bookingerr.New(bookingerr.NotFound, "conference not found")
	}
	cp := *conf
	return &cp, nil
}

func (r *ConferenceRepo) GetByName(ctx context.Context, name string) (*conferences.Conference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, bookingerr.New(bookingerr.NotFound, "conference not found")
	}
	return r.get(id)
}

func (r *ConferenceRepo) GetByID(ctx context.Context, id uuid.UUID) (*conferences.Conference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *ConferenceRepo) LockForUpdate(tx *gorm.DB, name string) (*conferences.Conference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, bookingerr.New(bookingerr.NotFound, "conference not found")
	}
	return r.get(id)
}

func (r *ConferenceRepo) LockForUpdateByID(tx *gorm.DB, id uuid.UUID) (*conferences.Conference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *ConferenceRepo) DecrementAvailableSlots(tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conf, ok := r.byID[id]
	if !ok {
		return bookingerr.New(bookingerr.NotFound, "conference not found")
	}
	if conf.AvailableSlots <= 0 {
		return bookingerr.New(bookingerr.Conflict, "no available slots to decrement")
	}
	conf.AvailableSlots--
	return nil
}

func (r *ConferenceRepo) IncrementAvailableSlots(tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conf, ok := r.byID[id]
	if !ok {
		return bookingerr.New(bookingerr.NotFound, "conference not found")
	}
	conf.AvailableSlots++
	return nil
}

// Snapshot returns a copy of the conference's current state, for
// assertions.
func (r *ConferenceRepo) Snapshot(id uuid.UUID) conferences.Conference {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.byID[id]
}

// ---- Bookings ----

type BookingRepo struct {
	mu             sync.Mutex
	byID           map[uuid.UUID]*bookings.Booking
	intervalLookup ConferenceIntervalLookup
}

func NewBookingRepo() *BookingRepo {
	return &BookingRepo{byID: make(map[uuid.UUID]*bookings.Booking)}
}

func (r *BookingRepo) Create(tx *gorm.DB, booking *bookings.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	cp := *booking
	r.byID[booking.ID] = &cp
	return nil
}

func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*bookings.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, bookingerr.New(bookingerr.NotFound, "booking not found")
	}
	cp := *b
	return &cp, nil
}

func (r *BookingRepo) LockForUpdate(tx *gorm.DB, id uuid.UUID) (*bookings.Booking, error) {
	return r.GetByID(context.Background(), id)
}

func (r *BookingRepo) UpdateStatus(tx *gorm.DB, booking *bookings.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[booking.ID]; !ok {
		return bookingerr.New(bookingerr.NotFound, "booking not found")
	}
	cp := *booking
	r.byID[booking.ID] = &cp
	return nil
}

func (r *BookingRepo) ListByConferenceID(ctx context.Context, conferenceID uuid.UUID) ([]bookings.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bookings.Booking
	for _, b := range r.byID {
		if b.ConferenceID == conferenceID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *BookingRepo) ExistingActiveBooking(tx *gorm.DB, userID string, conferenceID uuid.UUID) (*uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byID {
		if b.UserID == userID && b.ConferenceID == conferenceID && b.Status != bookings.StatusCanceled {
			id := b.ID
			return &id, nil
		}
	}
	return nil, nil
}

// ConferenceIntervalLookup lets the in-memory booking repo resolve the
// conference intervals it needs for the overlap predicate, mirroring
// the real repository's join to the conferences table.
type ConferenceIntervalLookup interface {
	Snapshot(id uuid.UUID) conferences.Conference
}

func (r *BookingRepo) HasOverlappingActiveBooking(tx *gorm.DB, userID string, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	confRepo := r.intervalLookup
	if confRepo == nil {
		return false, nil
	}
	for _, b := range r.byID {
		if b.UserID != userID || b.Status == bookings.StatusCanceled {
			continue
		}
		conf := confRepo.Snapshot(b.ConferenceID)
		if conf.Start.Before(end) && start.Before(conf.End) {
			return true, nil
		}
	}
	return false, nil
}

// WithConferences wires the conference lookup that
// HasOverlappingActiveBooking and CascadeCancelOverlappingWaitlists use
// in place of a real join.
func (r *BookingRepo) WithConferences(lookup ConferenceIntervalLookup) *BookingRepo {
	r.intervalLookup = lookup
	return r
}

func (r *BookingRepo) NextWaitlistPosition(tx *gorm.DB, conferenceID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, b := range r.byID {
		if b.ConferenceID == conferenceID && b.Status == bookings.StatusWaitlisted && b.WaitlistPosition != nil {
			if *b.WaitlistPosition > max {
				max = *b.WaitlistPosition
			}
		}
	}
	return max + 1, nil
}

func (r *BookingRepo) CountByStatus(tx *gorm.DB, conferenceID uuid.UUID, status bookings.Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.byID {
		if b.ConferenceID == conferenceID && b.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *BookingRepo) NextWaitlisted(tx *gorm.DB, conferenceID uuid.UUID) (*bookings.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *bookings.Booking
	for _, b := range r.byID {
		if b.ConferenceID != conferenceID || b.Status != bookings.StatusWaitlisted || b.WaitlistPosition == nil {
			continue
		}
		if best == nil || *b.WaitlistPosition < *best.WaitlistPosition {
			best = b
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *BookingRepo) CascadeCancelOverlappingWaitlists(tx *gorm.DB, userID string, start, end time.Time, exceptConferenceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	confRepo := r.intervalLookup
	if confRepo == nil {
		return nil
	}
	now := time.Now().UTC()
	for _, b := range r.byID {
		if b.UserID != userID || b.Status != bookings.StatusWaitlisted || b.ConferenceID == exceptConferenceID {
			continue
		}
		conf := confRepo.Snapshot(b.ConferenceID)
		if conf.Start.Before(end) && start.Before(conf.End) {
			b.Status = bookings.StatusCanceled
			b.CanceledAt = &now
			b.CanConfirm = false
			b.ConfirmationDeadline = nil
			b.WaitlistPosition = nil
		}
	}
	return nil
}

func (r *BookingRepo) CancelNonConfirmedForConference(tx *gorm.DB, conferenceID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, b := range r.byID {
		if b.ConferenceID != conferenceID {
			continue
		}
		if b.Status == bookings.StatusWaitlisted || b.Status == bookings.StatusConfirmationPending {
			b.Status = bookings.StatusCanceled
			b.CanceledAt = &now
			b.CanConfirm = false
			b.ConfirmationDeadline = nil
			b.WaitlistPosition = nil
			n++
		}
	}
	return n, nil
}

// ---- Users ----

type UserRepo struct {
	mu    sync.Mutex
	users map[string]*users.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]*users.User)}
}

func (r *UserRepo) Seed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = &users.User{ID: id, CreatedAt: time.Now().UTC()}
}

func (r *UserRepo) CreateUser(ctx context.Context, userID string, topics []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; ok {
		return bookingerr.New(bookingerr.Conflict, "user already exists")
	}
	r.users[userID] = &users.User{ID: userID, CreatedAt: time.Now().UTC()}
	return nil
}

func (r *UserRepo) GetUser(ctx context.Context, userID string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, bookingerr.New(bookingerr.NotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) Exists(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok, nil
}

// ---- Timer/Event Bus seams ----

// Armer fakes both waitlist.ExpiryArmer and conferences.StartArmer, and
// the bookingengine.WaitlistHousekeeper interface, recording every call
// so tests can assert on what would have been published.
type Armer struct {
	mu sync.Mutex

	ExpiryArmed   []ExpiryArm
	StartsArmed   []StartArm
	QueuesEnsured []string
	QueuesDeleted []string
	ArmExpiryErr  error
	ArmStartErr   error
}

type ExpiryArm struct {
	BookingID      uuid.UUID
	Deadline       time.Time
	ConferenceName string
}

type StartArm struct {
	ConferenceName string
	Start          time.Time
}

func NewArmer() *Armer { return &Armer{} }

func (a *Armer) ArmConfirmationExpiry(ctx context.Context, bookingID uuid.UUID, deadline time.Time, conferenceName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ArmExpiryErr != nil {
		return a.ArmExpiryErr
	}
	a.ExpiryArmed = append(a.ExpiryArmed, ExpiryArm{bookingID, deadline, conferenceName})
	return nil
}

func (a *Armer) ArmConferenceStart(ctx context.Context, conferenceName string, start time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ArmStartErr != nil {
		return a.ArmStartErr
	}
	a.StartsArmed = append(a.StartsArmed, StartArm{conferenceName, start})
	return nil
}

func (a *Armer) EnsureWaitlistQueue(ctx context.Context, conferenceName string, bookingID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.QueuesEnsured = append(a.QueuesEnsured, conferenceName)
}

func (a *Armer) DeleteWaitlistQueue(ctx context.Context, conferenceName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.QueuesDeleted = append(a.QueuesDeleted, conferenceName)
}

func (a *Armer) LastExpiryArm() (ExpiryArm, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.ExpiryArmed) == 0 {
		return ExpiryArm{}, false
	}
	return a.ExpiryArmed[len(a.ExpiryArmed)-1], true
}
