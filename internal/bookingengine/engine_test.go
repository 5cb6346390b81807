package bookingengine_test

import (
	"context"
	"testing"
	"time"

	"confwaitlist/internal/bookingengine"
	"confwaitlist/internal/bookingerr"
	"confwaitlist/internal/bookingtest"
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/waitlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const confirmationWindow = 10 * time.Second

type harness struct {
	t        *testing.T
	confRepo *bookingtest.ConferenceRepo
	bookRepo *bookingtest.BookingRepo
	userRepo *bookingtest.UserRepo
	armer    *bookingtest.Armer
	engine   *bookingengine.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	confRepo := bookingtest.NewConferenceRepo()
	bookRepo := bookingtest.NewBookingRepo().WithConferences(confRepo)
	userRepo := bookingtest.NewUserRepo()
	armer := bookingtest.NewArmer()
	promoter := waitlist.NewPromoter(bookRepo, confRepo, armer, confirmationWindow)
	db := bookingtest.NewSQLiteDB(t)
	engine := bookingengine.New(db, confRepo, bookRepo, userRepo, promoter, armer)

	return &harness{t: t, confRepo: confRepo, bookRepo: bookRepo, userRepo: userRepo, armer: armer, engine: engine}
}

func (h *harness) seedConference(name string, slots int, start, end time.Time) *conferences.Conference {
	return h.confRepo.Seed(&conferences.Conference{
		Name:           name,
		Location:       "Somewhere",
		Start:          start,
		End:            end,
		TotalSlots:     slots,
		AvailableSlots: slots,
		CreatedAt:      time.Now().UTC(),
	})
}

func (h *harness) seedUser(id string) {
	h.userRepo.Seed(id)
}

// ---- Scenario 1: fill-and-wait ----

func TestCreateBooking_FillAndWait(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")
	h.seedUser("u2")

	b1, err := h.engine.CreateBooking(ctx, "C", "u1")
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusConfirmed, b1.Status)

	b2, err := h.engine.CreateBooking(ctx, "C", "u2")
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusWaitlisted, b2.Status)
	require.NotNil(t, b2.WaitlistPosition)
	assert.Equal(t, 1, *b2.WaitlistPosition)

	conf, err := h.confRepo.GetByName(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, 0, conf.AvailableSlots)
}

// ---- Scenario 2 & 3: cancel promotes, confirm on time ----

func TestCancel_PromotesWaitlistHead_AndConfirmSucceeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")
	h.seedUser("u2")

	b1, err := h.engine.CreateBooking(ctx, "C", "u1")
	require.NoError(t, err)
	b2, err := h.engine.CreateBooking(ctx, "C", "u2")
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusWaitlisted, b2.Status)

	_, err = h.engine.Cancel(ctx, b1.ID)
	require.NoError(t, err)

	promoted, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusConfirmationPending, promoted.Status)
	assert.True(t, promoted.CanConfirm)
	require.NotNil(t, promoted.ConfirmationDeadline)
	assert.WithinDuration(t, time.Now().UTC().Add(confirmationWindow), *promoted.ConfirmationDeadline, 2*time.Second)

	conf := h.confRepo.Snapshot(promoted.ConferenceID)
	assert.Equal(t, 1, conf.AvailableSlots, "available_slots reflects CONFIRMED holdings only; the reservation does not consume the counter")

	arm, ok := h.armer.LastExpiryArm()
	require.True(t, ok)
	assert.Equal(t, b2.ID, arm.BookingID)

	confirmed, err := h.engine.Confirm(ctx, b2.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusConfirmed, confirmed.Status)
	assert.Nil(t, confirmed.WaitlistPosition)
	assert.Nil(t, confirmed.ConfirmationDeadline)

	conf = h.confRepo.Snapshot(confirmed.ConferenceID)
	assert.Equal(t, 0, conf.AvailableSlots)
}

// ---- Scenario 4: forfeit by timeout ----

func TestForfeitExpired_ReturnsToTailAndPromotesNext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")
	h.seedUser("u2")
	h.seedUser("u3")

	b1, err := h.engine.CreateBooking(ctx, "C", "u1")
	require.NoError(t, err)
	b2, err := h.engine.CreateBooking(ctx, "C", "u2")
	require.NoError(t, err)
	b3, err := h.engine.CreateBooking(ctx, "C", "u3")
	require.NoError(t, err)

	_, err = h.engine.Cancel(ctx, b1.ID)
	require.NoError(t, err)

	pending, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	require.Equal(t, bookings.StatusConfirmationPending, pending.Status)

	affected, err := h.engine.ForfeitExpired(ctx, b2.ID, "C")
	require.NoError(t, err)
	assert.True(t, affected)

	forfeited, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusWaitlisted, forfeited.Status)
	require.NotNil(t, forfeited.WaitlistPosition)
	assert.Equal(t, 3, *forfeited.WaitlistPosition, "forfeited booking goes to the tail (behind u3's position 2), not back to position 1")

	promoted, err := h.bookRepo.GetByID(ctx, b3.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusConfirmationPending, promoted.Status, "u3 (pos 2) is promoted once u2 forfeits")
}

// P5: replaying an expiry is idempotent.
func TestForfeitExpired_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")
	h.seedUser("u2")
	h.seedUser("u3")

	// u3 waits behind u2, so the forfeit promotes u3 and leaves u2
	// WAITLISTED; with u2 alone on the waitlist the promoter would hand
	// the freed slot straight back to u2.
	b1, _ := h.engine.CreateBooking(ctx, "C", "u1")
	b2, _ := h.engine.CreateBooking(ctx, "C", "u2")
	_, err := h.engine.CreateBooking(ctx, "C", "u3")
	require.NoError(t, err)
	_, err = h.engine.Cancel(ctx, b1.ID)
	require.NoError(t, err)

	affected1, err := h.engine.ForfeitExpired(ctx, b2.ID, "C")
	require.NoError(t, err)
	assert.True(t, affected1)

	after1, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)

	affected2, err := h.engine.ForfeitExpired(ctx, b2.ID, "C")
	require.NoError(t, err)
	assert.False(t, affected2, "replaying after the booking already moved on is a no-op")

	after2, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, after1.Status, after2.Status)
	assert.Equal(t, after1.WaitlistPosition, after2.WaitlistPosition)
}

// P6: ownership — a non-owning confirm never transitions the booking or
// decrements slots.
func TestConfirm_RejectsNonOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")
	h.seedUser("u2")
	h.seedUser("intruder")

	b1, _ := h.engine.CreateBooking(ctx, "C", "u1")
	b2, _ := h.engine.CreateBooking(ctx, "C", "u2")
	_, err := h.engine.Cancel(ctx, b1.ID)
	require.NoError(t, err)

	before, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	beforeConf := h.confRepo.Snapshot(before.ConferenceID)

	_, err = h.engine.Confirm(ctx, b2.ID, "intruder")
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.StateViolation, kerr.Kind)

	after, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	afterConf := h.confRepo.Snapshot(after.ConferenceID)
	assert.Equal(t, beforeConf.AvailableSlots, afterConf.AvailableSlots)
}

func TestConfirm_RejectsAfterDeadline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")
	h.seedUser("u2")

	b1, _ := h.engine.CreateBooking(ctx, "C", "u1")
	b2, _ := h.engine.CreateBooking(ctx, "C", "u2")
	_, err := h.engine.Cancel(ctx, b1.ID)
	require.NoError(t, err)

	pending, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	expired := time.Now().UTC().Add(-1 * time.Second)
	pending.ConfirmationDeadline = &expired
	require.NoError(t, h.bookRepo.UpdateStatus(nil, pending))

	_, err = h.engine.Confirm(ctx, b2.ID, "u2")
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.StateViolation, kerr.Kind)
}

// ---- Scenario 5: direct-book blocked by pending ----

func TestCreateBooking_BlockedByPendingConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")
	h.seedUser("u2")
	h.seedUser("u3")

	b1, _ := h.engine.CreateBooking(ctx, "C", "u1")
	_, err := h.engine.CreateBooking(ctx, "C", "u2")
	require.NoError(t, err)
	_, err = h.engine.Cancel(ctx, b1.ID)
	require.NoError(t, err)

	conf, err := h.confRepo.GetByName(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, 1, conf.AvailableSlots, "canceling the confirmed booking frees its slot in the counter even though the freed slot is immediately reserved, not reconfirmed")

	b3, err := h.engine.CreateBooking(ctx, "C", "u3")
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusWaitlisted, b3.Status, "P7: a pending confirmer blocks direct confirmation")
}

// ---- Scenario 6: conference start purge ----

func TestPurgeNonConfirmedAtStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")
	h.seedUser("u2")
	h.seedUser("u3")

	b1, _ := h.engine.CreateBooking(ctx, "C", "u1")
	b2, _ := h.engine.CreateBooking(ctx, "C", "u2")
	_, err := h.engine.CreateBooking(ctx, "C", "u3")
	require.NoError(t, err)
	_, err = h.engine.Cancel(ctx, b1.ID)
	require.NoError(t, err)

	pending, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	require.Equal(t, bookings.StatusConfirmationPending, pending.Status)

	purged, err := h.engine.PurgeNonConfirmedAtStart(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged, "the pending booking and the remaining waitlisted one are both purged")

	got2, err := h.bookRepo.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCanceled, got2.Status)
	assert.NotNil(t, got2.CanceledAt)

	assert.Contains(t, h.armer.QueuesDeleted, "C")
}

// ---- Scenario 7: overlap cascade ----

func TestConfirm_CascadeCancelsOverlappingWaitlist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	confA := h.seedConference("A", 1, now.Add(24*time.Hour), now.Add(25*time.Hour))
	confB := h.seedConference("B", 1, now.Add(24*time.Hour+30*time.Minute), now.Add(25*time.Hour+30*time.Minute))
	h.seedUser("u1")

	// u1 holds a CONFIRMATION_PENDING reservation on A and, seeded
	// directly rather than through the engine's overlap guard, a
	// WAITLISTED entry on the overlapping conference B.
	deadline := now.Add(time.Hour)
	bA := &bookings.Booking{ConferenceID: confA.ID, UserID: "u1", Status: bookings.StatusConfirmationPending, CanConfirm: true, ConfirmationDeadline: &deadline}
	require.NoError(t, h.bookRepo.Create(nil, bA))

	position := 1
	bB := &bookings.Booking{ConferenceID: confB.ID, UserID: "u1", Status: bookings.StatusWaitlisted, WaitlistPosition: &position}
	require.NoError(t, h.bookRepo.Create(nil, bB))

	_, err := h.engine.Confirm(ctx, bA.ID, "u1")
	require.NoError(t, err)

	gotB, err := h.bookRepo.GetByID(ctx, bB.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCanceled, gotB.Status, "overlapping waitlist entry on B is auto-canceled once A is confirmed")
}

// P2/P1: creating a duplicate active booking for the same (user,
// conference) is rejected, and available_slots is never double-debited.
func TestCreateBooking_RejectsDuplicateActiveBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 5, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")

	_, err := h.engine.CreateBooking(ctx, "C", "u1")
	require.NoError(t, err)

	_, err = h.engine.CreateBooking(ctx, "C", "u1")
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.Conflict, kerr.Kind)

	conf, err := h.confRepo.GetByName(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, 4, conf.AvailableSlots)
}

func TestCreateBooking_RejectsOverlappingBookingOnAnotherConference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("A", 5, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedConference("B", 5, now.Add(time.Hour+30*time.Minute), now.Add(3*time.Hour))
	h.seedUser("u1")

	_, err := h.engine.CreateBooking(ctx, "A", "u1")
	require.NoError(t, err)

	_, err = h.engine.CreateBooking(ctx, "B", "u1")
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.Conflict, kerr.Kind)
}

func TestCreateBooking_RejectsAfterConferenceStarted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 5, now.Add(-time.Hour), now.Add(time.Hour))
	h.seedUser("u1")

	_, err := h.engine.CreateBooking(ctx, "C", "u1")
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.Validation, kerr.Kind)
}

func TestCancel_AlreadyCanceledIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))
	h.seedUser("u1")

	b1, err := h.engine.CreateBooking(ctx, "C", "u1")
	require.NoError(t, err)
	_, err = h.engine.Cancel(ctx, b1.ID)
	require.NoError(t, err)

	_, err = h.engine.Cancel(ctx, b1.ID)
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.StateViolation, kerr.Kind)
}

func TestCreateBooking_UnknownUserIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h.seedConference("C", 1, now.Add(time.Hour), now.Add(2*time.Hour))

	_, err := h.engine.CreateBooking(ctx, "C", "ghost")
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.NotFound, kerr.Kind)
}

func TestCreateBooking_UnknownConferenceIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser("u1")

	_, err := h.engine.CreateBooking(ctx, "nope", "u1")
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.NotFound, kerr.Kind)
}

