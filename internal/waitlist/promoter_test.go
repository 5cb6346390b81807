package waitlist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"confwaitlist/internal/bookingerr"
	"confwaitlist/internal/bookingtest"
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/waitlist"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 10 * time.Second

func TestPromoteNext_PicksLowestPositionAndArmsDeadline(t *testing.T) {
	confRepo := bookingtest.NewConferenceRepo()
	bookRepo := bookingtest.NewBookingRepo().WithConferences(confRepo)
	armer := bookingtest.NewArmer()
	promoter := waitlist.NewPromoter(bookRepo, confRepo, armer, window)

	now := time.Now().UTC()
	conf := confRepo.Seed(&conferences.Conference{
		Name:           "C",
		Start:          now.Add(time.Hour),
		End:            now.Add(2 * time.Hour),
		TotalSlots:     1,
		AvailableSlots: 1,
		CreatedAt:      now,
	})

	posFirst, posSecond := 1, 2
	first := &bookings.Booking{ConferenceID: conf.ID, UserID: "u1", Status: bookings.StatusWaitlisted, WaitlistPosition: &posFirst}
	second := &bookings.Booking{ConferenceID: conf.ID, UserID: "u2", Status: bookings.StatusWaitlisted, WaitlistPosition: &posSecond}
	require.NoError(t, bookRepo.Create(nil, first))
	require.NoError(t, bookRepo.Create(nil, second))

	promoted, gotConf, err := promoter.PromoteNext(context.Background(), nil, conf.ID)
	require.NoError(t, err)
	require.NotNil(t, promoted)
	assert.Equal(t, first.ID, promoted.ID, "the lowest waitlist position is promoted first")
	assert.Equal(t, conf.ID, gotConf.ID)
	assert.Equal(t, bookings.StatusConfirmationPending, promoted.Status)
	assert.True(t, promoted.CanConfirm)
	assert.Nil(t, promoted.WaitlistPosition)
	require.NotNil(t, promoted.ConfirmationDeadline)
	assert.WithinDuration(t, now.Add(window), *promoted.ConfirmationDeadline, 2*time.Second)

	stillWaiting, err := bookRepo.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusWaitlisted, stillWaiting.Status, "only the head of the waitlist is touched")
}

func TestPromoteNext_NoWaitlistedBookingsIsANoOp(t *testing.T) {
	confRepo := bookingtest.NewConferenceRepo()
	bookRepo := bookingtest.NewBookingRepo().WithConferences(confRepo)
	armer := bookingtest.NewArmer()
	promoter := waitlist.NewPromoter(bookRepo, confRepo, armer, window)

	now := time.Now().UTC()
	conf := confRepo.Seed(&conferences.Conference{
		Name: "C", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour),
		TotalSlots: 1, AvailableSlots: 1, CreatedAt: now,
	})

	promoted, gotConf, err := promoter.PromoteNext(context.Background(), nil, conf.ID)
	require.NoError(t, err)
	assert.Nil(t, promoted)
	assert.Equal(t, conf.ID, gotConf.ID)
}

func TestArmTimer_PublishesExpiryForPromotedBooking(t *testing.T) {
	confRepo := bookingtest.NewConferenceRepo()
	bookRepo := bookingtest.NewBookingRepo().WithConferences(confRepo)
	armer := bookingtest.NewArmer()
	promoter := waitlist.NewPromoter(bookRepo, confRepo, armer, window)

	deadline := time.Now().UTC().Add(window)
	booking := &bookings.Booking{
		ID:                   mustBookingID(t, bookRepo, "u1"),
		Status:               bookings.StatusConfirmationPending,
		ConfirmationDeadline: &deadline,
	}

	err := promoter.ArmTimer(context.Background(), booking, "C")
	require.NoError(t, err)

	arm, ok := armer.LastExpiryArm()
	require.True(t, ok)
	assert.Equal(t, booking.ID, arm.BookingID)
	assert.Equal(t, "C", arm.ConferenceName)
	assert.Equal(t, deadline, arm.Deadline)
}

func TestArmTimer_NilDeadlineIsANoOp(t *testing.T) {
	confRepo := bookingtest.NewConferenceRepo()
	bookRepo := bookingtest.NewBookingRepo().WithConferences(confRepo)
	armer := bookingtest.NewArmer()
	promoter := waitlist.NewPromoter(bookRepo, confRepo, armer, window)

	booking := &bookings.Booking{ID: mustBookingID(t, bookRepo, "u1")}
	require.NoError(t, promoter.ArmTimer(context.Background(), booking, "C"))

	_, ok := armer.LastExpiryArm()
	assert.False(t, ok, "no deadline means nothing to arm")
}

func TestArmTimer_WrapsArmerFailureAsTransient(t *testing.T) {
	confRepo := bookingtest.NewConferenceRepo()
	bookRepo := bookingtest.NewBookingRepo().WithConferences(confRepo)
	armer := bookingtest.NewArmer()
	armer.ArmExpiryErr = errors.New("broker unavailable")
	promoter := waitlist.NewPromoter(bookRepo, confRepo, armer, window)

	deadline := time.Now().UTC().Add(window)
	booking := &bookings.Booking{ID: mustBookingID(t, bookRepo, "u1"), ConfirmationDeadline: &deadline}

	err := promoter.ArmTimer(context.Background(), booking, "C")
	require.Error(t, err)
	kerr, ok := bookingerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bookingerr.Transient, kerr.Kind)
}

func mustBookingID(t *testing.T, repo *bookingtest.BookingRepo, userID string) uuid.UUID {
	t.Helper()
	b := &bookings.Booking{UserID: userID, Status: bookings.StatusWaitlisted}
	require.NoError(t, repo.Create(nil, b))
	return b.ID
}
