package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randevubu/randevubu-server/internal/models"
	apperrors "github.com/randevubu/randevubu-server/pkg/errors"
)

var testNow = time.Date(2030, time.March, 4, 6, 0, 0, 0, time.UTC)

type bookingFixture struct {
	*fixture
	business *models.Business
	service  *models.Service
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	f := newFixture(t)
	f.appointments.now = func() time.Time { return testNow }
	business := f.createBusiness(t, "Berber")
	return &bookingFixture{fixture: f, business: business, service: f.createService(t, business.ID)}
}

func (f *bookingFixture) book(t *testing.T, customer string, startsAt time.Time) *models.Appointment {
	t.Helper()
	appointment, err := f.appointments.Book(context.Background(), BookAppointmentInput{
		BusinessID: f.business.ID,
		ServiceID:  f.service.ID,
		CustomerID: customer,
		StartsAt:   startsAt,
	})
	require.NoError(t, err)
	return appointment
}

func TestAppointmentServiceBookRejectsOverlaps(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	start := testNow.Add(time.Hour)

	first := f.book(t, "cust-1", start)
	require.Equal(t, models.AppointmentPending, first.Status)
	require.Equal(t, start.Add(30*time.Minute), first.EndsAt)

	_, err := f.appointments.Book(ctx, BookAppointmentInput{
		BusinessID: f.business.ID,
		ServiceID:  f.service.ID,
		CustomerID: "cust-2",
		StartsAt:   start.Add(15 * time.Minute),
	})
	require.ErrorIs(t, err, ErrSlotTaken)

	f.book(t, "cust-2", first.EndsAt)

	_, err = f.appointments.Cancel(ctx, first.ID)
	require.NoError(t, err)
	f.book(t, "cust-3", start)

	summary := f.monitor.Snapshot()
	require.Equal(t, uint64(3), summary.Bookings.Booked)
	require.Equal(t, uint64(1), summary.Bookings.SlotTaken)
	require.Zero(t, summary.Bookings.Errors)
}

func TestAppointmentServiceBookValidates(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.appointments.Book(ctx, BookAppointmentInput{
		BusinessID: f.business.ID,
		ServiceID:  f.service.ID,
		CustomerID: "cust-1",
		StartsAt:   testNow.Add(-time.Hour),
	})
	require.Error(t, err)
	require.Equal(t, "BAD_REQUEST", apperrors.FromError(err).Code)

	_, err = f.appointments.Book(ctx, BookAppointmentInput{
		BusinessID: f.business.ID,
		ServiceID:  "missing",
		CustomerID: "cust-1",
		StartsAt:   testNow.Add(time.Hour),
	})
	require.ErrorIs(t, err, ErrServiceNotFound)

	inactive := false
	_, err = f.offerings.Update(ctx, f.business.ID, f.service.ID, UpdateServiceInput{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.appointments.Book(ctx, BookAppointmentInput{
		BusinessID: f.business.ID,
		ServiceID:  f.service.ID,
		CustomerID: "cust-1",
		StartsAt:   testNow.Add(time.Hour),
	})
	require.Error(t, err)
	require.Equal(t, "BAD_REQUEST", apperrors.FromError(err).Code)
}

func TestAppointmentServiceStatusChangesInvalidate(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	appointment := f.book(t, "cust-1", testNow.Add(time.Hour))

	got, err := f.appointments.Get(ctx, appointment.ID)
	require.NoError(t, err)
	require.Equal(t, models.AppointmentPending, got.Status)
	require.True(t, f.cached(t, "v2:appointment:"+appointment.ID))

	_, err = f.appointments.UpdateStatus(ctx, appointment.ID, "Confirmed")
	require.NoError(t, err)
	require.False(t, f.cached(t, "v2:appointment:"+appointment.ID))

	got, err = f.appointments.Get(ctx, appointment.ID)
	require.NoError(t, err)
	require.Equal(t, models.AppointmentConfirmed, got.Status)

	_, err = f.appointments.UpdateStatus(ctx, appointment.ID, "teleported")
	require.Error(t, err)

	_, err = f.appointments.Cancel(ctx, appointment.ID)
	require.NoError(t, err)
	_, err = f.appointments.UpdateStatus(ctx, appointment.ID, models.AppointmentConfirmed)
	require.Error(t, err)
	require.Equal(t, "CONFLICT", apperrors.FromError(err).Code)
}

func TestAppointmentServiceListsAreInvalidatedByBooking(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	f.book(t, "cust-1", testNow.Add(time.Hour))

	page, err := f.appointments.ListForBusiness(ctx, f.business.ID, ListAppointmentsOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	upcoming, err := f.appointments.ListForCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, upcoming, 1)

	second := f.book(t, "cust-1", testNow.Add(2*time.Hour))

	page, err = f.appointments.ListForBusiness(ctx, f.business.ID, ListAppointmentsOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	upcoming, err = f.appointments.ListForCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, upcoming, 2)

	_, err = f.appointments.Cancel(ctx, second.ID)
	require.NoError(t, err)

	cancelled, err := f.appointments.ListForBusiness(ctx, f.business.ID, ListAppointmentsOptions{Status: "cancelled"})
	require.NoError(t, err)
	require.EqualValues(t, 1, cancelled.Total)
	require.Equal(t, second.ID, cancelled.Items[0].ID)

	window, err := f.appointments.ListForBusiness(ctx, f.business.ID, ListAppointmentsOptions{
		From: testNow,
		To:   testNow.Add(90 * time.Minute),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, window.Total)

	upcoming, err = f.appointments.ListForCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
}

func TestAppointmentServiceStats(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	first := f.book(t, "cust-1", testNow.Add(time.Hour))
	f.book(t, "cust-2", testNow.Add(2*time.Hour))
	f.book(t, "cust-3", testNow.Add(48*time.Hour))

	stats, err := f.appointments.Stats(ctx, f.business.ID, testNow)
	require.NoError(t, err)
	require.Equal(t, "2030-03-04", stats.Date)
	require.EqualValues(t, 2, stats.Total)
	require.EqualValues(t, 2, stats.ByStatus[models.AppointmentPending])
	require.Zero(t, stats.RevenueCents)

	_, err = f.appointments.UpdateStatus(ctx, first.ID, models.AppointmentCompleted)
	require.NoError(t, err)

	stats, err = f.appointments.Stats(ctx, f.business.ID, testNow)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.ByStatus[models.AppointmentCompleted])
	require.EqualValues(t, 1, stats.ByStatus[models.AppointmentPending])
	require.Equal(t, f.service.PriceCents, stats.RevenueCents)
}

func TestAppointmentServiceQueue(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	soon := f.book(t, "cust-1", testNow.Add(time.Hour))
	f.book(t, "cust-2", testNow.Add(24*time.Hour))

	queue, err := f.appointments.Queue(ctx, f.business.ID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, soon.ID, queue[0].ID)
	require.NotNil(t, queue[0].Service)
	require.Equal(t, f.service.Name, queue[0].Service.Name)

	_, err = f.appointments.Cancel(ctx, soon.ID)
	require.NoError(t, err)
	queue, err = f.appointments.Queue(ctx, f.business.ID)
	require.NoError(t, err)
	require.Empty(t, queue)
}

func TestAppointmentServiceBooksWhileCacheIsDown(t *testing.T) {
	f := newBookingFixture(t)
	f.store.setDown(true)

	appointment := f.book(t, "cust-1", testNow.Add(time.Hour))
	got, err := f.appointments.Get(context.Background(), appointment.ID)
	require.NoError(t, err)
	require.Equal(t, appointment.ID, got.ID)
}

func TestOfferingServiceDeleteRejectsBookedService(t *testing.T) {
	f := newBookingFixture(t)
	f.book(t, "cust-1", testNow.Add(time.Hour))

	err := f.offerings.Delete(context.Background(), f.business.ID, f.service.ID)
	require.Error(t, err)
	require.Equal(t, "CONFLICT", apperrors.FromError(err).Code)
}
