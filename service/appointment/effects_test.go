package appointment

import (
	"fmt"
	"testing"
	"time"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/service/notify"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeMailer struct {
	sent       []string
	recipients []string
}

func (m *fakeMailer) Send(to []string, subject, body string) error {
	m.sent = append(m.sent, subject)
	m.recipients = append(m.recipients, to...)
	return nil
}

func (m *fakeMailer) SendWithAttachment(to []string, subject, body, filename, mimeType string, data []byte) error {
	m.sent = append(m.sent, subject)
	m.recipients = append(m.recipients, to...)
	return nil
}

type fakeDispatcher struct {
	topics []string
}

func (d *fakeDispatcher) Notify(topic string, payload notify.Payload) error {
	d.topics = append(d.topics, topic)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.KrisshakProfile{},
		&models.BhooswamiProfile{},
		&models.Appointment{},
		&models.CalendarEvent{},
		&models.Notification{},
	))
	return db
}

func seedAppointment(t *testing.T, db *gorm.DB) *models.Appointment {
	t.Helper()
	krisshak := models.User{Email: "krisshak@example.com", Name: "K", Role: models.RoleKrisshak}
	bhooswami := models.User{Email: "bhooswami@example.com", Name: "B", Role: models.RoleBhooswami}
	require.NoError(t, db.Create(&krisshak).Error)
	require.NoError(t, db.Create(&bhooswami).Error)

	appointment := models.Appointment{
		KrisshakID:    krisshak.ID,
		BhooswamiID:   bhooswami.ID,
		Date:          time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		Time:          time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC),
		Status:        models.AppointmentConfirmed,
		PaymentStatus: models.PaymentStatusNotPaid,
	}
	require.NoError(t, db.Create(&appointment).Error)
	return &appointment
}

func TestRunCreatesMirrorsOnce(t *testing.T) {
	db := setupTestDB(t)
	mailer := &fakeMailer{}
	dispatcher := &fakeDispatcher{}
	effects := NewSideEffects(db, mailer, dispatcher, nil)

	appointment := seedAppointment(t, db)
	effects.Run(appointment)

	var events, notifications int64
	db.Model(&models.CalendarEvent{}).Count(&events)
	db.Model(&models.Notification{}).Count(&notifications)
	require.EqualValues(t, 2, events)
	require.EqualValues(t, 2, notifications)

	// Each participant gets their own confirmation email.
	require.Len(t, mailer.sent, 2)
	require.Contains(t, mailer.recipients, "krisshak@example.com")
	require.Contains(t, mailer.recipients, "bhooswami@example.com")

	// A second run for the same unchanged appointment changes nothing in
	// the calendar or the notification table.
	effects.Run(appointment)
	db.Model(&models.CalendarEvent{}).Count(&events)
	db.Model(&models.Notification{}).Count(&notifications)
	require.EqualValues(t, 2, events)
	require.EqualValues(t, 2, notifications)
}

func TestRunUpdatesEventInPlaceOnReschedule(t *testing.T) {
	db := setupTestDB(t)
	effects := NewSideEffects(db, &fakeMailer{}, &fakeDispatcher{}, nil)

	appointment := seedAppointment(t, db)
	effects.Run(appointment)

	appointment.Date = appointment.Date.AddDate(0, 0, 3)
	appointment.Time = appointment.Time.AddDate(0, 0, 3)
	require.NoError(t, db.Save(appointment).Error)
	effects.Run(appointment)

	var events []models.CalendarEvent
	require.NoError(t, db.Where("related_appointment_id = ?", appointment.ID).Find(&events).Error)
	require.Len(t, events, 2)
	for _, event := range events {
		require.True(t, event.Date.Equal(appointment.Date))
		require.Equal(t, models.EventAppointment, event.EventType)
	}
}

func TestRunSkipsPendingAppointments(t *testing.T) {
	db := setupTestDB(t)
	effects := NewSideEffects(db, &fakeMailer{}, &fakeDispatcher{}, nil)

	appointment := seedAppointment(t, db)
	appointment.Status = models.AppointmentPending
	require.NoError(t, db.Save(appointment).Error)

	effects.Run(appointment)

	var events int64
	db.Model(&models.CalendarEvent{}).Count(&events)
	require.EqualValues(t, 0, events)
}
