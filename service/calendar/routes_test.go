package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/ekrisshak/ekrisshak-server/service/notify"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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
		&models.Appointment{},
		&models.CalendarEvent{},
		&models.Notification{},
	))
	return db
}

func newTestRouter(db *gorm.DB) (*mux.Router, *fakeDispatcher) {
	dispatcher := &fakeDispatcher{}
	h := NewCalendarHandler(db, dispatcher)
	router := mux.NewRouter()
	router.HandleFunc("/calendar/events", h.ListEvents).Methods("GET")
	router.HandleFunc("/calendar/events", h.CreateEvent).Methods("POST")
	router.HandleFunc("/calendar/events/{id}", h.UpdateEvent).Methods("PUT")
	router.HandleFunc("/calendar/events/{id}", h.DeleteEvent).Methods("DELETE")
	return router, dispatcher
}

func doRequest(router *mux.Router, method, target string, body any, userID uint) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, userID))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := models.User{Email: email, Name: email, Role: models.RoleKrisshak}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func TestCreateManualEvent(t *testing.T) {
	db := setupTestDB(t)
	router, dispatcher := newTestRouter(db)

	user := createUser(t, db, "user@example.com")

	resp := doRequest(router, "POST", "/calendar/events", map[string]any{
		"title": "Sowing",
		"date":  time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		"time":  time.Date(2026, 9, 15, 7, 0, 0, 0, time.UTC),
	}, user.ID)
	require.Equal(t, http.StatusCreated, resp.Code)

	var event models.CalendarEvent
	require.NoError(t, db.First(&event).Error)
	require.Equal(t, models.EventManual, event.EventType)
	require.Equal(t, user.ID, event.UserID)

	// Creation also raised a calendar notification.
	var count int64
	db.Model(&models.Notification{}).
		Where("recipient_id = ? AND notification_type = ?", user.ID, models.NotificationCalendar).
		Count(&count)
	require.EqualValues(t, 1, count)
	require.Contains(t, dispatcher.topics, notify.UserTopic(user.ID))
}

func TestListEventsScopedToUser(t *testing.T) {
	db := setupTestDB(t)
	router, _ := newTestRouter(db)

	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")
	require.NoError(t, db.Create(&models.CalendarEvent{
		UserID: alice.ID, Title: "Mine", EventType: models.EventManual,
	}).Error)
	require.NoError(t, db.Create(&models.CalendarEvent{
		UserID: bob.ID, Title: "Theirs", EventType: models.EventManual,
	}).Error)

	resp := doRequest(router, "GET", "/calendar/events", nil, alice.ID)
	require.Equal(t, http.StatusOK, resp.Code)

	var events []models.CalendarEvent
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &events))
	require.Len(t, events, 1)
	require.Equal(t, "Mine", events[0].Title)
}

func TestAppointmentEventsAreReadOnly(t *testing.T) {
	db := setupTestDB(t)
	router, _ := newTestRouter(db)

	user := createUser(t, db, "user@example.com")
	other := createUser(t, db, "other@example.com")

	appointment := models.Appointment{
		KrisshakID:  user.ID,
		BhooswamiID: other.ID,
		Date:        time.Now(),
		Time:        time.Now(),
		Status:      models.AppointmentConfirmed,
	}
	require.NoError(t, db.Create(&appointment).Error)

	event := models.CalendarEvent{
		UserID:               user.ID,
		Title:                "Appointment",
		EventType:            models.EventAppointment,
		RelatedAppointmentID: &appointment.ID,
	}
	require.NoError(t, db.Create(&event).Error)

	resp := doRequest(router, "PUT", fmt.Sprintf("/calendar/events/%d", event.ID),
		map[string]any{"title": "Hijacked"}, user.ID)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(router, "DELETE", fmt.Sprintf("/calendar/events/%d", event.ID), nil, user.ID)
	require.Equal(t, http.StatusForbidden, resp.Code)

	var count int64
	db.Model(&models.CalendarEvent{}).Count(&count)
	require.EqualValues(t, 1, count)
}

func TestUpdateManualEvent(t *testing.T) {
	db := setupTestDB(t)
	router, _ := newTestRouter(db)

	user := createUser(t, db, "user@example.com")
	event := models.CalendarEvent{
		UserID: user.ID, Title: "Old", EventType: models.EventManual,
	}
	require.NoError(t, db.Create(&event).Error)

	resp := doRequest(router, "PUT", fmt.Sprintf("/calendar/events/%d", event.ID),
		map[string]any{"title": "New"}, user.ID)
	require.Equal(t, http.StatusOK, resp.Code)

	var updated models.CalendarEvent
	require.NoError(t, db.First(&updated, event.ID).Error)
	require.Equal(t, "New", updated.Title)
}

func TestDeleteOtherUsersEvent(t *testing.T) {
	db := setupTestDB(t)
	router, _ := newTestRouter(db)

	owner := createUser(t, db, "owner@example.com")
	stranger := createUser(t, db, "stranger@example.com")
	event := models.CalendarEvent{
		UserID: owner.ID, Title: "Private", EventType: models.EventManual,
	}
	require.NoError(t, db.Create(&event).Error)

	resp := doRequest(router, "DELETE", fmt.Sprintf("/calendar/events/%d", event.ID), nil, stranger.ID)
	require.Equal(t, http.StatusNotFound, resp.Code)
}
