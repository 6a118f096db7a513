package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.Device{},
	))
	return db
}

func newTestRouter(db *gorm.DB) *mux.Router {
	h := NewNotificationHandler(db, NewPusher(db))
	router := mux.NewRouter()
	router.HandleFunc("/notifications", h.ListNotifications).Methods("GET")
	router.HandleFunc("/notifications/unread-counts", h.GetUnreadCounts).Methods("GET")
	router.HandleFunc("/notifications/{id}/read", h.MarkRead).Methods("POST")
	router.HandleFunc("/notifications/read/{category}", h.MarkCategoryRead).Methods("POST")
	router.HandleFunc("/devices", h.RegisterDevice).Methods("POST")
	router.HandleFunc("/devices", h.GetDevices).Methods("GET")
	router.HandleFunc("/devices/{id}", h.DeleteDevice).Methods("DELETE")
	return router
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

func seedNotification(t *testing.T, db *gorm.DB, recipientID *uint, notificationType string) *models.Notification {
	t.Helper()
	notification := models.Notification{
		RecipientID:      recipientID,
		NotificationType: notificationType,
		Title:            "Test",
		Message:          "test message",
	}
	require.NoError(t, db.Create(&notification).Error)
	return &notification
}

func TestListNotificationsIncludesBroadcasts(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(db)

	userID := uint(1)
	otherID := uint(2)
	seedNotification(t, db, &userID, models.NotificationRequests)
	seedNotification(t, db, &otherID, models.NotificationRequests)
	seedNotification(t, db, nil, models.NotificationNotice)

	resp := doRequest(router, "GET", "/notifications", nil, userID)
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Notifications []models.Notification `json:"notifications"`
		Total         int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	// Own notification plus the broadcast, not the other user's.
	require.EqualValues(t, 2, result.Total)
	require.Len(t, result.Notifications, 2)
}

func TestUnreadCountsPerCategory(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(db)

	userID := uint(1)
	seedNotification(t, db, &userID, models.NotificationRequests)
	seedNotification(t, db, &userID, models.NotificationRequests)
	seedNotification(t, db, &userID, models.NotificationPayment)

	resp := doRequest(router, "GET", "/notifications/unread-counts", nil, userID)
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		UnreadCounts map[string]int64 `json:"unread_counts"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.EqualValues(t, 2, result.UnreadCounts[models.NotificationRequests])
	require.EqualValues(t, 1, result.UnreadCounts[models.NotificationPayment])
	require.EqualValues(t, 0, result.UnreadCounts[models.NotificationCalendar])
}

func TestMarkRead(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(db)

	userID := uint(1)
	notification := seedNotification(t, db, &userID, models.NotificationRequests)

	resp := doRequest(router, "POST", fmt.Sprintf("/notifications/%d/read", notification.ID), nil, userID)
	require.Equal(t, http.StatusOK, resp.Code)

	var updated models.Notification
	require.NoError(t, db.First(&updated, notification.ID).Error)
	require.True(t, updated.IsRead)

	// Someone else's notification cannot be marked.
	otherID := uint(2)
	other := seedNotification(t, db, &otherID, models.NotificationRequests)
	resp = doRequest(router, "POST", fmt.Sprintf("/notifications/%d/read", other.ID), nil, userID)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMarkCategoryRead(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(db)

	userID := uint(1)
	seedNotification(t, db, &userID, models.NotificationRequests)
	seedNotification(t, db, &userID, models.NotificationRequests)
	seedNotification(t, db, &userID, models.NotificationPayment)

	resp := doRequest(router, "POST", "/notifications/read/"+models.NotificationRequests, nil, userID)
	require.Equal(t, http.StatusOK, resp.Code)

	var unreadRequests, unreadPayments int64
	db.Model(&models.Notification{}).
		Where("recipient_id = ? AND notification_type = ? AND is_read = ?", userID, models.NotificationRequests, false).
		Count(&unreadRequests)
	db.Model(&models.Notification{}).
		Where("recipient_id = ? AND notification_type = ? AND is_read = ?", userID, models.NotificationPayment, false).
		Count(&unreadPayments)
	require.EqualValues(t, 0, unreadRequests)
	require.EqualValues(t, 1, unreadPayments)
}

func TestRegisterDevice(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(db)

	userID := uint(1)
	body := map[string]any{
		"token":       "ExponentPushToken[abc123]",
		"device_type": "android",
		"device_name": "Pixel",
	}
	resp := doRequest(router, "POST", "/devices", body, userID)
	require.Equal(t, http.StatusOK, resp.Code)

	// Re-registering the same token updates in place.
	body["device_name"] = "Pixel 9"
	resp = doRequest(router, "POST", "/devices", body, userID)
	require.Equal(t, http.StatusOK, resp.Code)

	var devices []models.Device
	require.NoError(t, db.Where("user_id = ?", userID).Find(&devices).Error)
	require.Len(t, devices, 1)
	require.Equal(t, "Pixel 9", devices[0].DeviceName)
}

func TestRegisterDeviceRejectsBadToken(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(db)

	resp := doRequest(router, "POST", "/devices", map[string]any{"token": "not-a-token"}, 1)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteDevice(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(db)

	userID := uint(1)
	device := models.Device{Token: "ExponentPushToken[abc123]", UserID: userID}
	require.NoError(t, db.Create(&device).Error)

	resp := doRequest(router, "DELETE", fmt.Sprintf("/devices/%d", device.ID), nil, uint(2))
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = doRequest(router, "DELETE", fmt.Sprintf("/devices/%d", device.ID), nil, userID)
	require.Equal(t, http.StatusOK, resp.Code)
}
