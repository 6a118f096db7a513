package contact

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
	"github.com/ekrisshak/ekrisshak-server/service/notify"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeMailer struct {
	recipients []string
}

func (m *fakeMailer) Send(to []string, subject, body string) error {
	m.recipients = append(m.recipients, to...)
	return nil
}

func (m *fakeMailer) SendWithAttachment(to []string, subject, body, filename, mimeType string, data []byte) error {
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
		&models.State{},
		&models.District{},
		&models.User{},
		&models.KrisshakProfile{},
		&models.BhooswamiProfile{},
		&models.DistrictAdminProfile{},
		&models.StateAdminProfile{},
		&models.ContactMessage{},
		&models.Notice{},
		&models.Notification{},
	))
	return db
}

func newTestRouter(db *gorm.DB) (*mux.Router, *fakeMailer, *fakeDispatcher) {
	mailer := &fakeMailer{}
	dispatcher := &fakeDispatcher{}
	h := NewContactHandler(db, mailer, dispatcher)
	router := mux.NewRouter()
	router.HandleFunc("/contact", h.CreateMessage).Methods("POST")
	router.HandleFunc("/contact", h.ListMessages).Methods("GET")
	router.HandleFunc("/contact/{id}/reply", h.ReplyToMessage).Methods("POST")
	router.HandleFunc("/contact/{id}/resolve", h.ResolveMessage).Methods("POST")
	router.HandleFunc("/notices", h.CreateNotice).Methods("POST")
	router.HandleFunc("/notices", h.ListNotices).Methods("GET")
	return router, mailer, dispatcher
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

// seedJurisdiction creates a state, a district, a krisshak in the district
// and its district admin.
func seedJurisdiction(t *testing.T, db *gorm.DB) (krisshak, districtAdmin *models.User) {
	t.Helper()
	state := models.State{Name: "Bihar"}
	require.NoError(t, db.Create(&state).Error)
	district := models.District{Name: "Patna", StateID: state.ID}
	require.NoError(t, db.Create(&district).Error)

	krisshak = &models.User{Email: "krisshak@example.com", Name: "K", Role: models.RoleKrisshak}
	require.NoError(t, db.Create(krisshak).Error)
	require.NoError(t, db.Create(&models.KrisshakProfile{
		UserID: krisshak.ID, StateID: &state.ID, DistrictID: &district.ID,
	}).Error)

	districtAdmin = &models.User{Email: "admin@example.com", Name: "A", Role: models.RoleDistrictAdmin}
	require.NoError(t, db.Create(districtAdmin).Error)
	require.NoError(t, db.Create(&models.DistrictAdminProfile{
		UserID: districtAdmin.ID, StateID: state.ID, DistrictID: district.ID,
	}).Error)
	return krisshak, districtAdmin
}

func TestCreateMessageForwardsToDistrictAdmin(t *testing.T) {
	db := setupTestDB(t)
	router, mailer, _ := newTestRouter(db)

	krisshak, districtAdmin := seedJurisdiction(t, db)

	resp := doRequest(router, "POST", "/contact", map[string]any{
		"subject": "Water shortage",
		"message": "The canal has been dry for a week.",
	}, krisshak.ID)
	require.Equal(t, http.StatusCreated, resp.Code)

	var message models.ContactMessage
	require.NoError(t, db.First(&message).Error)
	require.Equal(t, models.RoleDistrictAdmin, message.ForwardedTo)
	require.NotNil(t, message.DistrictID)

	// The district admin was notified and emailed.
	var count int64
	db.Model(&models.Notification{}).Where("recipient_id = ?", districtAdmin.ID).Count(&count)
	require.EqualValues(t, 1, count)
	require.Contains(t, mailer.recipients, districtAdmin.Email)
}

func TestDistrictAdminEscalatesToStateAdmin(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := newTestRouter(db)

	_, districtAdmin := seedJurisdiction(t, db)

	resp := doRequest(router, "POST", "/contact", map[string]any{
		"subject": "Need resources",
		"message": "Requesting additional support for the district.",
	}, districtAdmin.ID)
	require.Equal(t, http.StatusCreated, resp.Code)

	var message models.ContactMessage
	require.NoError(t, db.First(&message).Error)
	require.Equal(t, models.RoleStateAdmin, message.ForwardedTo)
}

func TestAdminListScopedToDistrict(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := newTestRouter(db)

	krisshak, districtAdmin := seedJurisdiction(t, db)

	doRequest(router, "POST", "/contact", map[string]any{
		"subject": "In my district", "message": "help",
	}, krisshak.ID)

	// A message from another district must not show up.
	otherDistrictID := uint(999)
	require.NoError(t, db.Create(&models.ContactMessage{
		SenderType:  models.RoleKrisshak,
		Name:        "Elsewhere",
		Email:       "elsewhere@example.com",
		Subject:     "Not my district",
		Message:     "help",
		DistrictID:  &otherDistrictID,
		ForwardedTo: models.RoleDistrictAdmin,
	}).Error)

	resp := doRequest(router, "GET", "/contact", nil, districtAdmin.ID)
	require.Equal(t, http.StatusOK, resp.Code)

	var messages []models.ContactMessage
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	require.Equal(t, "In my district", messages[0].Subject)
}

func TestReplyThreadsAndNotifiesSender(t *testing.T) {
	db := setupTestDB(t)
	router, mailer, _ := newTestRouter(db)

	krisshak, districtAdmin := seedJurisdiction(t, db)

	resp := doRequest(router, "POST", "/contact", map[string]any{
		"subject": "Question", "message": "When is the subsidy due?",
	}, krisshak.ID)
	var original models.ContactMessage
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &original))

	resp = doRequest(router, "POST", fmt.Sprintf("/contact/%d/reply", original.ID),
		map[string]any{"message": "Next month."}, districtAdmin.ID)
	require.Equal(t, http.StatusCreated, resp.Code)

	var reply models.ContactMessage
	require.NoError(t, db.Where("parent_id = ?", original.ID).First(&reply).Error)
	require.True(t, reply.IsAdminReply)

	var count int64
	db.Model(&models.Notification{}).Where("recipient_id = ?", krisshak.ID).Count(&count)
	require.EqualValues(t, 1, count)
	require.Contains(t, mailer.recipients, krisshak.Email)
}

func TestReplyForbiddenForNonAdmins(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := newTestRouter(db)

	krisshak, _ := seedJurisdiction(t, db)

	resp := doRequest(router, "POST", "/contact", map[string]any{
		"subject": "Question", "message": "ping",
	}, krisshak.ID)
	var original models.ContactMessage
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &original))

	resp = doRequest(router, "POST", fmt.Sprintf("/contact/%d/reply", original.ID),
		map[string]any{"message": "replying to myself"}, krisshak.ID)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestResolveMessage(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := newTestRouter(db)

	krisshak, districtAdmin := seedJurisdiction(t, db)

	resp := doRequest(router, "POST", "/contact", map[string]any{
		"subject": "Issue", "message": "something broke",
	}, krisshak.ID)
	var original models.ContactMessage
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &original))

	resp = doRequest(router, "POST", fmt.Sprintf("/contact/%d/resolve", original.ID), nil, districtAdmin.ID)
	require.Equal(t, http.StatusOK, resp.Code)

	var resolved models.ContactMessage
	require.NoError(t, db.First(&resolved, original.ID).Error)
	require.True(t, resolved.IsResolved)
}

func TestCreateNoticeForbiddenForUsers(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := newTestRouter(db)

	krisshak, _ := seedJurisdiction(t, db)

	resp := doRequest(router, "POST", "/notices", map[string]any{
		"content": "Unauthorized announcement",
	}, krisshak.ID)
	require.Equal(t, http.StatusForbidden, resp.Code)

	var count int64
	db.Model(&models.Notice{}).Count(&count)
	require.EqualValues(t, 0, count)
}

func TestDistrictAdminPublishesNotice(t *testing.T) {
	db := setupTestDB(t)
	router, _, dispatcher := newTestRouter(db)

	_, districtAdmin := seedJurisdiction(t, db)

	resp := doRequest(router, "POST", "/notices", map[string]any{
		"content":  "Subsidy forms are due Friday.",
		"audience": []string{models.RoleKrisshak},
	}, districtAdmin.ID)
	require.Equal(t, http.StatusCreated, resp.Code)

	var profile models.DistrictAdminProfile
	require.NoError(t, db.Where("user_id = ?", districtAdmin.ID).First(&profile).Error)

	// The notice carries the admin's jurisdiction.
	var notice models.Notice
	require.NoError(t, db.First(&notice).Error)
	require.Equal(t, profile.StateID, notice.StateID)
	require.NotNil(t, notice.DistrictID)
	require.Equal(t, profile.DistrictID, *notice.DistrictID)
	require.Equal(t, []string{models.RoleKrisshak}, []string(notice.Audience))

	// Fan-out went through the broadcast topic, backed by a broadcast
	// notification row with no recipient.
	require.Contains(t, dispatcher.topics, notify.BroadcastTopic)
	var count int64
	db.Model(&models.Notification{}).Where("recipient_id IS NULL").Count(&count)
	require.EqualValues(t, 1, count)
}

func TestListNoticesFiltersByStateAndAudience(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := newTestRouter(db)

	krisshak, _ := seedJurisdiction(t, db)
	var profile models.KrisshakProfile
	require.NoError(t, db.Where("user_id = ?", krisshak.ID).First(&profile).Error)

	forKrisshaks := models.Notice{
		AuthorType: models.RoleDistrictAdmin, AuthorName: "A",
		StateID: *profile.StateID, Content: "Canal maintenance next week.",
		Audience: []string{models.RoleKrisshak},
	}
	forBhooswamis := models.Notice{
		AuthorType: models.RoleDistrictAdmin, AuthorName: "A",
		StateID: *profile.StateID, Content: "Land survey schedule.",
		Audience: []string{models.RoleBhooswami},
	}
	otherState := models.Notice{
		AuthorType: models.RoleStateAdmin, AuthorName: "B",
		StateID: *profile.StateID + 1, Content: "Elsewhere.",
		Audience: []string{models.RoleKrisshak},
	}
	require.NoError(t, db.Create(&forKrisshaks).Error)
	require.NoError(t, db.Create(&forBhooswamis).Error)
	require.NoError(t, db.Create(&otherState).Error)

	resp := doRequest(router, "GET", "/notices", nil, krisshak.ID)
	require.Equal(t, http.StatusOK, resp.Code)

	var notices []models.Notice
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &notices))
	require.Len(t, notices, 1)
	require.Equal(t, "Canal maintenance next week.", notices[0].Content)
}
