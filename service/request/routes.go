package request

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/ekrisshak/ekrisshak-server/service/appointment"
	"github.com/ekrisshak/ekrisshak-server/service/notify"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type RequestHandler struct {
	db         *gorm.DB
	mailer     utils.Mailer
	dispatcher notify.Dispatcher
	effects    *appointment.SideEffects
}

func NewRequestHandler(db *gorm.DB, mailer utils.Mailer, dispatcher notify.Dispatcher, effects *appointment.SideEffects) *RequestHandler {
	return &RequestHandler{db: db, mailer: mailer, dispatcher: dispatcher, effects: effects}
}

func (h *RequestHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/requests", utils.AuthMiddleware(h.SendRequest)).Methods("POST")
	router.HandleFunc("/requests", utils.AuthMiddleware(h.ListRequests)).Methods("GET")
	router.HandleFunc("/requests/{id}/accept", utils.AuthMiddleware(h.AcceptRequest)).Methods("POST")
	router.HandleFunc("/requests/{id}", utils.AuthMiddleware(h.CancelRequest)).Methods("DELETE")
}

// requestView is the wire shape for a request; status always reports the
// effective value, so a stale pending row reads as expired even before the
// next send sweeps it.
type requestView struct {
	ID          string    `json:"id"`
	SenderID    uint      `json:"sender_id"`
	RecipientID uint      `json:"recipient_id"`
	Status      string    `json:"status"`
	RequestTime time.Time `json:"request_time"`
}

func viewOf(req *models.AppointmentRequest) requestView {
	return requestView{
		ID:          req.ID,
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Status:      req.EffectiveStatus(),
		RequestTime: req.RequestTime,
	}
}

// SendRequest creates a pending request toward the counterparty. Database
// uniqueness on the (sender, recipient, pending) triple is what prevents
// duplicates; stale pending rows for the pair are flipped to expired first
// so a new request is allowed once the old one aged out.
func (h *RequestHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		RecipientID uint `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RecipientID == userID {
		http.Error(w, "Cannot send a request to yourself", http.StatusBadRequest)
		return
	}

	var sender, recipient models.User
	if err := h.db.First(&sender, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err := h.db.First(&recipient, req.RecipientID).Error; err != nil {
		http.Error(w, "Recipient not found", http.StatusNotFound)
		return
	}
	if !validPair(sender.Role, recipient.Role) {
		http.Error(w, "Requests flow between krisshaks and bhooswamis", http.StatusBadRequest)
		return
	}

	// Age out the blocking row, if any, before trying to insert a new one.
	cutoff := time.Now().Add(-models.RequestTTL)
	h.db.Model(&models.AppointmentRequest{}).
		Where("sender_id = ? AND recipient_id = ? AND status = ? AND request_time < ?",
			userID, req.RecipientID, models.RequestPending, cutoff).
		Update("status", models.RequestExpired)

	request := models.AppointmentRequest{
		SenderID:    userID,
		RecipientID: req.RecipientID,
		Status:      models.RequestPending,
	}
	if err := h.db.Create(&request).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "UNIQUE constraint") {
			http.Error(w, "Request already sent", http.StatusConflict)
			return
		}
		log.Printf("error creating appointment request: %v", err)
		http.Error(w, "Failed to send request", http.StatusInternalServerError)
		return
	}

	h.notifyRequestSent(&sender, &recipient, &request)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(viewOf(&request))
}

func validPair(senderRole, recipientRole string) bool {
	return (senderRole == models.RoleKrisshak && recipientRole == models.RoleBhooswami) ||
		(senderRole == models.RoleBhooswami && recipientRole == models.RoleKrisshak)
}

func (h *RequestHandler) notifyRequestSent(sender, recipient *models.User, request *models.AppointmentRequest) {
	title := "New Appointment Request"
	message := fmt.Sprintf("%s has sent you an appointment request.", sender.Name)

	recipientID := recipient.ID
	senderID := sender.ID
	notification := models.Notification{
		RecipientID:      &recipientID,
		SenderID:         &senderID,
		NotificationType: models.NotificationRequests,
		Title:            title,
		Message:          message,
	}
	if err := h.db.Create(&notification).Error; err != nil {
		log.Printf("error creating request notification: %v", err)
	}

	if err := h.dispatcher.Notify(notify.UserTopic(recipient.ID), notify.Payload{
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("error dispatching request notification: %v", err)
		notify.CountDroppedDispatch()
	}

	body := fmt.Sprintf("Hello %s,\n\n%s Open the app to accept it within 2 days.", recipient.Name, message)
	if err := h.mailer.Send([]string{recipient.Email}, title, body); err != nil {
		log.Printf("error emailing request notification: %v", err)
		notify.CountDroppedEmail()
	}
}

// ListRequests returns requests in both directions for the caller, newest
// first.
func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var requests []models.AppointmentRequest
	query := h.db.Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("request_time DESC")
	if direction := r.URL.Query().Get("direction"); direction == "sent" {
		query = h.db.Where("sender_id = ?", userID).Order("request_time DESC")
	} else if direction == "received" {
		query = h.db.Where("recipient_id = ?", userID).Order("request_time DESC")
	}
	if err := query.Find(&requests).Error; err != nil {
		http.Error(w, "Failed to fetch requests", http.StatusInternalServerError)
		return
	}

	views := make([]requestView, 0, len(requests))
	for i := range requests {
		views = append(views, viewOf(&requests[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// AcceptRequest flips a live pending request to accepted and creates the
// confirmed appointment in the same transaction. Only the recipient may
// accept; an expired or already-decided request reads as not found.
func (h *RequestHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var request models.AppointmentRequest
	if err := h.db.First(&request, "id = ?", mux.Vars(r)["id"]).Error; err != nil {
		http.Error(w, "Request not found", http.StatusNotFound)
		return
	}
	if request.RecipientID != userID {
		http.Error(w, "Only the recipient can accept a request", http.StatusForbidden)
		return
	}
	if request.Status != models.RequestPending || request.IsExpired() {
		http.Error(w, "Request not found", http.StatusNotFound)
		return
	}

	var sender, recipient models.User
	if err := h.db.First(&sender, request.SenderID).Error; err != nil {
		http.Error(w, "Sender not found", http.StatusNotFound)
		return
	}
	if err := h.db.First(&recipient, request.RecipientID).Error; err != nil {
		http.Error(w, "Recipient not found", http.StatusNotFound)
		return
	}

	krisshakID, bhooswamiID := sender.ID, recipient.ID
	if sender.Role == models.RoleBhooswami {
		krisshakID, bhooswamiID = recipient.ID, sender.ID
	}

	now := time.Now()
	newAppointment := models.Appointment{
		KrisshakID:    krisshakID,
		BhooswamiID:   bhooswamiID,
		Date:          now,
		Time:          now,
		Status:        models.AppointmentConfirmed,
		PaymentStatus: models.PaymentStatusNotPaid,
	}

	tx := h.db.Begin()
	result := tx.Model(&models.AppointmentRequest{}).
		Where("id = ? AND status = ?", request.ID, models.RequestPending).
		Update("status", models.RequestAccepted)
	if result.Error != nil {
		tx.Rollback()
		http.Error(w, "Failed to accept request", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		http.Error(w, "Request not found", http.StatusNotFound)
		return
	}
	if err := tx.Create(&newAppointment).Error; err != nil {
		tx.Rollback()
		log.Printf("error creating appointment from request %s: %v", request.ID, err)
		http.Error(w, "Failed to accept request", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Failed to accept request", http.StatusInternalServerError)
		return
	}

	h.effects.Run(&newAppointment)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Request accepted",
		"appointment": newAppointment,
	})
}

// CancelRequest hard-deletes a request. Either party may cancel.
func (h *RequestHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var request models.AppointmentRequest
	if err := h.db.First(&request, "id = ?", mux.Vars(r)["id"]).Error; err != nil {
		http.Error(w, "Request not found", http.StatusNotFound)
		return
	}
	if request.SenderID != userID && request.RecipientID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.db.Delete(&request).Error; err != nil {
		http.Error(w, "Failed to cancel request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Request cancelled"})
}
