package contact

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/ekrisshak/ekrisshak-server/service/notify"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type ContactHandler struct {
	db         *gorm.DB
	mailer     utils.Mailer
	dispatcher notify.Dispatcher
}

func NewContactHandler(db *gorm.DB, mailer utils.Mailer, dispatcher notify.Dispatcher) *ContactHandler {
	return &ContactHandler{db: db, mailer: mailer, dispatcher: dispatcher}
}

func (h *ContactHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/contact", utils.AuthMiddleware(h.CreateMessage)).Methods("POST")
	router.HandleFunc("/contact", utils.AuthMiddleware(h.ListMessages)).Methods("GET")
	router.HandleFunc("/contact/{id}/reply", utils.AuthMiddleware(h.ReplyToMessage)).Methods("POST")
	router.HandleFunc("/contact/{id}/resolve", utils.AuthMiddleware(h.ResolveMessage)).Methods("POST")
	router.HandleFunc("/notices", utils.AuthMiddleware(h.CreateNotice)).Methods("POST")
	router.HandleFunc("/notices", utils.AuthMiddleware(h.ListNotices)).Methods("GET")
}

// forwardTarget walks the escalation chain one step up: users escalate to
// their district admin, district admins to their state admin, state admins
// to the superadmin.
func forwardTarget(senderRole string) string {
	switch senderRole {
	case models.RoleKrisshak, models.RoleBhooswami:
		return models.RoleDistrictAdmin
	case models.RoleDistrictAdmin:
		return models.RoleStateAdmin
	default:
		return "superadmin"
	}
}

func (h *ContactHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Subject == "" || req.Message == "" {
		http.Error(w, "Subject and message are required", http.StatusBadRequest)
		return
	}

	var sender models.User
	if err := h.db.Preload("KrisshakProfile").Preload("BhooswamiProfile").
		First(&sender, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	stateID, districtID := h.jurisdictionOf(&sender)
	message := models.ContactMessage{
		SenderID:    &sender.ID,
		SenderType:  sender.Role,
		Name:        sender.Name,
		Email:       sender.Email,
		Subject:     req.Subject,
		Message:     req.Message,
		StateID:     stateID,
		DistrictID:  districtID,
		ForwardedTo: forwardTarget(sender.Role),
	}
	if err := h.db.Create(&message).Error; err != nil {
		log.Printf("error creating contact message: %v", err)
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	h.notifyAdmins(&message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(message)
}

// jurisdictionOf resolves the sender's state and district so the message
// lands with the right admin.
func (h *ContactHandler) jurisdictionOf(user *models.User) (*uint, *uint) {
	switch user.Role {
	case models.RoleKrisshak:
		if user.KrisshakProfile != nil {
			return user.KrisshakProfile.StateID, user.KrisshakProfile.DistrictID
		}
	case models.RoleBhooswami:
		if user.BhooswamiProfile != nil {
			return user.BhooswamiProfile.StateID, user.BhooswamiProfile.DistrictID
		}
	case models.RoleDistrictAdmin:
		var profile models.DistrictAdminProfile
		if err := h.db.Where("user_id = ?", user.ID).First(&profile).Error; err == nil {
			return &profile.StateID, &profile.DistrictID
		}
	case models.RoleStateAdmin:
		var profile models.StateAdminProfile
		if err := h.db.Where("user_id = ?", user.ID).First(&profile).Error; err == nil {
			return &profile.StateID, nil
		}
	}
	return nil, nil
}

// notifyAdmins emails and notifies every admin the message was forwarded to.
func (h *ContactHandler) notifyAdmins(message *models.ContactMessage) {
	var admins []models.User
	query := h.db.Where("role = ?", message.ForwardedTo)
	switch message.ForwardedTo {
	case models.RoleDistrictAdmin:
		if message.DistrictID != nil {
			query = query.Where("id IN (?)", h.db.Model(&models.DistrictAdminProfile{}).
				Select("user_id").Where("district_id = ?", *message.DistrictID))
		}
	case models.RoleStateAdmin:
		if message.StateID != nil {
			query = query.Where("id IN (?)", h.db.Model(&models.StateAdminProfile{}).
				Select("user_id").Where("state_id = ?", *message.StateID))
		}
	}
	if err := query.Find(&admins).Error; err != nil {
		log.Printf("error finding admins for contact message %d: %v", message.ID, err)
		return
	}

	title := "New Contact Message"
	body := fmt.Sprintf("From %s (%s): %s\n\n%s", message.Name, message.Email, message.Subject, message.Message)
	for _, admin := range admins {
		recipientID := admin.ID
		notification := models.Notification{
			RecipientID:      &recipientID,
			SenderID:         message.SenderID,
			NotificationType: models.NotificationContact,
			Title:            title,
			Message:          fmt.Sprintf("%s sent a message: %s", message.Name, message.Subject),
		}
		if err := h.db.Create(&notification).Error; err != nil {
			log.Printf("error creating contact notification: %v", err)
		}
		if err := h.dispatcher.Notify(notify.UserTopic(admin.ID), notify.Payload{
			Title:     notification.Title,
			Message:   notification.Message,
			Timestamp: time.Now(),
		}); err != nil {
			notify.CountDroppedDispatch()
		}
		if err := h.mailer.Send([]string{admin.Email}, title, body); err != nil {
			log.Printf("error emailing admin %d: %v", admin.ID, err)
			notify.CountDroppedEmail()
		}
	}
}

// ListMessages returns the caller's own threads, or for admins the messages
// forwarded into their jurisdiction.
func (h *ContactHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	query := h.db.Preload("Replies").Order("created_at DESC")
	switch user.Role {
	case models.RoleDistrictAdmin:
		var profile models.DistrictAdminProfile
		if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			http.Error(w, "Admin profile not found", http.StatusNotFound)
			return
		}
		query = query.Where(
			"(forwarded_to = ? AND district_id = ?) OR sender_id = ?",
			models.RoleDistrictAdmin, profile.DistrictID, userID)
	case models.RoleStateAdmin:
		var profile models.StateAdminProfile
		if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			http.Error(w, "Admin profile not found", http.StatusNotFound)
			return
		}
		query = query.Where(
			"(forwarded_to = ? AND state_id = ?) OR sender_id = ?",
			models.RoleStateAdmin, profile.StateID, userID)
	default:
		query = query.Where("sender_id = ? AND parent_id IS NULL", userID)
	}

	var messages []models.ContactMessage
	if err := query.Find(&messages).Error; err != nil {
		http.Error(w, "Failed to fetch messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

// ReplyToMessage threads an admin reply under the original message and
// notifies its sender.
func (h *ContactHandler) ReplyToMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var admin models.User
	if err := h.db.First(&admin, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if admin.Role != models.RoleDistrictAdmin && admin.Role != models.RoleStateAdmin {
		http.Error(w, "Only admins can reply", http.StatusForbidden)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var parent models.ContactMessage
	if err := h.db.First(&parent, mux.Vars(r)["id"]).Error; err != nil {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	reply := models.ContactMessage{
		SenderID:     &admin.ID,
		SenderType:   admin.Role,
		Name:         admin.Name,
		Email:        admin.Email,
		Subject:      "Re: " + parent.Subject,
		Message:      req.Message,
		ParentID:     &parent.ID,
		IsAdminReply: true,
		StateID:      parent.StateID,
		DistrictID:   parent.DistrictID,
	}
	if err := h.db.Create(&reply).Error; err != nil {
		http.Error(w, "Failed to send reply", http.StatusInternalServerError)
		return
	}

	if parent.SenderID != nil {
		recipientID := *parent.SenderID
		notification := models.Notification{
			RecipientID:      &recipientID,
			SenderID:         &admin.ID,
			NotificationType: models.NotificationContact,
			Title:            "Reply to Your Message",
			Message:          fmt.Sprintf("An admin replied to %q.", parent.Subject),
		}
		if err := h.db.Create(&notification).Error; err != nil {
			log.Printf("error creating reply notification: %v", err)
		}
		if err := h.dispatcher.Notify(notify.UserTopic(recipientID), notify.Payload{
			Title:     notification.Title,
			Message:   notification.Message,
			Timestamp: time.Now(),
		}); err != nil {
			notify.CountDroppedDispatch()
		}
	}
	if err := h.mailer.Send([]string{parent.Email}, "Re: "+parent.Subject, req.Message); err != nil {
		log.Printf("error emailing reply for message %d: %v", parent.ID, err)
		notify.CountDroppedEmail()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(reply)
}

func (h *ContactHandler) ResolveMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var admin models.User
	if err := h.db.First(&admin, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if admin.Role != models.RoleDistrictAdmin && admin.Role != models.RoleStateAdmin {
		http.Error(w, "Only admins can resolve messages", http.StatusForbidden)
		return
	}

	result := h.db.Model(&models.ContactMessage{}).
		Where("id = ?", mux.Vars(r)["id"]).
		Update("is_resolved", true)
	if result.Error != nil {
		http.Error(w, "Failed to resolve message", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Resolved"})
}

// CreateNotice publishes an announcement to the selected audiences within
// the admin's jurisdiction and fans it out as a broadcast notification.
func (h *ContactHandler) CreateNotice(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var admin models.User
	if err := h.db.First(&admin, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if admin.Role != models.RoleDistrictAdmin && admin.Role != models.RoleStateAdmin {
		http.Error(w, "Only admins can publish notices", http.StatusForbidden)
		return
	}

	var req struct {
		Content  string   `json:"content"`
		Audience []string `json:"audience"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Audience) == 0 {
		req.Audience = []string{models.RoleKrisshak, models.RoleBhooswami}
	}

	stateID, districtID := h.jurisdictionOf(&admin)
	if stateID == nil {
		http.Error(w, "Admin profile not found", http.StatusNotFound)
		return
	}

	notice := models.Notice{
		AuthorType: admin.Role,
		AuthorName: admin.Name,
		StateID:    *stateID,
		DistrictID: districtID,
		Audience:   pq.StringArray(req.Audience),
		Content:    req.Content,
	}
	if err := h.db.Create(&notice).Error; err != nil {
		log.Printf("error creating notice: %v", err)
		http.Error(w, "Failed to publish notice", http.StatusInternalServerError)
		return
	}

	notification := models.Notification{
		SenderID:         &admin.ID,
		NotificationType: models.NotificationNotice,
		Title:            "New Notice",
		Message:          req.Content,
	}
	if err := h.db.Create(&notification).Error; err != nil {
		log.Printf("error creating notice notification: %v", err)
	}
	if err := h.dispatcher.Notify(notify.BroadcastTopic, notify.Payload{
		Title:     notification.Title,
		Message:   notification.Message,
		Timestamp: time.Now(),
	}); err != nil {
		notify.CountDroppedDispatch()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(notice)
}

// ListNotices returns notices targeting the caller's role within their
// state, newest first.
func (h *ContactHandler) ListNotices(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := h.db.Preload("KrisshakProfile").Preload("BhooswamiProfile").
		First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	query := h.db.Model(&models.Notice{}).Order("created_at DESC")
	if stateID, _ := h.jurisdictionOf(&user); stateID != nil {
		query = query.Where("state_id = ?", *stateID)
	}

	var notices []models.Notice
	if err := query.Find(&notices).Error; err != nil {
		http.Error(w, "Failed to fetch notices", http.StatusInternalServerError)
		return
	}

	// Audience filtering happens here rather than in SQL so it works the
	// same on every driver.
	filtered := make([]models.Notice, 0, len(notices))
	for _, notice := range notices {
		if audienceIncludes(notice.Audience, user.Role) {
			filtered = append(filtered, notice)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(filtered)
}

func audienceIncludes(audience pq.StringArray, role string) bool {
	if len(audience) == 0 {
		return true
	}
	for _, entry := range audience {
		if entry == role {
			return true
		}
	}
	return false
}
