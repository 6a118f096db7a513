package calendar

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
	"gorm.io/gorm"
)

type CalendarHandler struct {
	db         *gorm.DB
	dispatcher notify.Dispatcher
}

func NewCalendarHandler(db *gorm.DB, dispatcher notify.Dispatcher) *CalendarHandler {
	return &CalendarHandler{db: db, dispatcher: dispatcher}
}

func (h *CalendarHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/calendar/events", utils.AuthMiddleware(h.ListEvents)).Methods("GET")
	router.HandleFunc("/calendar/events", utils.AuthMiddleware(h.CreateEvent)).Methods("POST")
	router.HandleFunc("/calendar/events/{id}", utils.AuthMiddleware(h.UpdateEvent)).Methods("PUT")
	router.HandleFunc("/calendar/events/{id}", utils.AuthMiddleware(h.DeleteEvent)).Methods("DELETE")
}

func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var events []models.CalendarEvent
	if err := h.db.Where("user_id = ?", userID).
		Order("date DESC, time DESC").
		Find(&events).Error; err != nil {
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (h *CalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Date        time.Time `json:"date"`
		Time        time.Time `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	event := models.CalendarEvent{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Time:        req.Time,
		EventType:   models.EventManual,
	}
	if err := h.db.Create(&event).Error; err != nil {
		log.Printf("error creating calendar event: %v", err)
		http.Error(w, "Failed to create event", http.StatusInternalServerError)
		return
	}

	h.notifyEventCreated(userID, &event)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(event)
}

func (h *CalendarHandler) notifyEventCreated(userID uint, event *models.CalendarEvent) {
	recipientID := userID
	notification := models.Notification{
		RecipientID:      &recipientID,
		NotificationType: models.NotificationCalendar,
		Title:            "Event Added",
		Message:          fmt.Sprintf("%q was added to your calendar for %s.", event.Title, event.Date.Format("Jan 02")),
	}
	if err := h.db.Create(&notification).Error; err != nil {
		log.Printf("error creating calendar notification: %v", err)
	}

	if err := h.dispatcher.Notify(notify.UserTopic(userID), notify.Payload{
		Title:     notification.Title,
		Message:   notification.Message,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("error dispatching calendar notification: %v", err)
		notify.CountDroppedDispatch()
	}
}

// UpdateEvent edits a manual event. Appointment-derived events are owned by
// the appointment record and are read-only here.
func (h *CalendarHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event models.CalendarEvent
	if err := h.db.Where("id = ? AND user_id = ?", mux.Vars(r)["id"], userID).First(&event).Error; err != nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}
	if event.EventType == models.EventAppointment {
		http.Error(w, "Appointment events cannot be edited", http.StatusForbidden)
		return
	}

	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		Date        *time.Time `json:"date"`
		Time        *time.Time `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title != nil {
		event.Title = *req.Title
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Date != nil {
		event.Date = *req.Date
	}
	if req.Time != nil {
		event.Time = *req.Time
	}

	if err := h.db.Save(&event).Error; err != nil {
		http.Error(w, "Failed to update event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(event)
}

func (h *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event models.CalendarEvent
	if err := h.db.Where("id = ? AND user_id = ?", mux.Vars(r)["id"], userID).First(&event).Error; err != nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}
	if event.EventType == models.EventAppointment {
		http.Error(w, "Appointment events cannot be deleted", http.StatusForbidden)
		return
	}

	if err := h.db.Delete(&event).Error; err != nil {
		http.Error(w, "Failed to delete event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Event deleted"})
}
