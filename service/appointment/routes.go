package appointment

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type AppointmentHandler struct {
	db      *gorm.DB
	effects *SideEffects
}

func NewAppointmentHandler(db *gorm.DB, effects *SideEffects) *AppointmentHandler {
	return &AppointmentHandler{db: db, effects: effects}
}

func (h *AppointmentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/appointments", utils.AuthMiddleware(h.CreateAppointment)).Methods("POST")
	router.HandleFunc("/appointments", utils.AuthMiddleware(h.ListAppointments)).Methods("GET")
	router.HandleFunc("/appointments/{id}", utils.AuthMiddleware(h.GetAppointment)).Methods("GET")
	router.HandleFunc("/appointments/{id}/status", utils.AuthMiddleware(h.UpdateStatus)).Methods("PATCH")
	router.HandleFunc("/appointments/{id}/payment-status", utils.AuthMiddleware(h.UpdatePaymentStatus)).Methods("PATCH")
}

// CreateAppointment books a krisshak directly. Only a bhooswami may book,
// and only an available krisshak can be booked.
func (h *AppointmentHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		KrisshakID uint      `json:"krisshak_id"`
		Date       time.Time `json:"date"`
		Time       time.Time `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var bhooswami models.User
	if err := h.db.First(&bhooswami, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if bhooswami.Role != models.RoleBhooswami {
		http.Error(w, "Only bhooswamis can book appointments", http.StatusForbidden)
		return
	}

	var profile models.KrisshakProfile
	if err := h.db.Where("user_id = ?", req.KrisshakID).First(&profile).Error; err != nil {
		http.Error(w, "Krisshak not found", http.StatusNotFound)
		return
	}
	if !profile.Availability {
		http.Error(w, "Krisshak is not available", http.StatusConflict)
		return
	}

	appointment := models.Appointment{
		KrisshakID:    req.KrisshakID,
		BhooswamiID:   userID,
		Date:          req.Date,
		Time:          req.Time,
		Status:        models.AppointmentConfirmed,
		PaymentStatus: models.PaymentStatusNotPaid,
	}

	tx := h.db.Begin()
	if err := tx.Create(&appointment).Error; err != nil {
		tx.Rollback()
		log.Printf("error creating appointment: %v", err)
		http.Error(w, "Failed to create appointment", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Failed to create appointment", http.StatusInternalServerError)
		return
	}

	h.effects.Run(&appointment)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(appointment)
}

// ListAppointments scopes results by role: participants see their own, a
// district admin sees appointments whose krisshak belongs to their district,
// a state admin likewise by state.
func (h *AppointmentHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
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

	query := h.db.Model(&models.Appointment{}).Order("date DESC, time DESC")
	switch user.Role {
	case models.RoleKrisshak:
		query = query.Where("krisshak_id = ?", userID)
	case models.RoleBhooswami:
		query = query.Where("bhooswami_id = ?", userID)
	case models.RoleDistrictAdmin:
		var admin models.DistrictAdminProfile
		if err := h.db.Where("user_id = ?", userID).First(&admin).Error; err != nil {
			http.Error(w, "Admin profile not found", http.StatusNotFound)
			return
		}
		query = query.Where("krisshak_id IN (?)",
			h.db.Model(&models.KrisshakProfile{}).Select("user_id").Where("district_id = ?", admin.DistrictID))
	case models.RoleStateAdmin:
		var admin models.StateAdminProfile
		if err := h.db.Where("user_id = ?", userID).First(&admin).Error; err != nil {
			http.Error(w, "Admin profile not found", http.StatusNotFound)
			return
		}
		query = query.Where("krisshak_id IN (?)",
			h.db.Model(&models.KrisshakProfile{}).Select("user_id").Where("state_id = ?", admin.StateID))
	default:
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var appointments []models.Appointment
	if err := query.Find(&appointments).Error; err != nil {
		http.Error(w, "Failed to fetch appointments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointments)
}

func (h *AppointmentHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var appointment models.Appointment
	if err := h.db.First(&appointment, "id = ?", mux.Vars(r)["id"]).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if appointment.KrisshakID != userID && appointment.BhooswamiID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointment)
}

// UpdateStatus changes only the lifecycle status. Confirming re-runs the
// side-effect chain, which is idempotent for an unchanged date and time.
func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Status != models.AppointmentPending && req.Status != models.AppointmentConfirmed {
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}

	var appointment models.Appointment
	if err := h.db.First(&appointment, "id = ?", mux.Vars(r)["id"]).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if appointment.KrisshakID != userID && appointment.BhooswamiID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	appointment.Status = req.Status
	if err := h.db.Save(&appointment).Error; err != nil {
		http.Error(w, "Failed to update appointment", http.StatusInternalServerError)
		return
	}

	h.effects.Run(&appointment)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointment)
}

func (h *AppointmentHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PaymentStatus != models.PaymentStatusPaid && req.PaymentStatus != models.PaymentStatusNotPaid {
		http.Error(w, "Invalid payment status", http.StatusBadRequest)
		return
	}

	var appointment models.Appointment
	if err := h.db.First(&appointment, "id = ?", mux.Vars(r)["id"]).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if appointment.KrisshakID != userID && appointment.BhooswamiID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	appointment.PaymentStatus = req.PaymentStatus
	if err := h.db.Save(&appointment).Error; err != nil {
		http.Error(w, "Failed to update payment status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointment)
}
