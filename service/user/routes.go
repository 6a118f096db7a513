package user

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

func (h *UserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/states", h.ListStates).Methods("GET")
	router.HandleFunc("/states/{id}/districts", h.ListDistricts).Methods("GET")
	router.HandleFunc("/users/me", utils.AuthMiddleware(h.GetCurrentUser)).Methods("GET")
	router.HandleFunc("/users/me", utils.AuthMiddleware(h.UpdateCurrentUser)).Methods("PUT")
	router.HandleFunc("/users/me", utils.AuthMiddleware(h.DeleteCurrentUser)).Methods("DELETE")
	router.HandleFunc("/users/me/availability", utils.AuthMiddleware(h.UpdateAvailability)).Methods("PATCH")
	router.HandleFunc("/users/{id}", utils.AuthMiddleware(h.GetUser)).Methods("GET")
	router.HandleFunc("/ratings", utils.AuthMiddleware(h.RateUser)).Methods("POST")
	router.HandleFunc("/favorites", utils.AuthMiddleware(h.ToggleFavorite)).Methods("POST")
	router.HandleFunc("/favorites", utils.AuthMiddleware(h.ListFavorites)).Methods("GET")
}

// ListStates returns the directory of states with their districts. This is
// public reference data.
func (h *UserHandler) ListStates(w http.ResponseWriter, r *http.Request) {
	var states []models.State
	if err := h.db.Preload("Districts").Order("name").Find(&states).Error; err != nil {
		http.Error(w, "Failed to fetch states", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(states)
}

func (h *UserHandler) ListDistricts(w http.ResponseWriter, r *http.Request) {
	stateID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid state ID", http.StatusBadRequest)
		return
	}

	var districts []models.District
	if err := h.db.Where("state_id = ?", stateID).Order("name").Find(&districts).Error; err != nil {
		http.Error(w, "Failed to fetch districts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(districts)
}

func (h *UserHandler) loadUser(id uint) (*models.User, error) {
	var user models.User
	err := h.db.Preload("KrisshakProfile").Preload("BhooswamiProfile").First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.loadUser(userID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	user, err := h.loadUser(uint(id))
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UpdateCurrentUser edits the caller's base fields and role profile in one
// request. Role itself is immutable here.
func (h *UserHandler) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name              *string  `json:"name"`
		Phone             *string  `json:"phone"`
		Gender            *string  `json:"gender"`
		Age               *int     `json:"age"`
		PreferredLanguage *string  `json:"preferred_language"`
		Specialization    *string  `json:"specialization"`
		Price             *float64 `json:"price"`
		Experience        *string  `json:"experience"`
		StateID           *uint    `json:"state_id"`
		DistrictID        *uint    `json:"district_id"`
		AccountNumber     *string  `json:"account_number"`
		UpiID             *string  `json:"upi_id"`
		LandArea          *float64 `json:"land_area"`
		LandLocation      *string  `json:"land_location"`
		Requirements      *string  `json:"requirements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.loadUser(userID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Gender != nil {
		user.Gender = *req.Gender
	}
	if req.Age != nil {
		user.Age = *req.Age
	}
	if req.PreferredLanguage != nil {
		user.PreferredLanguage = *req.PreferredLanguage
	}

	tx := h.db.Begin()
	if err := tx.Save(user).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}

	switch user.Role {
	case models.RoleKrisshak:
		if user.KrisshakProfile != nil {
			p := user.KrisshakProfile
			if req.Specialization != nil {
				p.Specialization = *req.Specialization
			}
			if req.Price != nil {
				p.Price = *req.Price
			}
			if req.Experience != nil {
				p.Experience = *req.Experience
			}
			if req.StateID != nil {
				p.StateID = req.StateID
			}
			if req.DistrictID != nil {
				p.DistrictID = req.DistrictID
			}
			if req.AccountNumber != nil {
				p.AccountNumber = *req.AccountNumber
			}
			if req.UpiID != nil {
				p.UpiID = *req.UpiID
			}
			if err := tx.Save(p).Error; err != nil {
				tx.Rollback()
				http.Error(w, "Failed to update profile", http.StatusInternalServerError)
				return
			}
		}
	case models.RoleBhooswami:
		if user.BhooswamiProfile != nil {
			p := user.BhooswamiProfile
			if req.LandArea != nil {
				p.LandArea = *req.LandArea
			}
			if req.LandLocation != nil {
				p.LandLocation = *req.LandLocation
			}
			if req.Requirements != nil {
				p.Requirements = *req.Requirements
			}
			if req.StateID != nil {
				p.StateID = req.StateID
			}
			if req.DistrictID != nil {
				p.DistrictID = req.DistrictID
			}
			if err := tx.Save(p).Error; err != nil {
				tx.Rollback()
				http.Error(w, "Failed to update profile", http.StatusInternalServerError)
				return
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// DeleteCurrentUser removes the account. Profile rows, requests,
// appointments, events, notifications and payments follow through the
// cascade constraints.
func (h *UserHandler) DeleteCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result := h.db.Unscoped().Delete(&models.User{}, userID)
	if result.Error != nil {
		http.Error(w, "Failed to delete user", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Account deleted"})
}

func (h *UserHandler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Availability bool `json:"availability"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.KrisshakProfile{}).
		Where("user_id = ?", userID).
		Update("availability", req.Availability)
	if result.Error != nil {
		http.Error(w, "Failed to update availability", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Krisshak profile not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"availability": req.Availability})
}

// RateUser records or replaces the caller's rating of another user and
// recomputes the rated user's denormalized average.
func (h *UserHandler) RateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		RatedUserID uint    `json:"rated_user_id"`
		Value       float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Value < 1.0 || req.Value > 5.0 {
		http.Error(w, "Invalid rating value", http.StatusBadRequest)
		return
	}
	if req.RatedUserID == userID {
		http.Error(w, "Cannot rate yourself", http.StatusBadRequest)
		return
	}

	var rated models.User
	if err := h.db.First(&rated, req.RatedUserID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	var rating models.Rating
	err = h.db.Where("rater_id = ? AND rated_user_id = ?", userID, req.RatedUserID).
		First(&rating).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		rating = models.Rating{RaterID: userID, RatedUserID: req.RatedUserID, Value: req.Value}
		if err := h.db.Create(&rating).Error; err != nil {
			log.Printf("error creating rating: %v", err)
			http.Error(w, "Failed to save rating", http.StatusInternalServerError)
			return
		}
	case err != nil:
		http.Error(w, "Failed to save rating", http.StatusInternalServerError)
		return
	default:
		rating.Value = req.Value
		if err := h.db.Save(&rating).Error; err != nil {
			http.Error(w, "Failed to save rating", http.StatusInternalServerError)
			return
		}
	}

	average, err := h.recomputeAverage(&rated)
	if err != nil {
		log.Printf("error recomputing rating average for user %d: %v", rated.ID, err)
		http.Error(w, "Failed to save rating", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"rating":  rating.Value,
		"average": average,
	})
}

func (h *UserHandler) recomputeAverage(rated *models.User) (float64, error) {
	var average float64
	err := h.db.Model(&models.Rating{}).
		Where("rated_user_id = ?", rated.ID).
		Select("COALESCE(AVG(value), 0)").
		Scan(&average).Error
	if err != nil {
		return 0, err
	}
	average = math.Round(average*10) / 10

	switch rated.Role {
	case models.RoleKrisshak:
		err = h.db.Model(&models.KrisshakProfile{}).
			Where("user_id = ?", rated.ID).
			Update("ratings", average).Error
	case models.RoleBhooswami:
		err = h.db.Model(&models.BhooswamiProfile{}).
			Where("user_id = ?", rated.ID).
			Update("ratings", average).Error
	}
	return average, err
}

// ToggleFavorite adds the target to the caller's favorites, or removes it
// if already present.
func (h *UserHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		TargetID uint `json:"target_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var target models.User
	if err := h.db.First(&target, req.TargetID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	favorite := models.Favorite{UserID: userID}
	switch target.Role {
	case models.RoleKrisshak:
		var profile models.KrisshakProfile
		if err := h.db.Where("user_id = ?", target.ID).First(&profile).Error; err != nil {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		favorite.KrisshakID = &profile.ID
	case models.RoleBhooswami:
		var profile models.BhooswamiProfile
		if err := h.db.Where("user_id = ?", target.ID).First(&profile).Error; err != nil {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		favorite.BhooswamiID = &profile.ID
	default:
		http.Error(w, "Only krisshaks and bhooswamis can be favorited", http.StatusBadRequest)
		return
	}

	var existing models.Favorite
	query := h.db.Where("user_id = ?", userID)
	if favorite.KrisshakID != nil {
		query = query.Where("krisshak_id = ?", *favorite.KrisshakID)
	} else {
		query = query.Where("bhooswami_id = ?", *favorite.BhooswamiID)
	}
	err = query.First(&existing).Error
	if err == nil {
		if err := h.db.Unscoped().Delete(&existing).Error; err != nil {
			http.Error(w, "Failed to update favorites", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"favorited": false})
		return
	}
	if err != gorm.ErrRecordNotFound {
		http.Error(w, "Failed to update favorites", http.StatusInternalServerError)
		return
	}

	if err := h.db.Create(&favorite).Error; err != nil {
		http.Error(w, "Failed to update favorites", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"favorited": true})
}

func (h *UserHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var favorites []models.Favorite
	if err := h.db.Preload("Krisshak").Preload("Bhooswami").
		Where("user_id = ?", userID).Find(&favorites).Error; err != nil {
		http.Error(w, "Failed to fetch favorites", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(favorites)
}
