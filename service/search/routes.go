package search

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type SearchHandler struct {
	db     *gorm.DB
	client *http.Client
}

func NewSearchHandler(db *gorm.DB) *SearchHandler {
	return &SearchHandler{db: db, client: &http.Client{Timeout: 10 * time.Second}}
}

func (h *SearchHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/search/krisshaks", utils.AuthMiddleware(h.SearchKrisshaks)).Methods("GET")
	router.HandleFunc("/search/bhooswamis", utils.AuthMiddleware(h.SearchBhooswamis)).Methods("GET")
	router.HandleFunc("/crops/seasonal", h.SeasonalCrops).Methods("GET")
	router.HandleFunc("/crops/recommend", utils.AuthMiddleware(h.RecommendCrops)).Methods("POST")
}

// SearchKrisshaks lists krisshak profiles in the caller's district, with
// optional availability, specialization and price filters. Admins search
// their whole jurisdiction.
func (h *SearchHandler) SearchKrisshaks(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Model(&models.KrisshakProfile{}).Preload("User")
	query, err = h.scopeToJurisdiction(query, userID)
	if err != nil {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}

	params := r.URL.Query()
	if available := params.Get("available"); available != "" {
		query = query.Where("availability = ?", available == "true")
	}
	if specialization := params.Get("specialization"); specialization != "" {
		query = query.Where("specialization LIKE ?", "%"+specialization+"%")
	}
	if maxPrice := params.Get("max_price"); maxPrice != "" {
		if price, err := strconv.ParseFloat(maxPrice, 64); err == nil {
			query = query.Where("price <= ?", price)
		}
	}
	if minRating := params.Get("min_rating"); minRating != "" {
		if rating, err := strconv.ParseFloat(minRating, 64); err == nil {
			query = query.Where("ratings >= ?", rating)
		}
	}

	var profiles []models.KrisshakProfile
	if err := query.Order("ratings DESC").Find(&profiles).Error; err != nil {
		http.Error(w, "Failed to search", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profiles)
}

func (h *SearchHandler) SearchBhooswamis(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Model(&models.BhooswamiProfile{}).Preload("User")
	query, err = h.scopeToJurisdiction(query, userID)
	if err != nil {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}

	params := r.URL.Query()
	if minArea := params.Get("min_land_area"); minArea != "" {
		if area, err := strconv.ParseFloat(minArea, 64); err == nil {
			query = query.Where("land_area >= ?", area)
		}
	}
	if minRating := params.Get("min_rating"); minRating != "" {
		if rating, err := strconv.ParseFloat(minRating, 64); err == nil {
			query = query.Where("ratings >= ?", rating)
		}
	}

	var profiles []models.BhooswamiProfile
	if err := query.Order("ratings DESC").Find(&profiles).Error; err != nil {
		http.Error(w, "Failed to search", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profiles)
}

// scopeToJurisdiction narrows a profile query to what the caller may see: a
// krisshak or bhooswami searches their own district, a district admin their
// district, a state admin their state.
func (h *SearchHandler) scopeToJurisdiction(query *gorm.DB, userID uint) (*gorm.DB, error) {
	var user models.User
	if err := h.db.Preload("KrisshakProfile").Preload("BhooswamiProfile").
		First(&user, userID).Error; err != nil {
		return nil, err
	}

	switch user.Role {
	case models.RoleKrisshak:
		if user.KrisshakProfile != nil && user.KrisshakProfile.DistrictID != nil {
			return query.Where("district_id = ?", *user.KrisshakProfile.DistrictID), nil
		}
	case models.RoleBhooswami:
		if user.BhooswamiProfile != nil && user.BhooswamiProfile.DistrictID != nil {
			return query.Where("district_id = ?", *user.BhooswamiProfile.DistrictID), nil
		}
	case models.RoleDistrictAdmin:
		var profile models.DistrictAdminProfile
		if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			return nil, err
		}
		return query.Where("district_id = ?", profile.DistrictID), nil
	case models.RoleStateAdmin:
		var profile models.StateAdminProfile
		if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			return nil, err
		}
		return query.Where("state_id = ?", profile.StateID), nil
	}
	return query, nil
}

var seasonalCrops = map[string][]string{
	"kharif": {"Rice", "Maize", "Cotton", "Sugarcane", "Soybean", "Groundnut", "Bajra"},
	"rabi":   {"Wheat", "Barley", "Mustard", "Gram", "Peas", "Linseed"},
	"zaid":   {"Watermelon", "Muskmelon", "Cucumber", "Bitter Gourd", "Moong Dal"},
}

// SeasonalCrops returns the crop list for the requested season, defaulting
// to the season implied by the current month.
func (h *SearchHandler) SeasonalCrops(w http.ResponseWriter, r *http.Request) {
	season := r.URL.Query().Get("season")
	if season == "" {
		season = currentSeason(time.Now())
	}

	crops, ok := seasonalCrops[season]
	if !ok {
		http.Error(w, "Unknown season", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"season": season, "crops": crops})
}

func currentSeason(now time.Time) string {
	switch month := now.Month(); {
	case month >= time.June && month <= time.October:
		return "kharif"
	case month >= time.November || month <= time.March:
		return "rabi"
	default:
		return "zaid"
	}
}

// RecommendCrops proxies soil and climate parameters to the external
// recommendation model. When the service is unreachable the response
// degrades to an empty recommendation list instead of failing.
func (h *SearchHandler) RecommendCrops(w http.ResponseWriter, r *http.Request) {
	apiURL := os.Getenv("CROP_API_URL")
	if apiURL == "" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"recommendations": []string{}})
		return
	}

	resp, err := h.client.Post(apiURL, "application/json", r.Body)
	if err != nil {
		log.Printf("crop recommendation service unreachable: %v", err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"recommendations": []string{}})
		return
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("error decoding crop recommendation response: %v", err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"recommendations": []string{}})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
