package specialty

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/clinvia/clinica-server/cmd/utils"
	"github.com/clinvia/clinica-server/service/doctor"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type SpecialtyHandler struct {
	db *gorm.DB
}

func NewSpecialtyHandler(db *gorm.DB) *SpecialtyHandler {
	return &SpecialtyHandler{db: db}
}

func (h *SpecialtyHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/specialties", h.GetSpecialties).Methods("GET")
	router.HandleFunc("/specialties", utils.RequireAuth(h.CreateSpecialty)).Methods("POST")
	router.HandleFunc("/specialties/{id}/deactivate", utils.RequireAuth(h.DeactivateSpecialty)).Methods("PATCH")
}

func (h *SpecialtyHandler) GetSpecialties(w http.ResponseWriter, r *http.Request) {
	var types []models.AppointmentType
	if err := h.db.Where("active = ?", true).Order("name").Find(&types).Error; err != nil {
		http.Error(w, "Error retrieving specialties", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types)
}

func (h *SpecialtyHandler) CreateSpecialty(w http.ResponseWriter, r *http.Request) {
	var apptType models.AppointmentType
	if err := json.NewDecoder(r.Body).Decode(&apptType); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if apptType.Name == "" || apptType.DurationMinutes <= 0 || apptType.BasePrice <= 0 {
		http.Error(w, "Name, duration and base price are required", http.StatusBadRequest)
		return
	}

	apptType.Active = true
	if err := h.db.Create(&apptType).Error; err != nil {
		http.Error(w, "Error creating specialty", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(apptType)
}

// DeactivateSpecialty retires an appointment type and every doctor
// practicing it, applying the same cascade as individual doctor
// deactivation.
func (h *SpecialtyHandler) DeactivateSpecialty(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	typeID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid specialty ID", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var apptType models.AppointmentType
	if err := tx.First(&apptType, typeID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Specialty not found", http.StatusNotFound)
		return
	}

	if err := tx.Model(&apptType).Update("active", false).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deactivating specialty", http.StatusInternalServerError)
		return
	}

	var doctors []models.Doctor
	if err := tx.Where("specialty = ? AND active = ?", apptType.Name, true).Find(&doctors).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error retrieving doctors", http.StatusInternalServerError)
		return
	}

	for _, doc := range doctors {
		if err := tx.Model(&doc).Update("active", false).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error deactivating doctor", http.StatusInternalServerError)
			return
		}
		if err := doctor.Cascade(tx, doc.ID); err != nil {
			tx.Rollback()
			http.Error(w, "Error cascading deactivation", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing deactivation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":             "Specialty deactivated successfully",
		"doctors_deactivated": len(doctors),
	})
}
