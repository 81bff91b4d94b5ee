package doctor

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/clinvia/clinica-server/cmd/utils"
	"github.com/clinvia/clinica-server/service/schedule"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type DoctorHandler struct {
	db *gorm.DB
}

func NewDoctorHandler(db *gorm.DB) *DoctorHandler {
	return &DoctorHandler{db: db}
}

func (h *DoctorHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/doctors", h.GetDoctors).Methods("GET")
	router.HandleFunc("/doctors/{id}", h.GetDoctor).Methods("GET")
	router.HandleFunc("/doctors", utils.RequireAuth(h.CreateDoctor)).Methods("POST")
	router.HandleFunc("/doctors/{id}/deactivate", utils.RequireAuth(h.DeactivateDoctor)).Methods("PATCH")
}

func (h *DoctorHandler) GetDoctors(w http.ResponseWriter, r *http.Request) {
	query := h.db.Where("active = ?", true)
	if specialty := r.URL.Query().Get("specialty"); specialty != "" {
		query = query.Where("specialty = ?", specialty)
	}

	var doctors []models.Doctor
	if err := query.Order("full_name").Find(&doctors).Error; err != nil {
		http.Error(w, "Error retrieving doctors", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doctors)
}

func (h *DoctorHandler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doctorID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	var doctor models.Doctor
	if err := h.db.First(&doctor, doctorID).Error; err != nil {
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doctor)
}

func (h *DoctorHandler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var doctor models.Doctor
	if err := json.NewDecoder(r.Body).Decode(&doctor); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if doctor.FullName == "" || doctor.Specialty == "" {
		http.Error(w, "Full name and specialty are required", http.StatusBadRequest)
		return
	}

	doctor.Active = true
	if err := h.db.Create(&doctor).Error; err != nil {
		http.Error(w, "Error creating doctor", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(doctor)
}

// DeactivateDoctor retires a doctor and runs the cascade over their
// appointments and schedules in one transaction.
func (h *DoctorHandler) DeactivateDoctor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doctorID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var doctor models.Doctor
	if err := tx.First(&doctor, doctorID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}

	if err := tx.Model(&doctor).Update("active", false).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deactivating doctor", http.StatusInternalServerError)
		return
	}

	if err := Cascade(tx, doctor.ID); err != nil {
		tx.Rollback()
		http.Error(w, "Error cascading deactivation", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing deactivation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Doctor deactivated successfully",
	})
}

// Cascade soft-deletes a doctor's settled-state appointments and removes
// their weekly schedules. Paid and in-progress appointments are left
// untouched: deactivation must never silently cancel a patient's paid
// visit. Runs inside the caller's transaction.
func Cascade(tx *gorm.DB, doctorID uint) error {
	cascadeStatuses := []string{models.StatusCompleted, models.StatusUnpaid, models.StatusNoShow}
	if err := tx.Model(&models.Appointment{}).
		Where("doctor_id = ? AND status IN ?", doctorID, cascadeStatuses).
		Update("active", false).Error; err != nil {
		return err
	}
	return schedule.DeleteSchedulesForDoctor(tx, doctorID)
}
