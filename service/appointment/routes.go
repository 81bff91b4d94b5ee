package appointment

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/clinvia/clinica-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AppointmentHandler struct {
	db *gorm.DB
}

func NewAppointmentHandler(db *gorm.DB) *AppointmentHandler {
	return &AppointmentHandler{db: db}
}

func (h *AppointmentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/appointments/patient", h.CreatePatientBooking).Methods("POST")
	router.HandleFunc("/appointments/{id}", h.GetAppointment).Methods("GET")
	router.HandleFunc("/appointments/patient/{patientId}", h.GetPatientAppointments).Methods("GET")
	router.HandleFunc("/appointments/doctor/{doctorId}", h.GetDoctorAppointments).Methods("GET")
	router.HandleFunc("/appointments/{id}/status", utils.RequireAuth(h.UpdateStatus)).Methods("PATCH")
	router.HandleFunc("/appointments/{id}/verification", utils.RequireAuth(h.ConfirmVerification)).Methods("PATCH")
}

// allowedTransitions is the appointment lifecycle. The settlement
// reconciler owns unpaid -> paid and is not routed through here.
var allowedTransitions = map[string][]string{
	models.StatusUnpaid:     {models.StatusCancelled},
	models.StatusPaid:       {models.StatusInProgress, models.StatusNoShow, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusNoShow},
}

// CreatePatientBooking creates a provisional unpaid appointment after
// checking the patient holds no other active one. The check and the
// insert share a transaction; on Postgres a partial unique index over
// (patient_id) for active statuses backs the same invariant against
// concurrent double-submits.
func (h *AppointmentHandler) CreatePatientBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientID         uint   `json:"patient_id"`
		DoctorID          uint   `json:"doctor_id"`
		Date              string `json:"date"`
		StartTime         string `json:"start_time"`
		EndTime           string `json:"end_time"`
		AppointmentTypeID uint   `json:"appointment_type_id"`
		Specialty         string `json:"specialty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.PatientID == 0 || req.DoctorID == 0 || req.Date == "" || req.StartTime == "" ||
		req.EndTime == "" || req.AppointmentTypeID == 0 || req.Specialty == "" {
		http.Error(w, "Missing required booking fields", http.StatusBadRequest)
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	startMin, err := utils.TimeToMinutes(req.StartTime)
	if err != nil {
		http.Error(w, "Invalid start time", http.StatusBadRequest)
		return
	}
	endMin, err := utils.TimeToMinutes(req.EndTime)
	if err != nil {
		http.Error(w, "Invalid end time", http.StatusBadRequest)
		return
	}
	if startMin >= endMin {
		http.Error(w, "Start time must be before end time", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	// Serialize concurrent bookings for the same patient on the patient
	// row before the check-then-insert.
	var patient models.User
	patientQuery := tx.Where("id = ? AND active = ?", req.PatientID, true)
	if tx.Dialector.Name() == "postgres" {
		patientQuery = patientQuery.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := patientQuery.First(&patient).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Patient not found", http.StatusNotFound)
		return
	}

	var activeCount int64
	if err := tx.Model(&models.Appointment{}).
		Where("patient_id = ? AND status IN ? AND active = ?", req.PatientID, models.ActiveStatuses, true).
		Count(&activeCount).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if activeCount > 0 {
		tx.Rollback()
		http.Error(w, "Patient already has an active appointment", http.StatusBadRequest)
		return
	}

	appointment := models.Appointment{
		DoctorID:          req.DoctorID,
		PatientID:         req.PatientID,
		AppointmentTypeID: req.AppointmentTypeID,
		Date:              date,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Status:            models.StatusUnpaid,
		Motive:            req.Specialty,
	}

	if err := tx.Create(&appointment).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating appointment", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing booking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"appointment_id": appointment.ID,
	})
}

func (h *AppointmentHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	appointmentID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var appointment models.Appointment
	if err := h.db.Preload("Doctor").Preload("Patient").Preload("AppointmentType").
		First(&appointment, appointmentID).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointment)
}

func (h *AppointmentHandler) GetPatientAppointments(w http.ResponseWriter, r *http.Request) {
	h.listAppointments(w, r, "patient_id", mux.Vars(r)["patientId"], "Doctor")
}

func (h *AppointmentHandler) GetDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	h.listAppointments(w, r, "doctor_id", mux.Vars(r)["doctorId"], "Patient")
}

func (h *AppointmentHandler) listAppointments(w http.ResponseWriter, r *http.Request, column, idValue, preload string) {
	ownerID, err := strconv.ParseUint(idValue, 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.Appointment{}).Where(column+" = ?", ownerID).Preload(preload)
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if date := r.URL.Query().Get("date"); date != "" {
		query = query.Where("date = ?", date)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error retrieving appointments", http.StatusInternalServerError)
		return
	}

	var appointments []models.Appointment
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("date DESC, start_time DESC").Find(&appointments).Error; err != nil {
		http.Error(w, "Error retrieving appointments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"appointments": appointments,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
		"total_pages":  (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// UpdateStatus applies clinical workflow transitions. Settlement owns the
// unpaid -> paid edge, so it is rejected here.
func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	appointmentID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var appointment models.Appointment
	if err := tx.First(&appointment, appointmentID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}

	if !transitionAllowed(appointment.Status, req.Status) {
		tx.Rollback()
		http.Error(w, "Invalid status transition", http.StatusBadRequest)
		return
	}

	if err := tx.Model(&appointment).Update("status", req.Status).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating appointment", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing update", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Appointment status updated successfully",
	})
}

func transitionAllowed(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ConfirmVerification records the in-person insurance document check.
// Once confirmed, the patient's verified flag is set so later bookings
// skip the requirement.
func (h *AppointmentHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	appointmentID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var req struct {
		CashDifferencePaid bool `json:"cash_difference_paid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var appointment models.Appointment
	if err := tx.First(&appointment, appointmentID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}

	if !appointment.VerificationRequired {
		tx.Rollback()
		http.Error(w, "Appointment does not require verification", http.StatusBadRequest)
		return
	}

	if err := tx.Model(&appointment).Updates(map[string]interface{}{
		"verification_confirmed": true,
		"cash_difference_paid":   req.CashDifferencePaid,
	}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating appointment", http.StatusInternalServerError)
		return
	}

	if err := tx.Model(&models.User{}).Where("id = ?", appointment.PatientID).
		Update("insurance_verified", true).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating patient", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing verification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Insurance verification confirmed",
	})
}
