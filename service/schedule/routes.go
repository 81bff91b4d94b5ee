package schedule

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/clinvia/clinica-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errStartAfterEnd      = errors.New("start time must be before end time")
	errBreakIncomplete    = errors.New("break start and break end must both be set")
	errBreakOutsideWindow = errors.New("break must lie strictly within the working window")
)

type ScheduleHandler struct {
	db *gorm.DB
}

func NewScheduleHandler(db *gorm.DB) *ScheduleHandler {
	return &ScheduleHandler{db: db}
}

func (h *ScheduleHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/doctors/{doctorId}/schedules", utils.RequireAuth(h.CreateSchedule)).Methods("POST")
	router.HandleFunc("/doctors/{doctorId}/schedules", h.GetSchedules).Methods("GET")
	router.HandleFunc("/doctors/{doctorId}/schedules/{id}", utils.RequireAuth(h.UpdateSchedule)).Methods("PUT")
	router.HandleFunc("/doctors/{doctorId}/schedules/{id}", utils.RequireAuth(h.DeleteSchedule)).Methods("DELETE")
}

type scheduleRequest struct {
	Weekday    int     `json:"weekday"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	BreakStart *string `json:"break_start,omitempty"`
	BreakEnd   *string `json:"break_end,omitempty"`
}

// validateWindow checks the HH:MM fields of a template: start before end,
// and the optional lunch break strictly inside the working window.
func validateWindow(req scheduleRequest) error {
	start, err := utils.TimeToMinutes(req.StartTime)
	if err != nil {
		return err
	}
	end, err := utils.TimeToMinutes(req.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return errStartAfterEnd
	}
	if (req.BreakStart == nil) != (req.BreakEnd == nil) {
		return errBreakIncomplete
	}
	if req.BreakStart != nil {
		breakStart, err := utils.TimeToMinutes(*req.BreakStart)
		if err != nil {
			return err
		}
		breakEnd, err := utils.TimeToMinutes(*req.BreakEnd)
		if err != nil {
			return err
		}
		if breakStart >= breakEnd || breakStart <= start || breakEnd >= end {
			return errBreakOutsideWindow
		}
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		return utils.ErrInvalidWeekday
	}
	return nil
}

// countOverlapping reports how many other templates of the same
// (doctor, weekday) overlap [start,end). Intervals are half-open, so two
// templates touching at a boundary do not conflict. Lexicographic
// comparison of zero-padded HH:MM strings is chronological.
func countOverlapping(tx *gorm.DB, doctorID uint, req scheduleRequest, excludeID uint) (int64, error) {
	query := tx.Model(&models.Schedule{}).
		Where("doctor_id = ? AND weekday = ? AND start_time < ? AND end_time > ?",
			doctorID, req.Weekday, req.EndTime, req.StartTime)
	if excludeID != 0 {
		query = query.Where("id != ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doctorID, err := strconv.ParseUint(vars["doctorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateWindow(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	// Lock the doctor row so two concurrent template writes for the same
	// doctor serialize on the overlap check.
	var doctor models.Doctor
	doctorQuery := tx.Where("id = ? AND active = ?", doctorID, true)
	if tx.Dialector.Name() == "postgres" {
		doctorQuery = doctorQuery.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := doctorQuery.First(&doctor).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}

	overlapping, err := countOverlapping(tx, doctor.ID, req, 0)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if overlapping > 0 {
		tx.Rollback()
		http.Error(w, "Schedule overlaps with an existing schedule", http.StatusConflict)
		return
	}

	schedule := models.Schedule{
		DoctorID:   doctor.ID,
		Weekday:    req.Weekday,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		BreakStart: req.BreakStart,
		BreakEnd:   req.BreakEnd,
	}

	if err := tx.Create(&schedule).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating schedule", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error saving schedule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(schedule)
}

func (h *ScheduleHandler) GetSchedules(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doctorID, err := strconv.ParseUint(vars["doctorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	query := h.db.Where("doctor_id = ?", doctorID)
	if weekdayStr := r.URL.Query().Get("weekday"); weekdayStr != "" {
		weekday, err := strconv.Atoi(weekdayStr)
		if err != nil {
			http.Error(w, "Invalid weekday", http.StatusBadRequest)
			return
		}
		query = query.Where("weekday = ?", weekday)
	}

	var schedules []models.Schedule
	if err := query.Order("weekday, start_time").Find(&schedules).Error; err != nil {
		http.Error(w, "Error retrieving schedules", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedules)
}

func (h *ScheduleHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doctorID, err := strconv.ParseUint(vars["doctorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}
	scheduleID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateWindow(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	// Same doctor-row lock as CreateSchedule so a concurrent create or
	// update for this doctor cannot slip past the overlap check.
	var doctor models.Doctor
	doctorQuery := tx.Where("id = ? AND active = ?", doctorID, true)
	if tx.Dialector.Name() == "postgres" {
		doctorQuery = doctorQuery.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := doctorQuery.First(&doctor).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}

	var schedule models.Schedule
	if err := tx.Where("id = ? AND doctor_id = ?", scheduleID, doctorID).First(&schedule).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}

	overlapping, err := countOverlapping(tx, schedule.DoctorID, req, schedule.ID)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if overlapping > 0 {
		tx.Rollback()
		http.Error(w, "Schedule overlaps with an existing schedule", http.StatusConflict)
		return
	}

	schedule.Weekday = req.Weekday
	schedule.StartTime = req.StartTime
	schedule.EndTime = req.EndTime
	schedule.BreakStart = req.BreakStart
	schedule.BreakEnd = req.BreakEnd

	if err := tx.Save(&schedule).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating schedule", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error saving schedule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doctorID, err := strconv.ParseUint(vars["doctorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}
	scheduleID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	result := h.db.Where("id = ? AND doctor_id = ?", scheduleID, doctorID).Delete(&models.Schedule{})
	if result.Error != nil {
		http.Error(w, "Error deleting schedule", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Schedule deleted successfully",
	})
}

// DeleteSchedulesForDoctor removes every weekly template owned by a
// doctor. Called from the deactivation cascade inside its transaction.
func DeleteSchedulesForDoctor(tx *gorm.DB, doctorID uint) error {
	return tx.Where("doctor_id = ?", doctorID).Delete(&models.Schedule{}).Error
}
