package availability

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/clinvia/clinica-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type AvailabilityHandler struct {
	db *gorm.DB

	// now is the engine clock, swapped out in tests.
	now func() time.Time
}

func NewAvailabilityHandler(db *gorm.DB) *AvailabilityHandler {
	return &AvailabilityHandler{db: db, now: time.Now}
}

func (h *AvailabilityHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/availability", h.GetAvailability).Methods("POST")
}

type Slot struct {
	DoctorID          uint    `json:"doctor_id"`
	DoctorName        string  `json:"doctor_name"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time"`
	Price             float64 `json:"price"`
	AppointmentTypeID uint    `json:"appointment_type_id"`
	Specialty         string  `json:"specialty"`
}

// GetAvailability returns the open slots for a specialty on a date. An
// unknown specialty is a 404; a day with no doctors, no schedules or no
// free slots is an empty list.
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Specialty string `json:"specialty"`
		Date      string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Specialty == "" || req.Date == "" {
		http.Error(w, "Specialty and date are required", http.StatusBadRequest)
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var apptType models.AppointmentType
	if err := h.db.Where("name = ? AND active = ?", req.Specialty, true).First(&apptType).Error; err != nil {
		http.Error(w, "Specialty not found", http.StatusNotFound)
		return
	}

	var doctors []models.Doctor
	if err := h.db.Where("specialty = ? AND active = ?", req.Specialty, true).Find(&doctors).Error; err != nil {
		http.Error(w, "Error retrieving doctors", http.StatusInternalServerError)
		return
	}

	// Weekday and "today" are derived in UTC so a request near midnight
	// cannot drift across a timezone boundary.
	weekday := int(date.Weekday())
	now := h.now().UTC()
	notBefore := 0
	if now.Format("2006-01-02") == req.Date {
		notBefore = now.Hour()*60 + now.Minute()
	}

	slots := []Slot{}
	for _, doctor := range doctors {
		doctorSlots, err := h.slotsForDoctor(doctor, weekday, date, apptType, notBefore)
		if err != nil {
			http.Error(w, "Error computing availability", http.StatusInternalServerError)
			return
		}
		slots = append(slots, doctorSlots...)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(slots)
}

func (h *AvailabilityHandler) slotsForDoctor(doctor models.Doctor, weekday int, date time.Time, apptType models.AppointmentType, notBefore int) ([]Slot, error) {
	var schedules []models.Schedule
	if err := h.db.Where("doctor_id = ? AND weekday = ?", doctor.ID, weekday).
		Order("start_time").Find(&schedules).Error; err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, nil
	}

	// Non-cancelled bookings block slots regardless of payment state: a
	// provisional unpaid appointment still holds its time.
	var bookings []models.Appointment
	if err := h.db.Where("doctor_id = ? AND date = ? AND status <> ? AND active = ?",
		doctor.ID, date, models.StatusCancelled, true).Find(&bookings).Error; err != nil {
		return nil, err
	}

	busy := make([]Interval, 0, len(bookings))
	for _, booking := range bookings {
		interval, err := intervalFromTimes(booking.StartTime, booking.EndTime)
		if err != nil {
			log.Printf("appointment %d has malformed times %q-%q, skipping", booking.ID, booking.StartTime, booking.EndTime)
			continue
		}
		busy = append(busy, interval)
	}

	var slots []Slot
	for _, schedule := range schedules {
		window, err := intervalFromTimes(schedule.StartTime, schedule.EndTime)
		if err != nil {
			return nil, err
		}
		var lunch *Interval
		if schedule.BreakStart != nil && schedule.BreakEnd != nil {
			interval, err := intervalFromTimes(*schedule.BreakStart, *schedule.BreakEnd)
			if err != nil {
				return nil, err
			}
			lunch = &interval
		}

		for _, candidate := range BuildSlots(window, apptType.DurationMinutes, lunch, busy, notBefore) {
			slots = append(slots, Slot{
				DoctorID:          doctor.ID,
				DoctorName:        doctor.FullName,
				StartTime:         utils.MinutesToTime(candidate.Start),
				EndTime:           utils.MinutesToTime(candidate.End),
				Price:             apptType.BasePrice,
				AppointmentTypeID: apptType.ID,
				Specialty:         apptType.Name,
			})
		}
	}
	return slots, nil
}

func intervalFromTimes(start, end string) (Interval, error) {
	startMin, err := utils.TimeToMinutes(start)
	if err != nil {
		return Interval{}, err
	}
	endMin, err := utils.TimeToMinutes(end)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: startMin, End: endMin}, nil
}
