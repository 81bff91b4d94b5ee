package schedule

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Doctor{}, &models.Schedule{}); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func seedDoctor(t *testing.T, db *gorm.DB) models.Doctor {
	t.Helper()
	doctor := models.Doctor{FullName: "Dr. Elena Vargas", Specialty: "Cardiology", Active: true}
	if err := db.Create(&doctor).Error; err != nil {
		t.Fatalf("seeding doctor: %v", err)
	}
	return doctor
}

func createSchedule(t *testing.T, h *ScheduleHandler, doctorID uint, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/doctors/1/schedules", strings.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"doctorId": fmt.Sprint(doctorID)})
	rec := httptest.NewRecorder()
	h.CreateSchedule(rec, req)
	return rec
}

func TestCreateSchedule_Valid(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db)
	h := NewScheduleHandler(db)

	rec := createSchedule(t, h, doctor.ID,
		`{"weekday":1,"start_time":"09:00","end_time":"17:00","break_start":"12:00","break_end":"13:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var count int64
	db.Model(&models.Schedule{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 schedule, got %d", count)
	}
}

func TestCreateSchedule_RejectsOverlap(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db)
	h := NewScheduleHandler(db)

	if rec := createSchedule(t, h, doctor.ID,
		`{"weekday":1,"start_time":"09:00","end_time":"12:00"}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d", rec.Code)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"contained", `{"weekday":1,"start_time":"10:00","end_time":"11:00"}`, http.StatusConflict},
		{"straddles start", `{"weekday":1,"start_time":"08:00","end_time":"09:30"}`, http.StatusConflict},
		{"straddles end", `{"weekday":1,"start_time":"11:30","end_time":"14:00"}`, http.StatusConflict},
		{"covers", `{"weekday":1,"start_time":"08:00","end_time":"13:00"}`, http.StatusConflict},
		{"touches end", `{"weekday":1,"start_time":"12:00","end_time":"15:00"}`, http.StatusCreated},
		{"touches start", `{"weekday":1,"start_time":"07:00","end_time":"09:00"}`, http.StatusCreated},
		{"other weekday", `{"weekday":2,"start_time":"09:00","end_time":"12:00"}`, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := createSchedule(t, h, doctor.ID, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateSchedule_Validation(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db)
	h := NewScheduleHandler(db)

	tests := []struct {
		name string
		body string
	}{
		{"start after end", `{"weekday":1,"start_time":"17:00","end_time":"09:00"}`},
		{"start equals end", `{"weekday":1,"start_time":"09:00","end_time":"09:00"}`},
		{"break before window", `{"weekday":1,"start_time":"09:00","end_time":"17:00","break_start":"08:00","break_end":"08:30"}`},
		{"break touches start", `{"weekday":1,"start_time":"09:00","end_time":"17:00","break_start":"09:00","break_end":"10:00"}`},
		{"break touches end", `{"weekday":1,"start_time":"09:00","end_time":"17:00","break_start":"16:00","break_end":"17:00"}`},
		{"break reversed", `{"weekday":1,"start_time":"09:00","end_time":"17:00","break_start":"14:00","break_end":"13:00"}`},
		{"break half set", `{"weekday":1,"start_time":"09:00","end_time":"17:00","break_start":"12:00"}`},
		{"malformed time", `{"weekday":1,"start_time":"9am","end_time":"17:00"}`},
		{"bad weekday", `{"weekday":7,"start_time":"09:00","end_time":"17:00"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := createSchedule(t, h, doctor.ID, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateSchedule_UnknownDoctor(t *testing.T) {
	db := newTestDB(t)
	h := NewScheduleHandler(db)

	rec := createSchedule(t, h, 99, `{"weekday":1,"start_time":"09:00","end_time":"12:00"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateSchedule_ExcludesOwnInterval(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db)
	h := NewScheduleHandler(db)

	if rec := createSchedule(t, h, doctor.ID,
		`{"weekday":1,"start_time":"09:00","end_time":"12:00"}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d", rec.Code)
	}
	if rec := createSchedule(t, h, doctor.ID,
		`{"weekday":1,"start_time":"14:00","end_time":"18:00"}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d", rec.Code)
	}

	update := func(id string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/doctors/1/schedules/"+id, strings.NewReader(body))
		req = mux.SetURLVars(req, map[string]string{"doctorId": fmt.Sprint(doctor.ID), "id": id})
		rec := httptest.NewRecorder()
		h.UpdateSchedule(rec, req)
		return rec
	}

	// Shrinking a template inside its own old interval must not conflict
	// with itself.
	if rec := update("1", `{"weekday":1,"start_time":"09:30","end_time":"11:30"}`); rec.Code != http.StatusOK {
		t.Fatalf("self-overlapping update rejected: %d %s", rec.Code, rec.Body.String())
	}

	// Moving onto the other template still conflicts.
	if rec := update("1", `{"weekday":1,"start_time":"13:00","end_time":"15:00"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overlap with other template, got %d", rec.Code)
	}
}

func TestUpdateSchedule_InactiveDoctor(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db)
	h := NewScheduleHandler(db)

	if rec := createSchedule(t, h, doctor.ID,
		`{"weekday":1,"start_time":"09:00","end_time":"12:00"}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d", rec.Code)
	}
	if err := db.Model(&doctor).Update("active", false).Error; err != nil {
		t.Fatalf("deactivating doctor: %v", err)
	}

	// Updates load and lock the doctor row just like creates; a retired
	// doctor's templates are no longer editable.
	req := httptest.NewRequest(http.MethodPut, "/doctors/1/schedules/1",
		strings.NewReader(`{"weekday":1,"start_time":"10:00","end_time":"11:00"}`))
	req = mux.SetURLVars(req, map[string]string{"doctorId": fmt.Sprint(doctor.ID), "id": "1"})
	rec := httptest.NewRecorder()
	h.UpdateSchedule(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for inactive doctor, got %d", rec.Code)
	}
}

func TestDeleteSchedulesForDoctor(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db)
	other := models.Doctor{FullName: "Dr. Marco Ruiz", Specialty: "Cardiology", Active: true}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("seeding doctor: %v", err)
	}

	for _, s := range []models.Schedule{
		{DoctorID: doctor.ID, Weekday: 1, StartTime: "09:00", EndTime: "12:00"},
		{DoctorID: doctor.ID, Weekday: 2, StartTime: "09:00", EndTime: "12:00"},
		{DoctorID: other.ID, Weekday: 1, StartTime: "09:00", EndTime: "12:00"},
	} {
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("seeding schedule: %v", err)
		}
	}

	if err := DeleteSchedulesForDoctor(db, doctor.ID); err != nil {
		t.Fatalf("DeleteSchedulesForDoctor: %v", err)
	}

	var remaining []models.Schedule
	db.Find(&remaining)
	if len(remaining) != 1 || remaining[0].DoctorID != other.ID {
		t.Fatalf("expected only the other doctor's schedule to remain, got %+v", remaining)
	}
}
