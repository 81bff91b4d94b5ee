package models

import (
	"gorm.io/gorm"
)

// Schedule is a recurring weekly availability window for a doctor.
// Weekday follows time.Weekday ordinals, Sunday = 0. Times are stored as
// zero-padded "HH:MM" strings so lexicographic comparison matches
// chronological order in SQL where clauses.
type Schedule struct {
	gorm.Model
	DoctorID   uint    `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	Weekday    int     `gorm:"column:weekday;not null" json:"weekday"`
	StartTime  string  `gorm:"column:start_time;size:5;not null" json:"start_time"`
	EndTime    string  `gorm:"column:end_time;size:5;not null" json:"end_time"`
	BreakStart *string `gorm:"column:break_start;size:5" json:"break_start,omitempty"`
	BreakEnd   *string `gorm:"column:break_end;size:5" json:"break_end,omitempty"`

	Doctor *Doctor `gorm:"foreignKey:DoctorID" json:"-"`
}

func (Schedule) TableName() string {
	return "schedules"
}
