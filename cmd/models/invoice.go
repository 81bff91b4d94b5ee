package models

import (
	"time"

	"gorm.io/gorm"
)

// Invoice records a settled payment. The unique index on AppointmentID is
// the hard guarantee that a redelivered gateway callback can never produce
// a second invoice for the same appointment.
type Invoice struct {
	gorm.Model
	AppointmentID     uint      `gorm:"column:appointment_id;not null;uniqueIndex" json:"appointment_id"`
	PaymentMethod     string    `gorm:"column:payment_method;size:100" json:"payment_method"`
	TransactionAmount float64   `gorm:"column:transaction_amount;not null" json:"transaction_amount"`
	PaidAmount        float64   `gorm:"column:paid_amount;not null" json:"paid_amount"`
	PaymentStatus     string    `gorm:"column:payment_status;size:50;not null" json:"payment_status"`
	PaidAt            time.Time `gorm:"column:paid_at" json:"paid_at"`
	Active            bool      `gorm:"column:active;default:true" json:"active"`

	Appointment *Appointment `gorm:"foreignKey:AppointmentID" json:"-"`
}
