package models

import (
	"time"

	"gorm.io/gorm"
)

// Appointment lifecycle: unpaid -> paid -> {in_progress -> completed | no_show} | cancelled.
// Only paid and in_progress count as "active" for the one-appointment-per-patient rule.
const (
	StatusUnpaid     = "unpaid"
	StatusPaid       = "paid"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusNoShow     = "no_show"
	StatusCancelled  = "cancelled"
)

// ActiveStatuses are the lifecycle states that block a patient from
// booking another appointment.
var ActiveStatuses = []string{StatusPaid, StatusInProgress}

type Appointment struct {
	gorm.Model
	DoctorID          uint      `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	PatientID         uint      `gorm:"column:patient_id;not null;index" json:"patient_id"`
	AppointmentTypeID uint      `gorm:"column:appointment_type_id;not null" json:"appointment_type_id"`
	Date              time.Time `gorm:"column:date;not null" json:"date"`
	StartTime         string    `gorm:"column:start_time;size:5;not null" json:"start_time"`
	EndTime           string    `gorm:"column:end_time;size:5;not null" json:"end_time"`
	Status            string    `gorm:"column:status;size:50;not null;default:unpaid" json:"status"`
	Motive            string    `gorm:"column:motive;size:255" json:"motive"`
	Active            bool      `gorm:"column:active;default:true" json:"active"`

	// Pricing snapshot, written once at payment-order creation. Source of
	// truth for the settlement amount check.
	OriginalPrice   float64 `gorm:"column:original_price;default:0" json:"original_price"`
	FinalPrice      float64 `gorm:"column:final_price;default:0" json:"final_price"`
	DiscountAmount  float64 `gorm:"column:discount_amount;default:0" json:"discount_amount"`
	DiscountPercent float64 `gorm:"column:discount_percent;default:0" json:"discount_percent"`
	InsuranceTier   string  `gorm:"column:insurance_tier;size:50" json:"insurance_tier"`

	VerificationRequired  bool `gorm:"column:verification_required;default:false" json:"verification_required"`
	VerificationConfirmed bool `gorm:"column:verification_confirmed;default:false" json:"verification_confirmed"`
	CashDifferencePaid    bool `gorm:"column:cash_difference_paid;default:false" json:"cash_difference_paid"`

	PaymentReference string `gorm:"column:payment_reference;size:255" json:"payment_reference,omitempty"`

	Doctor          *Doctor          `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
	Patient         *User            `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	AppointmentType *AppointmentType `gorm:"foreignKey:AppointmentTypeID" json:"appointment_type,omitempty"`
}
