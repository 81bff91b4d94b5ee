package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/clinvia/clinica-server/cmd/models"
	"gorm.io/gorm"
)

// ErrAmountMismatch means the gateway-declared amount disagrees with the
// appointment's pricing snapshot. It aborts settlement with no writes and
// is never surfaced to the gateway.
var ErrAmountMismatch = errors.New("paid amount does not match appointment price")

// Mailer sends the post-settlement confirmation. Best effort: failures
// are logged and never undo a committed payment.
type Mailer interface {
	SendAppointmentConfirmation(email, patientName, specialty, date, startTime string) error
}

// Reconciler converts an approved gateway payment into exactly one
// invoice and the appointment's unpaid -> paid transition.
type Reconciler struct {
	db      *gorm.DB
	gateway Gateway
	mailer  Mailer

	// Retry knobs for the gateway poll. Production values: 10 attempts
	// from a 5s base delay, doubling each attempt.
	MaxAttempts int
	BaseDelay   time.Duration
}

func NewReconciler(db *gorm.DB, gateway Gateway, mailer Mailer) *Reconciler {
	return &Reconciler{
		db:          db,
		gateway:     gateway,
		mailer:      mailer,
		MaxAttempts: 10,
		BaseDelay:   5 * time.Second,
	}
}

// Reconcile fetches the authoritative payment state and settles the
// referenced appointment. The gateway poll, with its long backoff,
// happens entirely before the local transaction opens so no lock is held
// across retries.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) error {
	payment, err := r.fetchPayment(ctx, paymentID)
	if err != nil {
		log.Printf("payment %s: gateway fetch failed: %v", paymentID, err)
		return err
	}

	if payment.Status != "approved" {
		log.Printf("payment %s has status %q, nothing to settle", paymentID, payment.Status)
		return nil
	}

	appointmentID, err := strconv.ParseUint(payment.ExternalReference, 10, 64)
	if err != nil {
		log.Printf("payment %s: malformed external reference %q", paymentID, payment.ExternalReference)
		return fmt.Errorf("malformed external reference %q", payment.ExternalReference)
	}

	appointment, err := r.settle(uint(appointmentID), payment)
	if err != nil {
		log.Printf("payment %s: settlement for appointment %d failed: %v", paymentID, appointmentID, err)
		return err
	}
	if appointment == nil {
		// Already settled; redelivered callback is a no-op.
		return nil
	}

	r.notify(appointment)
	return nil
}

// fetchPayment polls the gateway with bounded exponential backoff,
// retrying only while the payment is not yet visible. Any other error
// aborts immediately.
func (r *Reconciler) fetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	delay := r.BaseDelay
	for attempt := 1; ; attempt++ {
		payment, err := r.gateway.GetPayment(ctx, paymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
		if attempt >= r.MaxAttempts {
			return nil, fmt.Errorf("payment %s not found after %d attempts: %w", paymentID, r.MaxAttempts, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// settle runs the atomic part: amount check, invoice creation and the
// state transition, all in one transaction. Returns the settled
// appointment, or nil when the appointment had already left unpaid.
func (r *Reconciler) settle(appointmentID uint, payment *Payment) (*models.Appointment, error) {
	tx := r.db.Begin()

	var appointment models.Appointment
	if err := tx.Preload("AppointmentType").Preload("Patient").
		First(&appointment, appointmentID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("appointment %d not found: %w", appointmentID, err)
	}
	if appointment.AppointmentType == nil || appointment.Patient == nil {
		tx.Rollback()
		return nil, fmt.Errorf("appointment %d is missing required associations", appointmentID)
	}

	// State guard: only unpaid settles. Together with the unique index on
	// invoices.appointment_id this makes redelivery idempotent.
	if appointment.Status != models.StatusUnpaid {
		tx.Rollback()
		log.Printf("appointment %d already %s, skipping duplicate settlement", appointmentID, appointment.Status)
		return nil, nil
	}

	if payment.TransactionAmount != appointment.FinalPrice {
		tx.Rollback()
		return nil, fmt.Errorf("%w: gateway declared %.2f, appointment priced at %.2f",
			ErrAmountMismatch, payment.TransactionAmount, appointment.FinalPrice)
	}

	invoice := models.Invoice{
		AppointmentID:     appointment.ID,
		PaymentMethod:     payment.PaymentMethod,
		TransactionAmount: payment.TransactionAmount,
		PaidAmount:        payment.TransactionAmount,
		PaymentStatus:     payment.Status,
		PaidAt:            time.Now().UTC(),
	}
	if err := tx.Create(&invoice).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error creating invoice: %w", err)
	}

	if err := tx.Model(&appointment).Update("status", models.StatusPaid).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error updating appointment: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("error committing settlement: %w", err)
	}

	return &appointment, nil
}

func (r *Reconciler) notify(appointment *models.Appointment) {
	if appointment.Patient.Email == "" {
		return
	}
	err := r.mailer.SendAppointmentConfirmation(
		appointment.Patient.Email,
		appointment.Patient.FullName,
		appointment.AppointmentType.Name,
		appointment.Date.Format("2006-01-02"),
		appointment.StartTime,
	)
	if err != nil {
		log.Printf("confirmation email for appointment %d failed: %v", appointment.ID, err)
	}
}
