package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type fakeGateway struct {
	payment  *Payment
	err      error
	getCalls int
}

func (f *fakeGateway) CreateOrder(ctx context.Context, title string, amount float64, externalReference string) (*Order, error) {
	return &Order{ID: "order-1", ApprovalURL: "https://gateway.test/checkout/order-1"}, nil
}

func (f *fakeGateway) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	f.getCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payment, nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) SendAppointmentConfirmation(email, patientName, specialty, date, startTime string) error {
	f.sent = append(f.sent, email)
	return f.err
}

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

	if err := db.AutoMigrate(&models.User{}, &models.Doctor{}, &models.AppointmentType{},
		&models.Appointment{}, &models.Invoice{}); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

// seedUnpaidAppointment creates a priced unpaid appointment (ID 1) with
// its patient and appointment type.
func seedUnpaidAppointment(t *testing.T, db *gorm.DB) models.Appointment {
	t.Helper()
	patient := models.User{FullName: "Ana Morales", Email: "ana@example.com",
		InsuranceTier: models.TierPublicInsurer, Active: true}
	if err := db.Create(&patient).Error; err != nil {
		t.Fatalf("seeding patient: %v", err)
	}
	apptType := models.AppointmentType{Name: "Cardiology", DurationMinutes: 30, BasePrice: 10000, Active: true}
	if err := db.Create(&apptType).Error; err != nil {
		t.Fatalf("seeding appointment type: %v", err)
	}
	date, _ := time.ParseInLocation("2006-01-02", "2026-09-07", time.UTC)
	appointment := models.Appointment{
		DoctorID: 1, PatientID: patient.ID, AppointmentTypeID: apptType.ID,
		Date: date, StartTime: "09:00", EndTime: "09:30",
		Status: models.StatusUnpaid, Active: true,
		OriginalPrice: 10000, FinalPrice: 7000, DiscountAmount: 3000, DiscountPercent: 30,
		InsuranceTier: models.TierPublicInsurer,
	}
	if err := db.Create(&appointment).Error; err != nil {
		t.Fatalf("seeding appointment: %v", err)
	}
	return appointment
}

func approvedPayment(reference string, amount float64) *Payment {
	return &Payment{
		ID:                "pay-77",
		Status:            "approved",
		PaymentMethod:     "credit_card",
		TransactionAmount: amount,
		ExternalReference: reference,
	}
}

func fastReconciler(db *gorm.DB, gateway Gateway, mailer Mailer) *Reconciler {
	r := NewReconciler(db, gateway, mailer)
	r.MaxAttempts = 3
	r.BaseDelay = time.Millisecond
	return r
}

func TestReconcile_SettlesApprovedPayment(t *testing.T) {
	db := newTestDB(t)
	appointment := seedUnpaidAppointment(t, db)
	gateway := &fakeGateway{payment: approvedPayment("1", 7000)}
	mailer := &fakeMailer{}
	r := fastReconciler(db, gateway, mailer)

	if err := r.Reconcile(context.Background(), "pay-77"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	var settled models.Appointment
	if err := db.First(&settled, appointment.ID).Error; err != nil {
		t.Fatalf("loading appointment: %v", err)
	}
	if settled.Status != models.StatusPaid {
		t.Errorf("appointment status = %q, want paid", settled.Status)
	}

	var invoices []models.Invoice
	db.Find(&invoices)
	if len(invoices) != 1 {
		t.Fatalf("expected exactly 1 invoice, got %d", len(invoices))
	}
	invoice := invoices[0]
	if invoice.AppointmentID != appointment.ID || invoice.TransactionAmount != 7000 ||
		invoice.PaidAmount != 7000 || invoice.PaymentStatus != "approved" ||
		invoice.PaymentMethod != "credit_card" {
		t.Errorf("unexpected invoice %+v", invoice)
	}

	if len(mailer.sent) != 1 || mailer.sent[0] != "ana@example.com" {
		t.Errorf("expected one confirmation to ana@example.com, got %v", mailer.sent)
	}
}

func TestReconcile_RedeliveryIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	appointment := seedUnpaidAppointment(t, db)
	gateway := &fakeGateway{payment: approvedPayment("1", 7000)}
	mailer := &fakeMailer{}
	r := fastReconciler(db, gateway, mailer)

	if err := r.Reconcile(context.Background(), "pay-77"); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if err := r.Reconcile(context.Background(), "pay-77"); err != nil {
		t.Fatalf("redelivered Reconcile must be a no-op, got %v", err)
	}

	var invoiceCount int64
	db.Model(&models.Invoice{}).Where("appointment_id = ?", appointment.ID).Count(&invoiceCount)
	if invoiceCount != 1 {
		t.Fatalf("expected exactly 1 invoice after redelivery, got %d", invoiceCount)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected exactly 1 confirmation email, got %d", len(mailer.sent))
	}
}

func TestReconcile_AmountMismatchAborts(t *testing.T) {
	db := newTestDB(t)
	appointment := seedUnpaidAppointment(t, db)
	gateway := &fakeGateway{payment: approvedPayment("1", 5000)}
	mailer := &fakeMailer{}
	r := fastReconciler(db, gateway, mailer)

	err := r.Reconcile(context.Background(), "pay-77")
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	var current models.Appointment
	db.First(&current, appointment.ID)
	if current.Status != models.StatusUnpaid {
		t.Errorf("appointment status = %q, want unpaid", current.Status)
	}
	var invoiceCount int64
	db.Model(&models.Invoice{}).Count(&invoiceCount)
	if invoiceCount != 0 {
		t.Errorf("expected no invoice, got %d", invoiceCount)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("expected no confirmation email, got %v", mailer.sent)
	}
}

func TestReconcile_IgnoresUnapprovedStatus(t *testing.T) {
	db := newTestDB(t)
	seedUnpaidAppointment(t, db)
	payment := approvedPayment("1", 7000)
	payment.Status = "pending"
	gateway := &fakeGateway{payment: payment}
	r := fastReconciler(db, gateway, &fakeMailer{})

	if err := r.Reconcile(context.Background(), "pay-77"); err != nil {
		t.Fatalf("non-approved status must be silently ignored, got %v", err)
	}

	var invoiceCount int64
	db.Model(&models.Invoice{}).Count(&invoiceCount)
	if invoiceCount != 0 {
		t.Errorf("expected no invoice, got %d", invoiceCount)
	}
}

func TestReconcile_RetriesExhaustOnNotFound(t *testing.T) {
	db := newTestDB(t)
	appointment := seedUnpaidAppointment(t, db)
	gateway := &fakeGateway{err: ErrPaymentNotFound}
	r := fastReconciler(db, gateway, &fakeMailer{})

	err := r.Reconcile(context.Background(), "pay-77")
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected wrapped ErrPaymentNotFound, got %v", err)
	}
	if gateway.getCalls != 3 {
		t.Errorf("expected 3 gateway attempts, got %d", gateway.getCalls)
	}

	var current models.Appointment
	db.First(&current, appointment.ID)
	if current.Status != models.StatusUnpaid {
		t.Errorf("appointment status = %q, want unpaid", current.Status)
	}
}

func TestReconcile_NonRetryableGatewayErrorAbortsImmediately(t *testing.T) {
	db := newTestDB(t)
	seedUnpaidAppointment(t, db)
	gateway := &fakeGateway{err: errors.New("gateway payment query failed with status 500")}
	r := fastReconciler(db, gateway, &fakeMailer{})

	if err := r.Reconcile(context.Background(), "pay-77"); err == nil {
		t.Fatal("expected error")
	}
	if gateway.getCalls != 1 {
		t.Errorf("expected a single attempt for a non-retryable error, got %d", gateway.getCalls)
	}
}

func TestReconcile_MalformedExternalReference(t *testing.T) {
	db := newTestDB(t)
	seedUnpaidAppointment(t, db)
	gateway := &fakeGateway{payment: approvedPayment("not-a-number", 7000)}
	r := fastReconciler(db, gateway, &fakeMailer{})

	if err := r.Reconcile(context.Background(), "pay-77"); err == nil {
		t.Fatal("expected error for malformed external reference")
	}
	var invoiceCount int64
	db.Model(&models.Invoice{}).Count(&invoiceCount)
	if invoiceCount != 0 {
		t.Errorf("expected no invoice, got %d", invoiceCount)
	}
}

func TestReconcile_MailerFailureDoesNotUndoSettlement(t *testing.T) {
	db := newTestDB(t)
	appointment := seedUnpaidAppointment(t, db)
	gateway := &fakeGateway{payment: approvedPayment("1", 7000)}
	mailer := &fakeMailer{err: errors.New("smtp unreachable")}
	r := fastReconciler(db, gateway, mailer)

	if err := r.Reconcile(context.Background(), "pay-77"); err != nil {
		t.Fatalf("mailer failure must not fail reconciliation, got %v", err)
	}

	var current models.Appointment
	db.First(&current, appointment.ID)
	if current.Status != models.StatusPaid {
		t.Errorf("appointment status = %q, want paid", current.Status)
	}
}

func TestHandleWebhook_AlwaysAcknowledges(t *testing.T) {
	db := newTestDB(t)
	gateway := &fakeGateway{err: errors.New("gateway down")}
	h := NewPaymentHandler(db, gateway, &fakeMailer{})

	for _, body := range []string{
		`{"type":"payment","data":{"id":"pay-77"}}`,
		`{"type":"merchant_order","data":{"id":"mo-1"}}`,
		`{"type":"payment","data":{}}`,
		`not even json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.HandleWebhook(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("webhook body %q: expected 200, got %d", body, rec.Code)
		}
	}
}
