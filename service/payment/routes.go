package payment

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type PaymentHandler struct {
	db         *gorm.DB
	gateway    Gateway
	reconciler *Reconciler
}

func NewPaymentHandler(db *gorm.DB, gateway Gateway, mailer Mailer) *PaymentHandler {
	return &PaymentHandler{
		db:         db,
		gateway:    gateway,
		reconciler: NewReconciler(db, gateway, mailer),
	}
}

func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/payments/create-order", h.CreateOrder).Methods("POST")
	router.HandleFunc("/payments/webhook", h.HandleWebhook).Methods("POST")
}

// CreateOrder resolves tier pricing for an unpaid appointment, persists
// the snapshot, and opens a checkout order at the gateway. The gateway
// echoes the appointment ID back as external reference at settlement.
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppointmentID uint   `json:"appointment_id"`
		Motive        string `json:"motive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == 0 {
		http.Error(w, "Appointment ID is required", http.StatusBadRequest)
		return
	}

	var appointment models.Appointment
	if err := h.db.Preload("AppointmentType").Preload("Patient").
		First(&appointment, req.AppointmentID).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if appointment.AppointmentType == nil || appointment.Patient == nil {
		http.Error(w, "Appointment is missing required associations", http.StatusBadRequest)
		return
	}
	if appointment.Status != models.StatusUnpaid {
		http.Error(w, "Appointment is not awaiting payment", http.StatusBadRequest)
		return
	}

	// The snapshot is written once. A repeated order request, even after
	// the patient's tier changed, reuses the stored price so the amount the
	// reconciler checks against never moves under an open order.
	if appointment.FinalPrice == 0 {
		snapshot := ResolvePricing(appointment.AppointmentType, appointment.Patient.InsuranceTier,
			appointment.Patient.InsuranceVerified)

		if err := h.db.Model(&appointment).Updates(map[string]interface{}{
			"original_price":        snapshot.OriginalPrice,
			"final_price":           snapshot.FinalPrice,
			"discount_amount":       snapshot.DiscountAmount,
			"discount_percent":      snapshot.DiscountPercent,
			"insurance_tier":        snapshot.InsuranceTier,
			"verification_required": snapshot.RequiresVerification,
		}).Error; err != nil {
			http.Error(w, "Error saving pricing", http.StatusInternalServerError)
			return
		}
		appointment.FinalPrice = snapshot.FinalPrice
	}

	title := req.Motive
	if title == "" {
		title = appointment.AppointmentType.Name
	}
	reference := strconv.FormatUint(uint64(appointment.ID), 10)

	order, err := h.gateway.CreateOrder(r.Context(), title, appointment.FinalPrice, reference)
	if err != nil {
		log.Printf("order creation for appointment %d failed: %v", appointment.ID, err)
		http.Error(w, "Error creating payment order", http.StatusBadGateway)
		return
	}

	if err := h.db.Model(&appointment).Update("payment_reference", order.ID).Error; err != nil {
		http.Error(w, "Error saving payment reference", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"order_id":     order.ID,
		"approval_url": order.ApprovalURL,
	})
}

// HandleWebhook receives the gateway's asynchronous callback. It always
// acknowledges with 200: the gateway redelivers on anything else, and
// reconciliation is idempotent on the next delivery anyway. The
// reconciler runs in its own goroutine because its gateway poll may back
// off for minutes.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type string `json:"type"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("webhook payload unreadable: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if payload.Type == "payment" && payload.Data.ID != "" {
		go func(paymentID string) {
			if err := h.reconciler.Reconcile(context.Background(), paymentID); err != nil {
				log.Printf("reconciliation for payment %s abandoned: %v", paymentID, err)
			}
		}(payload.Data.ID)
	}

	w.WriteHeader(http.StatusOK)
}
