package api

import (
	"log"
	"net/http"

	"github.com/clinvia/clinica-server/service/appointment"
	"github.com/clinvia/clinica-server/service/availability"
	"github.com/clinvia/clinica-server/service/doctor"
	"github.com/clinvia/clinica-server/service/notification"
	"github.com/clinvia/clinica-server/service/payment"
	"github.com/clinvia/clinica-server/service/schedule"
	"github.com/clinvia/clinica-server/service/specialty"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	doctorHandler := doctor.NewDoctorHandler(s.db)
	doctorHandler.RegisterRoutes(subrouter)

	scheduleHandler := schedule.NewScheduleHandler(s.db)
	scheduleHandler.RegisterRoutes(subrouter)

	specialtyHandler := specialty.NewSpecialtyHandler(s.db)
	specialtyHandler.RegisterRoutes(subrouter)

	availabilityHandler := availability.NewAvailabilityHandler(s.db)
	availabilityHandler.RegisterRoutes(subrouter)

	appointmentHandler := appointment.NewAppointmentHandler(s.db)
	appointmentHandler.RegisterRoutes(subrouter)

	paymentHandler := payment.NewPaymentHandler(s.db, payment.NewGatewayFromEnv(), notification.NewEmailSender())
	paymentHandler.RegisterRoutes(subrouter)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, corsHandler(router))
}
