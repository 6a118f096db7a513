package api

import (
	"log"
	"net/http"
	"os"

	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/ekrisshak/ekrisshak-server/service/appointment"
	"github.com/ekrisshak/ekrisshak-server/service/calendar"
	"github.com/ekrisshak/ekrisshak-server/service/contact"
	"github.com/ekrisshak/ekrisshak-server/service/notification"
	"github.com/ekrisshak/ekrisshak-server/service/notify"
	"github.com/ekrisshak/ekrisshak-server/service/payment"
	"github.com/ekrisshak/ekrisshak-server/service/request"
	"github.com/ekrisshak/ekrisshak-server/service/search"
	"github.com/ekrisshak/ekrisshak-server/service/user"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	dispatcher := s.newDispatcher()
	mailer := utils.NewSMTPMailer()
	pusher := notification.NewPusher(s.db)
	effects := appointment.NewSideEffects(s.db, mailer, dispatcher, pusher)

	userHandler := user.NewUserHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	requestHandler := request.NewRequestHandler(s.db, mailer, dispatcher, effects)
	requestHandler.RegisterRoutes(subrouter)

	appointmentHandler := appointment.NewAppointmentHandler(s.db, effects)
	appointmentHandler.RegisterRoutes(subrouter)

	calendarHandler := calendar.NewCalendarHandler(s.db, dispatcher)
	calendarHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewNotificationHandler(s.db, pusher)
	notificationHandler.RegisterRoutes(subrouter)

	paymentHandler := payment.NewPaymentHandler(s.db, payment.NewGateway(), mailer, dispatcher)
	paymentHandler.RegisterRoutes(subrouter)

	contactHandler := contact.NewContactHandler(s.db, mailer, dispatcher)
	contactHandler.RegisterRoutes(subrouter)

	searchHandler := search.NewSearchHandler(s.db)
	searchHandler.RegisterRoutes(subrouter)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Razorpay-Signature"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, cors(router))
}

// newDispatcher connects to the broker when AMQP_URL is configured and
// falls back to log-only delivery otherwise, so the server still runs in
// development without a broker.
func (s *APIServer) newDispatcher() notify.Dispatcher {
	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		log.Println("AMQP_URL not set, notifications will be logged only")
		return notify.NewLogDispatcher()
	}
	dispatcher, err := notify.NewAMQPDispatcher(amqpURL, "notifications")
	if err != nil {
		log.Printf("broker connection failed, notifications will be logged only: %v", err)
		return notify.NewLogDispatcher()
	}
	return dispatcher
}
