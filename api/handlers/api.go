package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/parkpal/parkpal-api/api"
	"github.com/parkpal/parkpal-api/api/scheduler"
	"github.com/parkpal/parkpal-api/config"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Scheduler *scheduler.Scheduler
	dbHelper  databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	metrics := api.NewMetricsCollector()
	r.Use(api.MetricsMiddleware(metrics))

	u := User{DB: databases.NewUserDatabase(a.dbHelper)}
	l := Listing{DB: databases.NewListingDatabase(a.dbHelper)}
	b := Booking{
		DB:        databases.NewBookingDatabase(a.dbHelper),
		ListingDB: databases.NewListingDatabase(a.dbHelper),
		PaymentDB: databases.NewPaymentDatabase(a.dbHelper),
		LockDB:    databases.NewLockDatabase(a.dbHelper, "booking_locks"),
		Payments:  StripeService{},
	}
	p := Payment{DB: databases.NewPaymentDatabase(a.dbHelper)}
	v := Verification{
		DB:        databases.NewVerificationDatabase(a.dbHelper),
		BookingDB: databases.NewBookingDatabase(a.dbHelper),
	}
	wh := StripeWebhook{
		Secret:    a.Config.StripeWebhookSecret,
		BookingDB: databases.NewBookingDatabase(a.dbHelper),
		PaymentDB: databases.NewPaymentDatabase(a.dbHelper),
		UserDB:    databases.NewUserDatabase(a.dbHelper),
	}
	admin := Admin{
		ADB:       databases.NewAdminDatabase(a.dbHelper),
		BookingDB: databases.NewBookingDatabase(a.dbHelper),
		Metrics:   metrics,
	}
	cloudinaryHandler := CloudinaryHandler{}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	// webhook endpoint authenticates with the provider signature, not a user token
	r.Handle("/webhooks/stripe", http.HandlerFunc(wh.HandleWebhook)).Methods("POST")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/user/create-user", http.HandlerFunc(u.UserCreateHandler)).Methods("POST")
	apiCreate.Handle("/user/check-user", http.HandlerFunc(u.UserCheckEmailHandler)).Methods("POST")
	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(u.UserHandler))).Methods("GET")
	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(u.UpdateUserByIDHandler))).Methods("PUT")
	apiCreate.Handle("/user/{user_id}/plates", api.Middleware(http.HandlerFunc(u.ListPlatesHandler))).Methods("GET")
	apiCreate.Handle("/user/{user_id}/plates", api.Middleware(http.HandlerFunc(u.AddPlateHandler))).Methods("POST")
	apiCreate.Handle("/user/{user_id}/plates/{plate_id}", api.Middleware(http.HandlerFunc(u.UpdatePlateHandler))).Methods("PUT")
	apiCreate.Handle("/user/{user_id}/plates/{plate_id}", api.Middleware(http.HandlerFunc(u.RemovePlateHandler))).Methods("DELETE")

	apiCreate.Handle("/listing", api.Middleware(http.HandlerFunc(l.CreateListingHandler))).Methods("POST")
	apiCreate.Handle("/listing/{listing_id}", api.Middleware(http.HandlerFunc(l.ListingByIDHandler))).Methods("GET")
	apiCreate.Handle("/listing/{listing_id}", api.Middleware(http.HandlerFunc(l.UpdateListingHandler))).Methods("PUT")
	apiCreate.Handle("/listing/{listing_id}", api.Middleware(http.HandlerFunc(l.DeleteListingHandler))).Methods("DELETE")
	apiCreate.Handle("/listings", api.Middleware(http.HandlerFunc(l.ListingHandler))).Methods("GET")
	apiCreate.Handle("/listings/host/{host_id}", api.Middleware(http.HandlerFunc(l.ListingsByHostIDHandler))).Methods("GET")

	apiCreate.Handle("/booking", api.Middleware(http.HandlerFunc(b.CreateBookingHandler))).Methods("POST")
	apiCreate.Handle("/booking/{booking_id}", api.Middleware(http.HandlerFunc(b.BookingByIDHandler))).Methods("GET")
	apiCreate.Handle("/booking/{booking_id}", api.Middleware(http.HandlerFunc(b.CancelBookingHandler))).Methods("DELETE")
	apiCreate.Handle("/booking/{booking_id}/status", api.Middleware(http.HandlerFunc(b.BookingStatusHandler))).Methods("GET")
	apiCreate.Handle("/bookings/driver/{driver_id}", api.Middleware(http.HandlerFunc(b.BookingsByDriverIDHandler))).Methods("GET")
	apiCreate.Handle("/bookings/listing/{listing_id}", api.Middleware(http.HandlerFunc(b.BookingsByListingIDHandler))).Methods("GET")
	apiCreate.Handle("/bookings/host/{host_id}", api.Middleware(http.HandlerFunc(b.BookingsByHostIDHandler))).Methods("GET")

	apiCreate.Handle("/payment/booking/{booking_id}", api.Middleware(http.HandlerFunc(p.PaymentByBookingIDHandler))).Methods("GET")

	apiCreate.Handle("/booking/{booking_id}/verification", api.Middleware(http.HandlerFunc(v.VerifyPlateHandler))).Methods("POST")
	apiCreate.Handle("/booking/{booking_id}/verifications", api.Middleware(http.HandlerFunc(v.VerificationsByBookingIDHandler))).Methods("GET")
	apiCreate.Handle("/verification/{verification_id}", api.Middleware(http.HandlerFunc(v.ManualOverrideHandler))).Methods("PUT")

	apiCreate.Handle("/generate-signature", api.Middleware(http.HandlerFunc(cloudinaryHandler.GenerateSignature))).Methods("POST")

	adminCreate := r.PathPrefix("/admin/v1").Subrouter()
	adminCreate.Handle("/login", http.HandlerFunc(admin.AdminLoginHandler)).Methods("POST")
	adminCreate.Handle("/bookings", admin.JWTMiddleware(http.HandlerFunc(admin.AdminBookingsHandler))).Methods("GET")
	adminCreate.Handle("/metrics", admin.JWTMiddleware(http.HandlerFunc(admin.AdminMetricsHandler))).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("parkpal-api has connected to the database")

	// initialize stripe
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		return fmt.Errorf("stripe secret key is not set")
	}
	stripe.Key = stripeKey

	if err := databases.EnsureHeadAdmin(a.dbHelper); err != nil {
		zap.S().With(err).Error("failed to bootstrap head admin")
		return err
	}

	a.Scheduler = scheduler.NewScheduler(
		databases.NewBookingDatabase(a.dbHelper),
		databases.NewPaymentDatabase(a.dbHelper),
		databases.NewLockDatabase(a.dbHelper, "scheduler_locks"),
		a.Config.PendingBookingTTL,
	)

	// initialize api router
	a.initializeRoutes()
	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
