package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/changia/platform/internal/provider"
	"github.com/changia/platform/internal/repository"
	"github.com/changia/platform/internal/resolver"
	"github.com/changia/platform/internal/settlement"
)

// RouterConfig carries everything the HTTP layer depends on.
type RouterConfig struct {
	Adapters map[string]provider.Adapter
	Resolver *resolver.Resolver
	Engine   *settlement.Engine

	STK      STKPusher
	Checkout CheckoutInitializer

	Payments      *repository.PaymentRepo
	Requests      *repository.RequestRepo
	Donations     *repository.DonationRepo
	Wallets       *repository.WalletRepo
	Points        *repository.PointsRepo
	Users         *repository.UserRepo
	Communities   *repository.CommunityRepo
	Notifications *repository.NotificationRepo
	Recon         *repository.ReconciliationRepo

	StrictSignature bool
	PaybillNumber   string
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(cfg RouterConfig) http.Handler {
	h := &Handlers{
		adapters:        cfg.Adapters,
		resolver:        cfg.Resolver,
		engine:          cfg.Engine,
		stk:             cfg.STK,
		checkout:        cfg.Checkout,
		payments:        cfg.Payments,
		requests:        cfg.Requests,
		donations:       cfg.Donations,
		wallets:         cfg.Wallets,
		points:          cfg.Points,
		users:           cfg.Users,
		communities:     cfg.Communities,
		notifications:   cfg.Notifications,
		recon:           cfg.Recon,
		strictSignature: cfg.StrictSignature,
		paybillNumber:   cfg.PaybillNumber,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Provider callbacks.
		r.Post("/webhooks/{provider}", h.HandleWebhook)

		// Donations.
		r.Post("/donations", h.InitiateDonation)
		r.Get("/payments/{reference}/status", h.GetPaymentStatus)

		// Requests.
		r.Post("/requests", h.CreateRequest)
		r.Get("/requests", h.ListRequests)
		r.Get("/requests/{id}", h.GetRequest)

		// Users.
		r.Get("/users/{id}", h.GetUser)
		r.Get("/users/{id}/wallet", h.GetWallet)

		// Communities.
		r.Get("/communities", h.ListCommunities)

		// Notifications.
		r.Get("/notifications/{userID}", h.ListNotifications)
		r.Post("/notifications/{id}/delivered", h.MarkNotificationDelivered)

		// Reconciliation.
		r.Get("/reconciliation", h.ListReconciliation)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
