package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/changia/platform/internal/api"
	"github.com/changia/platform/internal/config"
	"github.com/changia/platform/internal/domain"
	"github.com/changia/platform/internal/provider"
	"github.com/changia/platform/internal/repository"
	"github.com/changia/platform/internal/resolver"
	"github.com/changia/platform/internal/settlement"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from environment")
	}
	cfg := config.Load()

	log.Printf("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	paymentRepo := repository.NewPaymentRepo(db)
	requestRepo := repository.NewRequestRepo(db)
	donationRepo := repository.NewDonationRepo(db)
	walletRepo := repository.NewWalletRepo(db)
	pointsRepo := repository.NewPointsRepo(db)
	userRepo := repository.NewUserRepo(db)
	communityRepo := repository.NewCommunityRepo(db)
	notificationRepo := repository.NewNotificationRepo(db)
	reconRepo := repository.NewReconciliationRepo(db)

	// Provider adapters verify and normalize inbound webhooks; clients
	// initiate outbound charges.
	adapters := map[string]provider.Adapter{
		"mpesa":    provider.NewMpesaAdapter(cfg.Mpesa.CallbackSecret),
		"kopokopo": provider.NewKopoKopoAdapter(cfg.KopoKopo.APIKey),
		"paystack": provider.NewPaystackAdapter(cfg.Paystack.SecretKey),
	}
	mpesaClient := provider.NewMpesaClient(cfg.Mpesa)
	paystackClient := provider.NewPaystackClient(cfg.Paystack)

	res := resolver.New(paymentRepo, cfg.ResolverWindow)
	engine := settlement.NewEngine(db, cfg.FundingMargin)

	// Seed communities and users if DB is empty.
	count, err := userRepo.Count(context.Background())
	if err != nil {
		log.Fatalf("Failed to count users: %v", err)
	}
	if count == 0 {
		log.Println("Database is empty, seeding from testdata...")
		if err := seed(userRepo, communityRepo, requestRepo); err != nil {
			log.Printf("WARNING: Failed to seed: %v", err)
		}
	} else {
		log.Printf("Database already has %d users, skipping seed", count)
	}

	// Create router.
	router := api.NewRouter(api.RouterConfig{
		Adapters:        adapters,
		Resolver:        res,
		Engine:          engine,
		STK:             mpesaClient,
		Checkout:        paystackClient,
		Payments:        paymentRepo,
		Requests:        requestRepo,
		Donations:       donationRepo,
		Wallets:         walletRepo,
		Points:          pointsRepo,
		Users:           userRepo,
		Communities:     communityRepo,
		Notifications:   notificationRepo,
		Recon:           reconRepo,
		StrictSignature: cfg.StrictSignature,
		PaybillNumber:   cfg.KopoKopo.PaybillNumber,
	})

	log.Printf("Changia Payment Settlement Engine")
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("API base: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/webhooks/{provider}")
	log.Printf("  POST   /api/v1/donations")
	log.Printf("  GET    /api/v1/payments/{reference}/status")
	log.Printf("  POST   /api/v1/requests")
	log.Printf("  GET    /api/v1/requests")
	log.Printf("  GET    /api/v1/requests/{id}")
	log.Printf("  GET    /api/v1/users/{id}")
	log.Printf("  GET    /api/v1/users/{id}/wallet")
	log.Printf("  GET    /api/v1/communities")
	log.Printf("  GET    /api/v1/notifications/{userID}")
	log.Printf("  POST   /api/v1/notifications/{id}/delivered")
	log.Printf("  GET    /api/v1/reconciliation")
	log.Printf("  GET    /api/v1/dashboard")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

type seedData struct {
	Communities []domain.Community `json:"communities"`
	Users       []domain.User      `json:"users"`
	Requests    []domain.Request   `json:"requests"`
}

func seed(users *repository.UserRepo, communities *repository.CommunityRepo, requests *repository.RequestRepo) error {
	// Try multiple possible locations for testdata.
	candidates := []string{
		"testdata/seed.json",
		filepath.Join(".", "testdata", "seed.json"),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "seed.json"),
			filepath.Join(dir, "..", "..", "testdata", "seed.json"),
		)
	}

	var data []byte
	var err error
	for _, path := range candidates {
		data, err = os.ReadFile(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		return err
	}

	var s seedData
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	ctx := context.Background()
	for i := range s.Communities {
		if err := communities.Insert(ctx, &s.Communities[i]); err != nil {
			return err
		}
	}
	for i := range s.Users {
		if err := users.Insert(ctx, &s.Users[i]); err != nil {
			return err
		}
	}
	for i := range s.Requests {
		if s.Requests[i].Status == "" {
			s.Requests[i].Status = domain.RequestPending
		}
		if s.Requests[i].Currency == "" {
			s.Requests[i].Currency = "KES"
		}
		if err := requests.Insert(ctx, &s.Requests[i]); err != nil {
			return err
		}
	}
	log.Printf("Seeded %d communities, %d users, %d requests",
		len(s.Communities), len(s.Users), len(s.Requests))
	return nil
}
