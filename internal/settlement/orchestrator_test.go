package settlement

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/changia/platform/internal/domain"
	"github.com/changia/platform/internal/repository"
)

type fixture struct {
	db     *sql.DB
	engine *Engine

	payments      *repository.PaymentRepo
	requests      *repository.RequestRepo
	donations     *repository.DonationRepo
	wallets       *repository.WalletRepo
	ledger        *repository.LedgerRepo
	points        *repository.PointsRepo
	users         *repository.UserRepo
	communities   *repository.CommunityRepo
	notifications *repository.NotificationRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &fixture{
		db:            db,
		engine:        NewEngine(db, 1.1),
		payments:      repository.NewPaymentRepo(db),
		requests:      repository.NewRequestRepo(db),
		donations:     repository.NewDonationRepo(db),
		wallets:       repository.NewWalletRepo(db),
		ledger:        repository.NewLedgerRepo(db),
		points:        repository.NewPointsRepo(db),
		users:         repository.NewUserRepo(db),
		communities:   repository.NewCommunityRepo(db),
		notifications: repository.NewNotificationRepo(db),
	}
}

func (f *fixture) seedRequest(t *testing.T, target float64) *domain.Request {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	community := &domain.Community{ID: "com-test", Name: "Test Welfare Group", CreatedAt: now}
	if err := f.communities.Insert(ctx, community); err != nil {
		t.Fatalf("insert community: %v", err)
	}
	owner := &domain.User{ID: "usr-owner", FullName: "Request Owner", Level: 1, CreatedAt: now}
	if err := f.users.Insert(ctx, owner); err != nil {
		t.Fatalf("insert owner: %v", err)
	}

	req := &domain.Request{
		ID:           uuid.NewString(),
		UserID:       owner.ID,
		CommunityID:  community.ID,
		Title:        "Hospital bill",
		TargetAmount: target,
		Currency:     "KES",
		Status:       domain.RequestPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.requests.Insert(ctx, req); err != nil {
		t.Fatalf("insert request: %v", err)
	}
	return req
}

func (f *fixture) seedIntent(t *testing.T, requestID, donorID string, amount float64, providerRef string) *domain.Payment {
	t.Helper()
	now := time.Now().UTC()
	p := &domain.Payment{
		ID:          uuid.NewString(),
		UserID:      donorID,
		RequestID:   requestID,
		Amount:      amount,
		Currency:    "KES",
		Method:      domain.MethodMpesa,
		Status:      domain.PaymentPending,
		Phone:       "254722000111",
		ProviderRef: providerRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.payments.Insert(context.Background(), p); err != nil {
		t.Fatalf("insert intent: %v", err)
	}
	return p
}

func event(externalRef string, amount float64) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		Provider:    "mpesa",
		ExternalRef: externalRef,
		Receipt:     "RCPT-" + externalRef,
		Amount:      amount,
		Currency:    "KES",
		Payer:       "254722000111",
		Succeeded:   true,
		OccurredAt:  time.Now().UTC(),
	}
}

func TestSettleAppliesAllEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, 10000)
	intent := f.seedIntent(t, req.ID, "usr-donor", 700, "ws_CO_1")

	res, err := f.engine.Settle(ctx, intent, event("MPESA-REF-1", 700))
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.AlreadySettled {
		t.Error("first settlement reported as duplicate")
	}
	if res.PaymentID != intent.ID {
		t.Errorf("PaymentID = %s, want %s", res.PaymentID, intent.ID)
	}
	// 700/50 = 14 base + 10 first-timer.
	if res.PointsEarned != 24 {
		t.Errorf("PointsEarned = %d, want 24", res.PointsEarned)
	}
	if res.NewLevel != 2 {
		t.Errorf("NewLevel = %d, want 2", res.NewLevel)
	}
	if res.RequestFunded {
		t.Error("request reported funded at 700 of 10000")
	}

	payment, err := f.payments.GetByID(ctx, intent.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment.Status != domain.PaymentCompleted {
		t.Errorf("payment status = %s", payment.Status)
	}
	if payment.ExternalRef != "MPESA-REF-1" || payment.Receipt != "RCPT-MPESA-REF-1" {
		t.Errorf("payment refs = %q / %q", payment.ExternalRef, payment.Receipt)
	}

	reloaded, err := f.requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if reloaded.FundedAmount != 700 {
		t.Errorf("FundedAmount = %v, want 700", reloaded.FundedAmount)
	}
	if reloaded.Status != domain.RequestPending {
		t.Errorf("request status = %s, want PENDING", reloaded.Status)
	}

	wallet, err := f.wallets.Get(ctx, req.UserID)
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if wallet.Balance != 700 {
		t.Errorf("wallet balance = %v, want 700", wallet.Balance)
	}

	entries, err := f.ledger.ListByUser(ctx, req.UserID, 10)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != 700 {
		t.Errorf("ledger entries = %+v", entries)
	}

	donor, err := f.users.GetByID(ctx, "usr-donor")
	if err != nil {
		t.Fatalf("load donor: %v", err)
	}
	if donor.TotalDonated != 700 || donor.DonationCount != 1 || donor.Level != 2 {
		t.Errorf("donor projection = %+v", donor)
	}

	owner, err := f.notifications.ListPendingByUser(ctx, req.UserID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(owner) != 1 || owner[0].Kind != domain.NotifyDonationReceived {
		t.Errorf("owner notifications = %+v", owner)
	}
	donorNotes, err := f.notifications.ListPendingByUser(ctx, "usr-donor")
	if err != nil {
		t.Fatalf("list donor notifications: %v", err)
	}
	if len(donorNotes) != 1 || donorNotes[0].Kind != domain.NotifyPointsEarned {
		t.Errorf("donor notifications = %+v", donorNotes)
	}
}

func TestFundedFiresExactlyOnceAtMargin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, 1000) // threshold 1100 at margin 1.1

	first := f.seedIntent(t, req.ID, "usr-a", 700, "ws_CO_a")
	if res, err := f.engine.Settle(ctx, first, event("REF-A", 700)); err != nil {
		t.Fatalf("settle first: %v", err)
	} else if res.RequestFunded {
		t.Error("700 of 1100 reported funded")
	}

	second := f.seedIntent(t, req.ID, "usr-b", 400, "ws_CO_b")
	res, err := f.engine.Settle(ctx, second, event("REF-B", 400))
	if err != nil {
		t.Fatalf("settle second: %v", err)
	}
	if !res.RequestFunded {
		t.Error("1100 of 1100 not reported funded")
	}

	reloaded, err := f.requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if reloaded.Status != domain.RequestFunded {
		t.Errorf("request status = %s, want FUNDED", reloaded.Status)
	}
	if reloaded.FundedAmount != 1100 {
		t.Errorf("FundedAmount = %v, want 1100", reloaded.FundedAmount)
	}

	// Third donation must not fire the goal transition again.
	third := f.seedIntent(t, req.ID, "usr-c", 100, "ws_CO_c")
	res, err = f.engine.Settle(ctx, third, event("REF-C", 100))
	if err != nil {
		t.Fatalf("settle third: %v", err)
	}
	if res.RequestFunded {
		t.Error("FUNDED transition fired twice")
	}

	n, err := f.notifications.CountByKind(ctx, req.UserID, domain.NotifyGoalReached)
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if n != 1 {
		t.Errorf("GOAL_REACHED notifications = %d, want exactly 1", n)
	}

	// Funded amount must reconcile with the completed donations.
	reloaded, err = f.requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	donated, err := f.donations.SumCompletedByRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("sum donations: %v", err)
	}
	if donated != reloaded.FundedAmount {
		t.Errorf("donation sum = %v, funded = %v, must reconcile", donated, reloaded.FundedAmount)
	}

	community, err := f.communities.GetByID(ctx, "com-test")
	if err != nil {
		t.Fatalf("load community: %v", err)
	}
	if community.SuccessfulRequests != 1 {
		t.Errorf("SuccessfulRequests = %d, want 1", community.SuccessfulRequests)
	}
	if community.TotalDonations != 1200 {
		t.Errorf("TotalDonations = %v, want 1200", community.TotalDonations)
	}
}

func TestDuplicateDeliverySettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, 10000)
	intent := f.seedIntent(t, req.ID, "usr-donor", 700, "ws_CO_1")
	ev := event("MPESA-REF-DUP", 700)

	first, err := f.engine.Settle(ctx, intent, ev)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// Redelivery of the same event resolves to the same intent.
	res, settled, err := f.engine.AlreadySettled(ctx, ev.ExternalRef)
	if err != nil {
		t.Fatalf("AlreadySettled: %v", err)
	}
	if !settled {
		t.Fatal("duplicate not detected")
	}
	if res.PaymentID != first.PaymentID || res.DonationID != first.DonationID {
		t.Errorf("prior result mismatch: %+v vs %+v", res, first)
	}
	if res.PointsEarned != first.PointsEarned {
		t.Errorf("prior points = %d, want %d", res.PointsEarned, first.PointsEarned)
	}

	reloaded, err := f.requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if reloaded.FundedAmount != 700 {
		t.Errorf("FundedAmount = %v after duplicate, want 700", reloaded.FundedAmount)
	}
	wallet, err := f.wallets.Get(ctx, req.UserID)
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if wallet.Balance != 700 {
		t.Errorf("wallet balance = %v after duplicate, want 700", wallet.Balance)
	}
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, 10000)
	intent := f.seedIntent(t, req.ID, "usr-donor", 700, "ws_CO_1")
	ev := event("MPESA-REF-RACE", 700)

	const deliveries = 4
	results := make([]*Result, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.Settle(ctx, intent, ev)
		}(i)
	}
	wg.Wait()

	settledFresh := 0
	for i := 0; i < deliveries; i++ {
		if errs[i] != nil {
			t.Fatalf("delivery %d: %v", i, errs[i])
		}
		if !results[i].AlreadySettled {
			settledFresh++
		}
	}
	if settledFresh != 1 {
		t.Fatalf("fresh settlements = %d, want exactly 1", settledFresh)
	}

	reloaded, err := f.requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if reloaded.FundedAmount != 700 {
		t.Errorf("FundedAmount = %v, want 700", reloaded.FundedAmount)
	}
	total, err := f.points.TotalForUser(ctx, "usr-donor")
	if err != nil {
		t.Fatalf("total points: %v", err)
	}
	if total != 24 {
		t.Errorf("points total = %d, want 24", total)
	}
}

func TestConcurrentDistinctSettlementsReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, 1000) // threshold 1100 at margin 1.1

	const donors = 5
	intents := make([]*domain.Payment, donors)
	for i := 0; i < donors; i++ {
		intents[i] = f.seedIntent(t, req.ID, "usr-"+string(rune('a'+i)), 300, "ws_CO_"+string(rune('a'+i)))
	}

	results := make([]*Result, donors)
	errs := make([]error, donors)

	var wg sync.WaitGroup
	for i := 0; i < donors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := "REF-" + string(rune('A'+i))
			results[i], errs[i] = f.engine.Settle(ctx, intents[i], event(ref, 300))
		}(i)
	}
	wg.Wait()

	funded := 0
	for i := 0; i < donors; i++ {
		if errs[i] != nil {
			t.Fatalf("settle %d: %v", i, errs[i])
		}
		if results[i].AlreadySettled {
			t.Errorf("distinct payment %d reported as duplicate", i)
		}
		if results[i].RequestFunded {
			funded++
		}
	}
	if funded != 1 {
		t.Errorf("FUNDED transitions = %d, want exactly 1", funded)
	}

	reloaded, err := f.requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if reloaded.FundedAmount != donors*300 {
		t.Errorf("FundedAmount = %v, want %v", reloaded.FundedAmount, donors*300)
	}
	if reloaded.Status != domain.RequestFunded {
		t.Errorf("request status = %s, want FUNDED", reloaded.Status)
	}
	donated, err := f.donations.SumCompletedByRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("sum donations: %v", err)
	}
	if donated != reloaded.FundedAmount {
		t.Errorf("donation sum = %v, funded = %v, must reconcile", donated, reloaded.FundedAmount)
	}
	n, err := f.notifications.CountByKind(ctx, req.UserID, domain.NotifyGoalReached)
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if n != 1 {
		t.Errorf("GOAL_REACHED notifications = %d, want exactly 1", n)
	}
}

func TestSettleUsesProviderConfirmedAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, 10000)
	intent := f.seedIntent(t, req.ID, "usr-donor", 500, "ws_CO_1")

	// The provider confirmed more than the intent asked for. Every ledger
	// row must carry the confirmed amount, the payment row included.
	res, err := f.engine.Settle(ctx, intent, event("MPESA-REF-AMT", 650))
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	payment, err := f.payments.GetByID(ctx, intent.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment.Amount != 650 {
		t.Errorf("payment amount = %v, want 650", payment.Amount)
	}
	donation, err := f.donations.GetByPaymentID(ctx, res.PaymentID)
	if err != nil {
		t.Fatalf("load donation: %v", err)
	}
	if donation.Amount != payment.Amount {
		t.Errorf("donation amount = %v, payment amount = %v, must agree", donation.Amount, payment.Amount)
	}
	reloaded, err := f.requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if reloaded.FundedAmount != 650 {
		t.Errorf("FundedAmount = %v, want 650", reloaded.FundedAmount)
	}
	wallet, err := f.wallets.Get(ctx, req.UserID)
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if wallet.Balance != 650 {
		t.Errorf("wallet balance = %v, want 650", wallet.Balance)
	}
}

func TestSettleSynthesizedIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, 10000)

	// Direct paybill payment: no pending row, the resolver synthesized the
	// intent from webhook metadata.
	intent := &domain.Payment{
		UserID:    "usr-direct",
		RequestID: req.ID,
		Amount:    500,
		Currency:  "KES",
		Method:    domain.MethodKopoKopo,
		Phone:     "254711000333",
	}
	ev := event("KK-REF-1", 500)

	res, err := f.engine.Settle(ctx, intent, ev)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.PaymentID == "" {
		t.Fatal("no payment row created for synthesized intent")
	}

	payment, err := f.payments.GetByID(ctx, res.PaymentID)
	if err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != domain.PaymentCompleted {
		t.Errorf("payment status = %s", payment.Status)
	}

	// A redelivery of the same reference must hit the unique index.
	dup, err := f.engine.Settle(ctx, intent, ev)
	if err != nil {
		t.Fatalf("duplicate settle: %v", err)
	}
	if !dup.AlreadySettled {
		t.Error("duplicate synthesized settlement not detected")
	}
	if dup.PaymentID != res.PaymentID {
		t.Errorf("duplicate resolved to %s, want %s", dup.PaymentID, res.PaymentID)
	}
}

func TestSettleRejectsIntentWithoutRequest(t *testing.T) {
	f := newFixture(t)
	intent := &domain.Payment{UserID: "usr-x", Amount: 100}
	if _, err := f.engine.Settle(context.Background(), intent, event("REF-X", 100)); err == nil {
		t.Fatal("expected error for intent without request")
	}
}
