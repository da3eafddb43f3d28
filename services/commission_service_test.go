package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/repositories"
	"github.com/refnet/refnet_backend/services"
)

type captureFeed struct {
	mu  sync.Mutex
	ids []primitive.ObjectID
}

func (f *captureFeed) AccountChanged(ids ...primitive.ObjectID) {
	f.mu.Lock()
	f.ids = append(f.ids, ids...)
	f.mu.Unlock()
}

func (f *captureFeed) reset() {
	f.mu.Lock()
	f.ids = nil
	f.mu.Unlock()
}

func (f *captureFeed) contains(id primitive.ObjectID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.ids {
		if got == id {
			return true
		}
	}
	return false
}

type captureBroadcast struct {
	mu        sync.Mutex
	usernames []string
	amounts   []float64
}

func (b *captureBroadcast) PurchaseMade(username string, amount float64) {
	b.mu.Lock()
	b.usernames = append(b.usernames, username)
	b.amounts = append(b.amounts, amount)
	b.mu.Unlock()
}

func newEngine(t *testing.T) (*services.CommissionService, *repositories.MemStore, *captureFeed, *captureBroadcast) {
	t.Helper()
	store := repositories.NewMemStore()
	feed := &captureFeed{}
	broadcast := &captureBroadcast{}
	engine := services.NewCommissionService(store, services.NewReferralTree(store), feed, broadcast, nil)
	return engine, store, feed, broadcast
}

func register(t *testing.T, engine *services.CommissionService, username, referredBy string) *models.RegisterResponse {
	t.Helper()
	resp, err := engine.CreateAccount(context.Background(), username, "hash", "", referredBy)
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", username, err)
	}
	return resp
}

func TestCreateAccountRoot(t *testing.T) {
	engine, store, _, _ := newEngine(t)

	resp := register(t, engine, "alice", "")
	if len(resp.ReferralCode) != 6 {
		t.Errorf("referral code %q, want 6 characters", resp.ReferralCode)
	}

	u, err := store.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u.ParentID != nil {
		t.Errorf("root account has parent %v", u.ParentID)
	}
	if u.TotalProfit != 0 || u.TotalPurchases != 0 {
		t.Errorf("fresh account totals = %.2f / %.2f, want zero", u.TotalProfit, u.TotalPurchases)
	}
}

func TestCreateAccountDuplicateUsername(t *testing.T) {
	engine, _, _, _ := newEngine(t)
	register(t, engine, "alice", "")

	_, err := engine.CreateAccount(context.Background(), "alice", "hash", "", "")
	if !errors.Is(err, services.ErrUsernameTaken) {
		t.Errorf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestCreateAccountWithReferral(t *testing.T) {
	engine, store, feed, _ := newEngine(t)
	ctx := context.Background()

	parentResp := register(t, engine, "alice", "")
	register(t, engine, "bob", parentResp.ReferralCode)

	parent, _ := store.FindByID(ctx, parentResp.ID)
	if len(parent.Leg) != 1 {
		t.Fatalf("parent leg = %d entries, want 1", len(parent.Leg))
	}
	child, _ := store.FindByUsername(ctx, "bob")
	if child.ParentID == nil || *child.ParentID != parentResp.ID {
		t.Errorf("child parentId = %v, want %s", child.ParentID, parentResp.ID.Hex())
	}
	if !feed.contains(parentResp.ID) {
		t.Errorf("registration did not feed the parent's id as changed")
	}
}

func TestCreateAccountBadReferralCode(t *testing.T) {
	engine, store, _, _ := newEngine(t)

	_, err := engine.CreateAccount(context.Background(), "bob", "hash", "", "ZZZZZZ")
	if !errors.Is(err, services.ErrInvalidReferralCode) {
		t.Errorf("err = %v, want ErrInvalidReferralCode", err)
	}
	if _, err := store.FindByUsername(context.Background(), "bob"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("failed registration left an account behind (err = %v)", err)
	}
}

func TestRecordPurchaseInvalidAmount(t *testing.T) {
	engine, _, _, _ := newEngine(t)
	resp := register(t, engine, "alice", "")

	for _, amount := range []float64{0, -50} {
		if _, err := engine.RecordPurchase(context.Background(), resp.ID, amount); !errors.Is(err, services.ErrInvalidAmount) {
			t.Errorf("RecordPurchase(%v) err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

// Purchases at or below the threshold count toward totalPurchases but pay no
// commission anywhere in the chain.
func TestPurchaseAtThresholdPaysNothing(t *testing.T) {
	engine, store, _, _ := newEngine(t)
	ctx := context.Background()

	a := register(t, engine, "alice", "")
	b := register(t, engine, "bob", mustCode(t, store, a.ID))

	result, err := engine.RecordPurchase(ctx, b.ID, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalPurchases != 1000 {
		t.Errorf("totalPurchases = %.2f, want 1000", result.TotalPurchases)
	}

	parent, _ := store.FindByID(ctx, a.ID)
	if parent.TotalProfit != 0 {
		t.Errorf("parent profit = %.2f, want 0", parent.TotalProfit)
	}
}

// A qualifying purchase pays 5% one tier up and 1% two tiers up, and nothing
// beyond that.
func TestPurchaseCommissionChain(t *testing.T) {
	engine, store, feed, broadcast := newEngine(t)
	ctx := context.Background()

	a := register(t, engine, "alice", "")
	b := register(t, engine, "bob", mustCode(t, store, a.ID))
	c := register(t, engine, "carol", mustCode(t, store, b.ID))
	d := register(t, engine, "dave", mustCode(t, store, c.ID))

	// Registrations feed the parent ids; only the purchase's emissions are
	// under test here.
	feed.reset()

	result, err := engine.RecordPurchase(ctx, d.ID, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalPurchases != 2000 {
		t.Errorf("purchaser totalPurchases = %.2f, want 2000", result.TotalPurchases)
	}

	carol, _ := store.FindByID(ctx, c.ID)
	if carol.TotalProfit != 100 {
		t.Errorf("parent profit = %.2f, want 100", carol.TotalProfit)
	}
	bob, _ := store.FindByID(ctx, b.ID)
	if bob.TotalProfit != 20 {
		t.Errorf("grandparent profit = %.2f, want 20", bob.TotalProfit)
	}
	alice, _ := store.FindByID(ctx, a.ID)
	if alice.TotalProfit != 0 {
		t.Errorf("great-grandparent profit = %.2f, want 0", alice.TotalProfit)
	}

	for _, id := range []primitive.ObjectID{d.ID, c.ID, b.ID} {
		if !feed.contains(id) {
			t.Errorf("changed id %s not fed to notifier", id.Hex())
		}
	}
	if feed.contains(a.ID) {
		t.Errorf("untouched great-grandparent fed as changed")
	}

	broadcast.mu.Lock()
	defer broadcast.mu.Unlock()
	if len(broadcast.usernames) != 1 || broadcast.usernames[0] != "dave" || broadcast.amounts[0] != 2000 {
		t.Errorf("broadcast = %v %v, want dave / 2000", broadcast.usernames, broadcast.amounts)
	}
}

// Commission for a parent-only chain: no grandparent means only the 5% cut.
func TestPurchaseParentOnly(t *testing.T) {
	engine, store, _, _ := newEngine(t)
	ctx := context.Background()

	a := register(t, engine, "alice", "")
	b := register(t, engine, "bob", mustCode(t, store, a.ID))

	if _, err := engine.RecordPurchase(ctx, b.ID, 3000); err != nil {
		t.Fatal(err)
	}

	alice, _ := store.FindByID(ctx, a.ID)
	if alice.TotalProfit != 150 {
		t.Errorf("parent profit = %.2f, want 150", alice.TotalProfit)
	}
}

// Concurrent qualifying purchases by the same account must each pay the
// parent exactly once.
func TestConcurrentPurchases(t *testing.T) {
	engine, store, _, _ := newEngine(t)
	ctx := context.Background()

	a := register(t, engine, "alice", "")
	b := register(t, engine, "bob", mustCode(t, store, a.ID))

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.RecordPurchase(ctx, b.ID, 2000); err != nil {
				t.Errorf("RecordPurchase: %v", err)
			}
		}()
	}
	wg.Wait()

	alice, _ := store.FindByID(ctx, a.ID)
	if alice.TotalProfit != n*100 {
		t.Errorf("parent profit = %.2f, want %d", alice.TotalProfit, n*100)
	}
	bob, _ := store.FindByID(ctx, b.ID)
	if bob.TotalPurchases != n*2000 {
		t.Errorf("purchaser totalPurchases = %.2f, want %d", bob.TotalPurchases, n*2000)
	}
}

// A transaction recorded but never settled is applied exactly once by the
// recovery pass, and replaying again changes nothing.
func TestReplayPending(t *testing.T) {
	engine, store, _, _ := newEngine(t)
	ctx := context.Background()

	a := register(t, engine, "alice", "")
	b := register(t, engine, "bob", mustCode(t, store, a.ID))

	tx := &models.Transaction{
		ID:        primitive.NewObjectID(),
		AccountID: b.ID,
		Amount:    2000,
		CreatedAt: time.Now(),
	}
	if err := store.InsertTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := engine.ReplayPending(ctx); err != nil {
			t.Fatalf("ReplayPending pass %d: %v", i+1, err)
		}
	}

	alice, _ := store.FindByID(ctx, a.ID)
	if alice.TotalProfit != 100 {
		t.Errorf("parent profit = %.2f, want exactly 100", alice.TotalProfit)
	}
	bob, _ := store.FindByID(ctx, b.ID)
	if bob.TotalPurchases != 2000 {
		t.Errorf("purchaser totalPurchases = %.2f, want exactly 2000", bob.TotalPurchases)
	}

	pending, _ := store.PendingTransactions(ctx)
	if len(pending) != 0 {
		t.Errorf("pending transactions after replay = %d, want 0", len(pending))
	}
}

func TestRegistrationFillsAllLegs(t *testing.T) {
	engine, store, _, _ := newEngine(t)

	a := register(t, engine, "alice", "")
	code := mustCode(t, store, a.ID)
	for i := 0; i < models.MaxLegs; i++ {
		register(t, engine, fmt.Sprintf("child%d", i), code)
	}

	_, err := engine.CreateAccount(context.Background(), "overflow", "hash", "", code)
	if !errors.Is(err, services.ErrReferralLimitReached) {
		t.Errorf("err = %v, want ErrReferralLimitReached", err)
	}
}

func mustCode(t *testing.T, store *repositories.MemStore, id primitive.ObjectID) string {
	t.Helper()
	u, err := store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return u.ReferralCode
}
