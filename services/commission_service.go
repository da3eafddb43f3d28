package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/utils"
)

// Commission distribution rule: purchases strictly above the threshold pay
// 5% to the direct parent and 1% to the grandparent. Nothing propagates
// deeper than two tiers.
const (
	CommissionThreshold = 1000.0
	ParentRate          = 0.05
	GrandparentRate     = 0.01

	codeGenAttempts = 5
)

// ChangeFeed receives the ids of mutated accounts. The notifier consumes
// the feed once and multicasts derived rows to its subscribers.
type ChangeFeed interface {
	AccountChanged(ids ...primitive.ObjectID)
}

// Broadcaster fans a successful purchase out to every connected observer,
// not filtered per anchor.
type Broadcaster interface {
	PurchaseMade(username string, amount float64)
}

// Alerter delivers out-of-band notifications (email, push). Implementations
// must not block the caller.
type Alerter interface {
	WelcomeEmail(u models.User)
	CommissionEarned(beneficiaryID primitive.ObjectID, fromUsername string, amount float64)
}

// CommissionService is the purchase and registration entry point: it owns
// account creation, multi-tier commission distribution and the recovery
// pass for unsettled transactions.
type CommissionService struct {
	store     AccountStore
	tree      *ReferralTree
	feed      ChangeFeed
	broadcast Broadcaster
	alerts    Alerter
	logger    *log.Logger
}

// NewCommissionService creates the engine. feed, broadcast and alerts may be
// nil; the engine then mutates state without emitting the matching events.
func NewCommissionService(store AccountStore, tree *ReferralTree, feed ChangeFeed, broadcast Broadcaster, alerts Alerter) *CommissionService {
	return &CommissionService{
		store:     store,
		tree:      tree,
		feed:      feed,
		broadcast: broadcast,
		alerts:    alerts,
		logger:    log.New(os.Stdout, "[ENGINE] ", log.LstdFlags),
	}
}

// CreateAccount registers a new account. The password arrives already
// hashed; validation happens before any mutation. When a referral code is
// supplied the new account is attached under its owner, subject to the
// capacity of 8.
func (s *CommissionService) CreateAccount(ctx context.Context, username, passwordHash, email, referredBy string) (*models.RegisterResponse, error) {
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	newID := primitive.NewObjectID()

	var parentID *primitive.ObjectID
	if referredBy != "" {
		pid, err := s.tree.AttachChild(ctx, referredBy, newID)
		if err != nil {
			return nil, err
		}
		parentID = &pid
	}

	now := time.Now()
	for attempt := 0; attempt < codeGenAttempts; attempt++ {
		code, err := utils.GenerateReferralCode()
		if err != nil {
			s.detachOnFailure(parentID, newID)
			return nil, err
		}

		user := &models.User{
			ID:           newID,
			Username:     username,
			Password:     passwordHash,
			Email:        email,
			ReferralCode: code,
			ReferredBy:   referredBy,
			ParentID:     parentID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err = s.store.Insert(ctx, user)
		if errors.Is(err, ErrReferralCodeTaken) {
			continue
		}
		if err != nil {
			s.detachOnFailure(parentID, newID)
			return nil, err
		}

		if parentID != nil && s.feed != nil {
			s.feed.AccountChanged(*parentID)
		}
		if s.alerts != nil {
			s.alerts.WelcomeEmail(*user)
		}
		return &models.RegisterResponse{ID: newID, ReferralCode: code}, nil
	}

	s.detachOnFailure(parentID, newID)
	return nil, fmt.Errorf("referral code generation exhausted after %d attempts", codeGenAttempts)
}

// detachOnFailure undoes the leg append of a registration whose insert did
// not go through. Best effort on a fresh context since the request's one
// may already be dead.
func (s *CommissionService) detachOnFailure(parentID *primitive.ObjectID, childID primitive.ObjectID) {
	if parentID == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.PullLeg(ctx, *parentID, childID); err != nil {
		s.logger.Printf("failed to detach %s from %s after aborted registration: %v", childID.Hex(), parentID.Hex(), err)
	}
}

// RecordPurchase appends the transaction, updates the purchaser's
// totalPurchases and distributes tier-1/tier-2 commission. The transaction
// record is the durable intent: once it is written, a failed settlement is
// recoverable through ReplayPending.
func (s *CommissionService) RecordPurchase(ctx context.Context, accountID primitive.ObjectID, amount float64) (*models.PurchaseResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	purchaser, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tx := models.Transaction{
		ID:        primitive.NewObjectID(),
		AccountID: accountID,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertTransaction(ctx, &tx); err != nil {
		return nil, err
	}

	touched, err := s.settle(ctx, tx)
	if err != nil {
		s.logger.Printf("purchase %s recorded but not settled: %v", tx.ID.Hex(), err)
		return nil, err
	}

	updated, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.emit(touched)
	if s.broadcast != nil {
		s.broadcast.PurchaseMade(purchaser.Username, amount)
	}

	tx.CommissionApplied = true
	return &models.PurchaseResult{
		Transaction:    tx,
		TotalPurchases: updated.TotalPurchases,
		TotalProfit:    updated.TotalProfit,
	}, nil
}

// settle resolves the ancestor chain, computes the cuts and applies the
// purchase atomically. Returns the ids of every account it touched.
func (s *CommissionService) settle(ctx context.Context, tx models.Transaction) ([]primitive.ObjectID, error) {
	touched := []primitive.ObjectID{tx.AccountID}

	var parentID, grandparentID *primitive.ObjectID
	var parentCut, grandparentCut float64

	if tx.Amount > CommissionThreshold {
		parent, err := s.tree.Parent(ctx, tx.AccountID)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			parentID = &parent.ID
			parentCut = tx.Amount * ParentRate

			grandparent, err := s.tree.Parent(ctx, parent.ID)
			if err != nil {
				return nil, err
			}
			if grandparent != nil {
				grandparentID = &grandparent.ID
				grandparentCut = tx.Amount * GrandparentRate
			}
		}
	}

	applied, err := s.store.SettlePurchase(ctx, tx, parentID, grandparentID, parentCut, grandparentCut)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Already settled by an earlier attempt or a concurrent replay.
		return touched, nil
	}

	purchaser, err := s.store.FindByID(ctx, tx.AccountID)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		touched = append(touched, *parentID)
		if s.alerts != nil {
			s.alerts.CommissionEarned(*parentID, purchaser.Username, parentCut)
		}
	}
	if grandparentID != nil {
		touched = append(touched, *grandparentID)
		if s.alerts != nil {
			s.alerts.CommissionEarned(*grandparentID, purchaser.Username, grandparentCut)
		}
	}
	return touched, nil
}

func (s *CommissionService) emit(ids []primitive.ObjectID) {
	if s.feed == nil || len(ids) == 0 {
		return
	}
	s.feed.AccountChanged(ids...)
}

// ReplayPending settles every recorded-but-unapplied transaction exactly
// once. Run at startup to recover from a crash between transaction insert
// and commission application.
func (s *CommissionService) ReplayPending(ctx context.Context) error {
	pending, err := s.store.PendingTransactions(ctx)
	if err != nil {
		return err
	}
	for _, tx := range pending {
		touched, err := s.settle(ctx, tx)
		if err != nil {
			return fmt.Errorf("replay of transaction %s: %w", tx.ID.Hex(), err)
		}
		s.emit(touched)
		s.logger.Printf("replayed commission for transaction %s (amount %.2f)", tx.ID.Hex(), tx.Amount)
	}
	return nil
}
