package repositories

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/services"
)

// MemStore is an in-memory services.AccountStore with the same semantics as
// the Mongo repository: conditional leg append, atomic settlement guarded
// by the commissionApplied marker. Used by tests and local development.
type MemStore struct {
	mu           sync.Mutex
	users        map[primitive.ObjectID]*models.User
	byUsername   map[string]primitive.ObjectID
	byCode       map[string]primitive.ObjectID
	transactions map[primitive.ObjectID]*models.Transaction
	txOrder      []primitive.ObjectID
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:        make(map[primitive.ObjectID]*models.User),
		byUsername:   make(map[string]primitive.ObjectID),
		byCode:       make(map[string]primitive.ObjectID),
		transactions: make(map[primitive.ObjectID]*models.Transaction),
	}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Leg = append([]primitive.ObjectID(nil), u.Leg...)
	return &c
}

func (s *MemStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *MemStore) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, *cloneUser(u))
		}
	}
	return users, nil
}

func (s *MemStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, services.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *MemStore) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, services.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *MemStore) Insert(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[u.Username]; ok {
		return services.ErrUsernameTaken
	}
	if _, ok := s.byCode[u.ReferralCode]; ok {
		return services.ErrReferralCodeTaken
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = cloneUser(u)
	s.byUsername[u.Username] = u.ID
	s.byCode[u.ReferralCode] = u.ID
	return nil
}

func (s *MemStore) AppendLeg(ctx context.Context, parentID, childID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.users[parentID]
	if !ok {
		return services.ErrNotFound
	}
	if !parent.HasCapacity() {
		return services.ErrReferralLimitReached
	}
	parent.Leg = append(parent.Leg, childID)
	return nil
}

func (s *MemStore) PullLeg(ctx context.Context, parentID, childID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.users[parentID]
	if !ok {
		return services.ErrNotFound
	}
	for i, id := range parent.Leg {
		if id == childID {
			parent.Leg = append(parent.Leg[:i], parent.Leg[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	c := *tx
	s.transactions[tx.ID] = &c
	s.txOrder = append(s.txOrder, tx.ID)
	return nil
}

func (s *MemStore) SettlePurchase(ctx context.Context, tx models.Transaction, parentID, grandparentID *primitive.ObjectID, parentCut, grandparentCut float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.transactions[tx.ID]
	if !ok {
		return false, services.ErrNotFound
	}
	if stored.CommissionApplied {
		return false, nil
	}
	purchaser, ok := s.users[tx.AccountID]
	if !ok {
		return false, services.ErrNotFound
	}

	stored.CommissionApplied = true
	purchaser.TotalPurchases += tx.Amount
	if parentID != nil && parentCut > 0 {
		if parent, ok := s.users[*parentID]; ok {
			parent.TotalProfit += parentCut
		}
	}
	if grandparentID != nil && grandparentCut > 0 {
		if grandparent, ok := s.users[*grandparentID]; ok {
			grandparent.TotalProfit += grandparentCut
		}
	}
	return true, nil
}

func (s *MemStore) PendingTransactions(ctx context.Context) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []models.Transaction
	for _, id := range s.txOrder {
		if tx := s.transactions[id]; !tx.CommissionApplied {
			pending = append(pending, *tx)
		}
	}
	return pending, nil
}
