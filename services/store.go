package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/models"
)

// AccountStore is the persistence contract the engine runs against: a
// key-addressed record store with point lookups, conditional updates and
// atomic increments. repositories.AccountRepository implements it on
// MongoDB; repositories.MemStore implements it in memory.
type AccountStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByReferralCode(ctx context.Context, code string) (*models.User, error)

	// Insert creates the account. Unique-index conflicts surface as
	// ErrUsernameTaken or ErrReferralCodeTaken.
	Insert(ctx context.Context, u *models.User) error

	// AppendLeg appends childID to the parent's leg only while the leg
	// holds fewer than models.MaxLegs entries, as a single atomic store
	// operation. A full leg fails with ErrReferralLimitReached.
	AppendLeg(ctx context.Context, parentID, childID primitive.ObjectID) error

	// PullLeg removes childID from the parent's leg. Compensation for a
	// registration whose insert failed after the append.
	PullLeg(ctx context.Context, parentID, childID primitive.ObjectID) error

	// InsertTransaction durably records the purchase intent with
	// CommissionApplied=false.
	InsertTransaction(ctx context.Context, tx *models.Transaction) error

	// SettlePurchase applies the purchase in one atomic unit: increment the
	// purchaser's totalPurchases, increment parent/grandparent totalProfit
	// by the given cuts (nil id or zero cut skips that tier), and flip the
	// transaction's CommissionApplied marker. The marker is both guard and
	// commit point, so settling the same transaction twice applies nothing
	// the second time (applied=false is returned).
	SettlePurchase(ctx context.Context, tx models.Transaction, parentID, grandparentID *primitive.ObjectID, parentCut, grandparentCut float64) (applied bool, err error)

	// PendingTransactions returns recorded transactions whose commissions
	// have not been settled yet, oldest first.
	PendingTransactions(ctx context.Context) ([]models.Transaction, error)
}
