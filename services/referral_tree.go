package services

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/models"
)

// ReferralTree is the logical tree view over the AccountStore: attach a new
// child under a referral code, walk parent links, resolve legs.
type ReferralTree struct {
	store AccountStore
}

func NewReferralTree(store AccountStore) *ReferralTree {
	return &ReferralTree{store: store}
}

// AttachChild looks up the account owning parentCode and appends childID to
// its leg, returning the parent's id to be stored as the child's parentId.
// The limit check and the append are one atomic store operation, so two
// concurrent registrations under the same parent cannot both slip past a
// leg of 7.
func (t *ReferralTree) AttachChild(ctx context.Context, parentCode string, childID primitive.ObjectID) (primitive.ObjectID, error) {
	parent, err := t.store.FindByReferralCode(ctx, parentCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return primitive.NilObjectID, ErrInvalidReferralCode
		}
		return primitive.NilObjectID, err
	}

	if err := t.store.AppendLeg(ctx, parent.ID, childID); err != nil {
		return primitive.NilObjectID, err
	}
	return parent.ID, nil
}

// Parent returns the direct referrer of the account, or nil for roots.
func (t *ReferralTree) Parent(ctx context.Context, accountID primitive.ObjectID) (*models.User, error) {
	u, err := t.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if u.ParentID == nil {
		return nil, nil
	}
	parent, err := t.store.FindByID(ctx, *u.ParentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return parent, nil
}

// Grandparent returns the referrer's referrer, or nil when the chain ends.
func (t *ReferralTree) Grandparent(ctx context.Context, accountID primitive.ObjectID) (*models.User, error) {
	parent, err := t.Parent(ctx, accountID)
	if err != nil || parent == nil {
		return nil, err
	}
	return t.Parent(ctx, parent.ID)
}

// Children resolves the accounts directly referred by accountID, in leg
// order.
func (t *ReferralTree) Children(ctx context.Context, accountID primitive.ObjectID) ([]models.User, error) {
	u, err := t.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(u.Leg) == 0 {
		return nil, nil
	}
	return t.store.FindByIDs(ctx, u.Leg)
}
