// repositories/account_repository.go
package repositories

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/refnet/refnet_backend/config"
	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/services"
)

// AccountRepository implements services.AccountStore on MongoDB. Capacity
// and counter invariants are enforced with single-document conditional
// updates; purchase settlement uses a multi-document transaction so a crash
// can never leave a half-applied commission.
type AccountRepository struct {
	client       *mongo.Client
	users        *mongo.Collection
	transactions *mongo.Collection
}

func NewAccountRepository(client *mongo.Client) *AccountRepository {
	return &AccountRepository{
		client:       client,
		users:        config.GetCollection(client, "users"),
		transactions: config.GetCollection(client, "transactions"),
	}
}

// mapErr converts driver-level failures to the service taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.ErrStoreTimeout
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return services.ErrNotFound
	}
	return err
}

// classifyDuplicate decides which unique index rejected the insert.
func classifyDuplicate(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "username") {
		return services.ErrUsernameTaken
	}
	if strings.Contains(msg, "referralCode") {
		return services.ErrReferralCodeTaken
	}
	return err
}

func (r *AccountRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *AccountRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	byID := make(map[primitive.ObjectID]models.User, len(ids))
	for cursor.Next(ctx) {
		var u models.User
		if err := cursor.Decode(&u); err != nil {
			return nil, err
		}
		byID[u.ID] = u
	}
	if err := cursor.Err(); err != nil {
		return nil, mapErr(err)
	}

	// Preserve leg order.
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.users.FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *AccountRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var u models.User
	err := r.users.FindOne(ctx, bson.M{"referralCode": code}).Decode(&u)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *AccountRepository) Insert(ctx context.Context, u *models.User) error {
	_, err := r.users.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return classifyDuplicate(err)
		}
		return mapErr(err)
	}
	return nil
}

// AppendLeg appends childID only while the leg holds fewer than 8 entries.
// The filter on leg.7 makes the limit check and the append one atomic
// document update.
func (r *AccountRepository) AppendLeg(ctx context.Context, parentID, childID primitive.ObjectID) error {
	filter := bson.M{
		"_id":   parentID,
		"leg.7": bson.M{"$exists": false},
	}
	update := bson.M{"$push": bson.M{"leg": childID}}

	res, err := r.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		// Either the parent is gone or its leg is full.
		if _, err := r.FindByID(ctx, parentID); err != nil {
			return err
		}
		return services.ErrReferralLimitReached
	}
	return nil
}

func (r *AccountRepository) PullLeg(ctx context.Context, parentID, childID primitive.ObjectID) error {
	_, err := r.users.UpdateOne(ctx, bson.M{"_id": parentID}, bson.M{"$pull": bson.M{"leg": childID}})
	return mapErr(err)
}

func (r *AccountRepository) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := r.transactions.InsertOne(ctx, tx)
	return mapErr(err)
}

// SettlePurchase flips the transaction's commissionApplied marker and
// applies the counter increments inside one multi-document transaction. The
// marker doubles as the idempotency guard: when it is already set nothing
// else runs and applied=false is returned.
func (r *AccountRepository) SettlePurchase(ctx context.Context, tx models.Transaction, parentID, grandparentID *primitive.ObjectID, parentCut, grandparentCut float64) (bool, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return false, mapErr(err)
	}
	defer session.EndSession(ctx)

	applied := false
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.transactions.UpdateOne(sc,
			bson.M{"_id": tx.ID, "commissionApplied": false},
			bson.M{"$set": bson.M{"commissionApplied": true}},
		)
		if err != nil {
			return nil, err
		}
		if res.ModifiedCount == 0 {
			return nil, nil
		}
		applied = true

		_, err = r.users.UpdateOne(sc,
			bson.M{"_id": tx.AccountID},
			bson.M{"$inc": bson.M{"totalPurchases": tx.Amount}},
		)
		if err != nil {
			return nil, err
		}

		if parentID != nil && parentCut > 0 {
			_, err = r.users.UpdateOne(sc,
				bson.M{"_id": *parentID},
				bson.M{"$inc": bson.M{"totalProfit": parentCut}},
			)
			if err != nil {
				return nil, err
			}
		}
		if grandparentID != nil && grandparentCut > 0 {
			_, err = r.users.UpdateOne(sc,
				bson.M{"_id": *grandparentID},
				bson.M{"$inc": bson.M{"totalProfit": grandparentCut}},
			)
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return false, mapErr(err)
	}
	return applied, nil
}

func (r *AccountRepository) PendingTransactions(ctx context.Context) ([]models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.transactions.Find(ctx, bson.M{"commissionApplied": false}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var pending []models.Transaction
	if err := cursor.All(ctx, &pending); err != nil {
		return nil, mapErr(err)
	}
	return pending, nil
}
