package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction is the append-only purchase audit record. It is the durable
// intent for commission distribution: CommissionApplied is flipped in the
// same store transaction that applies the increments, so an unapplied
// transaction can always be replayed exactly once.
type Transaction struct {
	ID                primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	AccountID         primitive.ObjectID `json:"accountId" bson:"accountId"`
	Amount            float64            `json:"amount" bson:"amount"`
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
	CommissionApplied bool               `json:"-" bson:"commissionApplied"`
}

// PurchaseRequest is the /api/buy payload
type PurchaseRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// PurchaseResult is returned to the purchaser after a successful purchase
type PurchaseResult struct {
	Transaction    Transaction `json:"transaction"`
	TotalPurchases float64     `json:"totalPurchases"`
	TotalProfit    float64     `json:"totalProfit"`
}
