// models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User model. Tree relations are id-based edges: ParentID is a non-owning
// back-reference, Leg holds the ids of directly referred accounts and is
// append-only with at most 8 entries.
type User struct {
	ID             primitive.ObjectID   `json:"id,omitempty" bson:"_id,omitempty"`
	Username       string               `json:"username" bson:"username"`
	Password       string               `json:"password,omitempty" bson:"password"`
	ReferralCode   string               `json:"referralCode,omitempty" bson:"referralCode"`
	ReferredBy     string               `json:"referredBy,omitempty" bson:"referredBy,omitempty"`
	ParentID       *primitive.ObjectID  `json:"parentId,omitempty" bson:"parentId,omitempty"`
	Leg            []primitive.ObjectID `json:"leg,omitempty" bson:"leg,omitempty"`
	TotalProfit    float64              `json:"totalProfit" bson:"totalProfit"`
	TotalPurchases float64              `json:"totalPurchases" bson:"totalPurchases"`
	Email          string               `json:"email,omitempty" bson:"email,omitempty"`
	FCMToken       string               `json:"fcmToken,omitempty" bson:"fcmToken,omitempty"`
	CreatedAt      time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// MaxLegs is the referral capacity of a single account.
const MaxLegs = 8

// HasCapacity reports whether the account can take another direct referral.
func (u *User) HasCapacity() bool {
	return len(u.Leg) < MaxLegs
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=32"`
	Password   string `json:"password" validate:"required,min=6"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	ReferredBy string `json:"referredBy,omitempty"`
}

// LoginRequest is the login payload
type LoginRequest struct {
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type RememberLoginRequest struct {
	Token string `json:"token" validate:"required"`
}

// RegisterResponse carries the identity fields fixed at creation
type RegisterResponse struct {
	ID           primitive.ObjectID `json:"id"`
	ReferralCode string             `json:"referralCode"`
}

// LegSummary is one leg row of the referral dashboard
type LegSummary struct {
	Username       string  `json:"username"`
	TotalPurchases float64 `json:"totalPurchases"`
	TotalProfit    float64 `json:"totalProfit"`
}

// ReferralData is returned by GET /api/referral
type ReferralData struct {
	ReferralCode  string       `json:"referralCode"`
	ReferralLink  string       `json:"referralLink"`
	ReferralCount int          `json:"referralCount"`
	TotalProfit   float64      `json:"totalProfit"`
	Legs          []LegSummary `json:"legs,omitempty"`
}

// Response model
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
