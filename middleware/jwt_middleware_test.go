package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestGenerateJWTRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	userID := primitive.NewObjectID().Hex()
	signed, err := GenerateJWT(userID, "alice")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims := &JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("parse: %v (valid=%v)", err, token != nil && token.Valid)
	}
	if claims.UserID != userID || claims.Username != "alice" {
		t.Errorf("claims = %s/%s, want %s/alice", claims.UserID, claims.Username, userID)
	}
	if claims.ExpiresAt <= time.Now().Unix() {
		t.Errorf("token already expired at %d", claims.ExpiresAt)
	}
}

func TestGetJWTSecretMissing(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := GetJWTSecret(); err == nil {
		t.Error("GetJWTSecret with empty env should fail")
	}
	if _, err := GenerateJWT("id", "alice"); err == nil {
		t.Error("GenerateJWT with empty secret should fail")
	}
}

func TestTokenBlacklist(t *testing.T) {
	BlacklistToken("blacklisted-token", time.Now().Add(time.Hour))

	if !IsTokenBlacklisted("blacklisted-token") {
		t.Error("blacklisted token reported as valid")
	}
	if IsTokenBlacklisted("other-token") {
		t.Error("unknown token reported as blacklisted")
	}
}
