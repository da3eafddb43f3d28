// utils/auth.go
package utils

import (
	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/middleware"
)

// GetUserIDFromToken extracts the user ID from the JWT token
func GetUserIDFromToken(c echo.Context) (primitive.ObjectID, error) {
	if idStr, err := middleware.ExtractUserID(c); err == nil {
		return primitive.ObjectIDFromHex(idStr)
	}

	// Fallback for tokens parsed without the custom claims type
	user, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return primitive.ObjectID{}, echo.ErrUnauthorized
	}
	if claims, ok := user.Claims.(jwt.MapClaims); ok {
		if idStr, ok := claims["userId"].(string); ok {
			return primitive.ObjectIDFromHex(idStr)
		}
	}

	return primitive.ObjectID{}, echo.ErrUnauthorized
}

// GetUsernameFromToken extracts the username claim from the JWT token
func GetUsernameFromToken(c echo.Context) string {
	user, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return ""
	}
	if claims, ok := user.Claims.(*middleware.JwtCustomClaims); ok {
		return claims.Username
	}
	return ""
}
