package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/refnet/refnet_backend/controllers"
	"github.com/refnet/refnet_backend/middleware"
)

// RegisterAuthRoutes wires the public authentication endpoints
func RegisterAuthRoutes(e *echo.Echo, ac *controllers.AuthController) {
	auth := e.Group("/api/auth")
	auth.POST("/register", ac.Register)
	auth.POST("/login", ac.Login)
	auth.POST("/remember-login", ac.RememberLogin)
	auth.POST("/logout", ac.Logout, middleware.JWTMiddleware())
}
