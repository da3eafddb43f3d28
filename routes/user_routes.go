package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refnet/refnet_backend/controllers"
	"github.com/refnet/refnet_backend/middleware"
	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/notifier"
	"github.com/refnet/refnet_backend/utils"
	"github.com/refnet/refnet_backend/websocket"
)

// RegisterUserRoutes wires the authenticated account endpoints
func RegisterUserRoutes(e *echo.Echo, pc *controllers.PurchaseController, rc *controllers.ReferralController, hub *websocket.Hub, changes *notifier.Notifier) {
	api := e.Group("/api", middleware.JWTMiddleware())

	api.POST("/buy", pc.Buy)
	api.GET("/referral", rc.GetReferralData)
	api.GET("/referral/qrcode", rc.GetReferralQRCode)

	api.GET("/ws", func(c echo.Context) error {
		userID, err := utils.GetUserIDFromToken(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, models.Response{
				Status:  http.StatusUnauthorized,
				Message: "Unauthorized",
			})
		}
		return websocket.HandleWebSocket(c, hub, changes, userID)
	})
}
