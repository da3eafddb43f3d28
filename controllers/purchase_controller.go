package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/services"
	"github.com/refnet/refnet_backend/utils"
)

// PurchaseController records purchases and triggers commission settlement
type PurchaseController struct {
	engine *services.CommissionService
	logger *log.Logger
}

// NewPurchaseController creates a new purchase controller
func NewPurchaseController(engine *services.CommissionService) *PurchaseController {
	return &PurchaseController{
		engine: engine,
		logger: log.New(os.Stdout, "[PURCHASE] ", log.LstdFlags),
	}
}

// Buy records a purchase for the authenticated account. Commissions for the
// referrer chain are settled as part of the same request.
func (pc *PurchaseController) Buy(c echo.Context) error {
	userID, err := utils.GetUserIDFromToken(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}

	var req models.PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Amount must be greater than zero",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := pc.engine.RecordPurchase(ctx, userID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: err.Error(),
			})
		case errors.Is(err, services.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Account not found",
			})
		case errors.Is(err, services.ErrStoreTimeout):
			return c.JSON(http.StatusServiceUnavailable, models.Response{
				Status:  http.StatusServiceUnavailable,
				Message: "Purchase could not be processed, please retry",
			})
		default:
			pc.logger.Printf("purchase failed for %s: %v", userID.Hex(), err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Error processing purchase",
			})
		}
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Purchase recorded successfully",
		Data:    result,
	})
}
