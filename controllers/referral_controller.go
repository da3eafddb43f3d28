package controllers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/labstack/echo/v4"

	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/services"
	"github.com/refnet/refnet_backend/utils"
)

// ReferralController serves the referral dashboard
type ReferralController struct {
	store  services.AccountStore
	tree   *services.ReferralTree
	logger *log.Logger
}

// NewReferralController creates a new referral controller
func NewReferralController(store services.AccountStore, tree *services.ReferralTree) *ReferralController {
	return &ReferralController{
		store:  store,
		tree:   tree,
		logger: log.New(os.Stdout, "[REFERRAL] ", log.LstdFlags),
	}
}

// GetReferralData returns the account's referral code, shareable link and a
// summary row for every direct referral.
func (rc *ReferralController) GetReferralData(c echo.Context) error {
	userID, err := utils.GetUserIDFromToken(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := rc.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Account not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error fetching referral data",
		})
	}

	children, err := rc.tree.Children(ctx, user.ID)
	if err != nil {
		rc.logger.Printf("failed to load legs for %s: %v", userID.Hex(), err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error fetching referral data",
		})
	}

	legs := make([]models.LegSummary, 0, len(children))
	for _, child := range children {
		legs = append(legs, models.LegSummary{
			Username:       child.Username,
			TotalPurchases: child.TotalPurchases,
			TotalProfit:    child.TotalProfit,
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Referral data retrieved successfully",
		Data: models.ReferralData{
			ReferralCode:  user.ReferralCode,
			ReferralLink:  utils.ReferralLink(os.Getenv("BASE_URL"), user.ReferralCode),
			ReferralCount: len(legs),
			TotalProfit:   user.TotalProfit,
			Legs:          legs,
		},
	})
}

// GetReferralQRCode renders the referral link as a QR code and returns it as
// a base64 PNG data URI.
func (rc *ReferralController) GetReferralQRCode(c echo.Context) error {
	userID, err := utils.GetUserIDFromToken(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := rc.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Account not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error generating QR code",
		})
	}

	link := utils.ReferralLink(os.Getenv("BASE_URL"), user.ReferralCode)

	qrCode, err := qr.Encode(link, qr.M, qr.Auto)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error generating QR code",
		})
	}
	qrCode, err = barcode.Scale(qrCode, 300, 300)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error generating QR code",
		})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qrCode); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error generating QR code",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "QR code generated successfully",
		Data: map[string]interface{}{
			"qrCode":       "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
			"referralCode": user.ReferralCode,
			"referralLink": link,
		},
	})
}
