package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/refnet/refnet_backend/middleware"
	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/services"
	"github.com/refnet/refnet_backend/utils"
)

// AuthController contains registration and authentication logic
type AuthController struct {
	engine *services.CommissionService
	store  services.AccountStore
	redis  *redis.Client
	logger *log.Logger
}

// NewAuthController creates a new auth controller
func NewAuthController(engine *services.CommissionService, store services.AccountStore, redisClient *redis.Client) *AuthController {
	return &AuthController{
		engine: engine,
		store:  store,
		redis:  redisClient,
		logger: log.New(os.Stdout, "[AUTH] ", log.LstdFlags),
	}
}

// registrationStatus maps a registration failure to an HTTP status
func registrationStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidReferralCode),
		errors.Is(err, services.ErrReferralLimitReached):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrStoreTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Register handles new account registration, optionally attaching the
// account under the referral code it was invited with.
func (ac *AuthController) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Validation failed",
			Data:    err.Error(),
		})
	}

	username, err := utils.SanitizeUsername(req.Username)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	email := ""
	if req.Email != "" {
		email, err = utils.SanitizeEmail(req.Email)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: err.Error(),
			})
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error registering user",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := ac.engine.CreateAccount(ctx, username, string(hashedPassword), email, utils.SanitizeInput(req.ReferredBy))
	if err != nil {
		status := registrationStatus(err)
		if status == http.StatusInternalServerError {
			ac.logger.Printf("registration failed for %q: %v", username, err)
			return c.JSON(status, models.Response{
				Status:  status,
				Message: "Error registering user",
			})
		}
		return c.JSON(status, models.Response{
			Status:  status,
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "User registered successfully",
		Data:    result,
	})
}

// Login authenticates an account and issues a JWT. With rememberMe a
// long-lived token is stored in Redis for later re-login.
func (ac *AuthController) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Validation failed",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := ac.store.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, models.Response{
				Status:  http.StatusUnauthorized,
				Message: "Invalid credentials",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error logging in",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid credentials",
		})
	}

	token, err := middleware.GenerateJWT(user.ID.Hex(), user.Username)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error logging in",
		})
	}

	data := map[string]interface{}{
		"token":        token,
		"referralCode": user.ReferralCode,
	}

	if req.RememberMe && ac.redis != nil {
		rememberToken, err := utils.GenerateRememberMeToken()
		if err == nil {
			err = utils.StoreRememberMeToken(ctx, ac.redis, rememberToken, utils.RememberedCredentials{
				Username: user.Username,
				UserID:   user.ID.Hex(),
			})
		}
		if err != nil {
			ac.logger.Printf("failed to store remember-me token for %s: %v", user.Username, err)
		} else {
			data["rememberToken"] = rememberToken
		}
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Login successful",
		Data:    data,
	})
}

// RememberLogin exchanges a remember-me token for a fresh JWT.
func (ac *AuthController) RememberLogin(c echo.Context) error {
	var req models.RememberLoginRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	creds, err := utils.GetRememberedCredentials(ctx, ac.redis, req.Token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid or expired remember-me token",
		})
	}

	user, err := ac.store.FindByUsername(ctx, creds.Username)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid or expired remember-me token",
		})
	}

	token, err := middleware.GenerateJWT(user.ID.Hex(), user.Username)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error logging in",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Login successful",
		Data: map[string]interface{}{
			"token":        token,
			"referralCode": user.ReferralCode,
		},
	})
}

// Logout blacklists the current token and drops the remember-me token when
// one is supplied.
func (ac *AuthController) Logout(c echo.Context) error {
	userToken, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "No active session",
		})
	}

	expiry := time.Now().Add(1 * time.Hour)
	if claims, ok := userToken.Claims.(*middleware.JwtCustomClaims); ok && claims.ExpiresAt > 0 {
		expiry = time.Unix(claims.ExpiresAt, 0)
	}
	middleware.BlacklistToken(userToken.Raw, expiry)
	if username := utils.GetUsernameFromToken(c); username != "" {
		ac.logger.Printf("user %s logged out", username)
	}

	var req models.RememberLoginRequest
	if err := c.Bind(&req); err == nil && req.Token != "" && ac.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = utils.DeleteRememberMeToken(ctx, ac.redis, req.Token)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Logged out successfully",
	})
}
