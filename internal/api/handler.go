package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ticketing-service/internal/auth"
	"ticketing-service/internal/gateway"
	"ticketing-service/internal/models"
	"ticketing-service/internal/service"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	refreshCookieName = "refresh_token"
	signatureHeader   = "X-Razorpay-Signature"
	chargeSeenTTL     = 15 * time.Minute
)

// OrderAPI is the slice of the order service the handlers need.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResponse, error)
	GetPaymentProjection(ctx context.Context, chargeID string) (*service.PaymentProjection, error)
}

// ReconcileAPI is the slice of the reconciliation engine driven by webhooks.
type ReconcileAPI interface {
	MarkPaid(ctx context.Context, capture *gateway.Capture) (*models.Order, error)
	MarkFailed(ctx context.Context, intentID, reason string) (*models.Order, error)
}

// SessionAPI is the slice of the session authority the handlers need.
type SessionAPI interface {
	Register(ctx context.Context, name, email, password string) (*models.User, *service.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.User, *service.TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	VerifyAccess(token string) (string, error)
}

// ChargeMarker is the optional webhook fast-path dedup cache.
type ChargeMarker interface {
	ChargeSeen(ctx context.Context, chargeID string) (bool, error)
	MarkChargeSeen(ctx context.Context, chargeID string, ttl time.Duration) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders        OrderAPI
	engine        ReconcileAPI
	sessions      SessionAPI
	verifier      *gateway.WebhookVerifier
	charges       ChargeMarker
	gatewayKeyID  string
	secureCookies bool
	refreshMaxAge int
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders OrderAPI,
	engine ReconcileAPI,
	sessions SessionAPI,
	verifier *gateway.WebhookVerifier,
	charges ChargeMarker,
	gatewayKeyID string,
	secureCookies bool,
	refreshTTL time.Duration,
) *Handler {
	return &Handler{
		orders:        orders,
		engine:        engine,
		sessions:      sessions,
		verifier:      verifier,
		charges:       charges,
		gatewayKeyID:  gatewayKeyID,
		secureCookies: secureCookies,
		refreshMaxAge: int(refreshTTL.Seconds()),
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes. The webhook route reads the raw request
// body itself; no body-parsing middleware may run ahead of it.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	payment := router.Group("/payment")
	{
		payment.POST("/create-order", h.optionalAuth(), h.createOrder)
		payment.POST("/webhook", h.gatewayWebhook)
		payment.GET("/gateway-key", h.gatewayKey)
		payment.GET("/:chargeId", h.getPayment)
	}

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.POST("/refresh-token", h.refreshToken)
		authGroup.POST("/logout", h.requireAuth(), h.logout)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

func (h *Handler) gatewayKey(c *gin.Context) {
	if h.gatewayKeyID == "" {
		apiError(c, http.StatusInternalServerError, "GATEWAY_KEY_MISSING", "gateway key not configured")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": h.gatewayKeyID})
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	EventRef string `json:"event_ref,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// createOrder handles POST /payment/create-order. Guests are allowed; a
// valid Bearer token attaches the order to the user.
func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), &service.CreateOrderRequest{
		UserID:   c.GetString(ctxUserID),
		EventRef: req.EventRef,
		Amount:   req.Amount,
		Name:     req.Name,
		Email:    req.Email,
	})
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		apiError(c, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a positive integer")
		return
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		apiError(c, http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE", "payment gateway unavailable, try again")
		return
	case err != nil:
		h.logger.Error("Create order failed", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "INTERNAL", "failed to create order")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"gateway_intent_id": resp.IntentID,
		"db_order_id":       resp.OrderID,
		"status":            resp.Status,
	})
}

// gatewayWebhook handles POST /payment/webhook. Verification runs over the
// exact raw bytes of the body; the JSON is only decoded after the digest
// matches.
func (h *Handler) gatewayWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unreadable").Inc()
		apiError(c, http.StatusBadRequest, "INVALID_SIGNATURE", "invalid webhook")
		return
	}

	if err := h.verifier.Verify(body, c.GetHeader(signatureHeader)); err != nil {
		util.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		h.logger.Warn("Webhook signature verification failed",
			zap.String("remote_addr", c.ClientIP()),
			zap.Int("body_bytes", len(body)))
		apiError(c, http.StatusBadRequest, "INVALID_SIGNATURE", "invalid webhook")
		return
	}

	capture, failure, err := gateway.ParseEvent(body)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		h.logger.Warn("Verified webhook body is malformed", zap.Error(err))
		apiError(c, http.StatusBadRequest, "INVALID_INPUT", "malformed event")
		return
	}

	switch {
	case capture != nil:
		h.handleCapture(c, capture)
	case failure != nil:
		h.handleFailure(c, failure)
	default:
		util.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func (h *Handler) handleCapture(c *gin.Context, capture *gateway.Capture) {
	ctx := c.Request.Context()

	if h.charges != nil {
		if seen, err := h.charges.ChargeSeen(ctx, capture.ChargeID); err == nil && seen {
			util.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	order, err := h.engine.MarkPaid(ctx, capture)
	switch {
	case errors.Is(err, service.ErrUnresolvedCapture):
		util.WebhookEventsTotal.WithLabelValues("unresolved").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "unresolved"})
		return
	case errors.Is(err, service.ErrReconciliationConflict):
		util.WebhookEventsTotal.WithLabelValues("conflict").Inc()
		apiError(c, http.StatusConflict, "RECONCILIATION_CONFLICT", "charge conflicts with an existing settlement")
		return
	case err != nil:
		h.logger.Error("Webhook capture processing failed",
			zap.String("charge_id", capture.ChargeID),
			zap.Error(err))
		apiError(c, http.StatusInternalServerError, "INTERNAL", "webhook processing failed")
		return
	}

	if h.charges != nil {
		if err := h.charges.MarkChargeSeen(ctx, capture.ChargeID, chargeSeenTTL); err != nil {
			h.logger.Warn("Failed to mark charge seen", zap.Error(err))
		}
	}

	util.WebhookEventsTotal.WithLabelValues("processed").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "processed", "order_id": order.ID})
}

func (h *Handler) handleFailure(c *gin.Context, failure *gateway.Failure) {
	_, err := h.engine.MarkFailed(c.Request.Context(), failure.IntentID, failure.Reason)
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		util.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case err != nil:
		h.logger.Error("Webhook failure processing failed",
			zap.String("intent_id", failure.IntentID),
			zap.Error(err))
		apiError(c, http.StatusInternalServerError, "INTERNAL", "webhook processing failed")
	default:
		util.WebhookEventsTotal.WithLabelValues("processed").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	}
}

// getPayment handles GET /payment/:chargeId. 404 until the webhook has
// reconciled the charge; clients poll with backoff.
func (h *Handler) getPayment(c *gin.Context) {
	projection, err := h.orders.GetPaymentProjection(c.Request.Context(), c.Param("chargeId"))
	if errors.Is(err, service.ErrOrderNotFound) {
		apiError(c, http.StatusNotFound, "NOT_FOUND", "payment not found")
		return
	}
	if err != nil {
		h.logger.Error("Payment lookup failed", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "INTERNAL", "payment lookup failed")
		return
	}
	c.JSON(http.StatusOK, projection)
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_INPUT", "name, email and password are required")
		return
	}

	user, pair, err := h.sessions.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		apiError(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	case errors.Is(err, store.ErrDuplicateEmail):
		apiError(c, http.StatusConflict, "EMAIL_TAKEN", "email already registered")
		return
	case err != nil:
		h.logger.Error("Registration failed", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "INTERNAL", "registration failed")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusCreated, gin.H{"accessToken": pair.AccessToken, "userId": user.ID})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_INPUT", "email and password are required")
		return
	}

	user, pair, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		apiError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
		return
	case err != nil:
		h.logger.Error("Login failed", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken, "userId": user.ID})
}

// refreshToken handles POST /auth/refresh-token. A missing cookie is a normal
// not-authenticated outcome, not an error.
func (h *Handler) refreshToken(c *gin.Context) {
	presented, err := c.Cookie(refreshCookieName)
	if err != nil || presented == "" {
		apiError(c, http.StatusUnauthorized, "NOT_AUTHENTICATED", "no refresh token")
		return
	}

	pair, err := h.sessions.Rotate(c.Request.Context(), presented)
	switch {
	case errors.Is(err, service.ErrSessionRevoked):
		h.clearRefreshCookie(c)
		apiError(c, http.StatusUnauthorized, "SESSION_REVOKED", "session revoked, log in again")
		return
	case errors.Is(err, auth.ErrInvalidToken):
		h.clearRefreshCookie(c)
		apiError(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid refresh token")
		return
	case err != nil:
		h.logger.Error("Token rotation failed", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "INTERNAL", "token rotation failed")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), c.GetString(ctxUserID)); err != nil {
		h.logger.Error("Logout failed", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "INTERNAL", "logout failed")
		return
	}
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	c.SetCookie(refreshCookieName, token, h.refreshMaxAge, "/auth", "", h.secureCookies, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(refreshCookieName, "", -1, "/auth", "", h.secureCookies, true)
}

func apiError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"code": code, "error": message})
}
