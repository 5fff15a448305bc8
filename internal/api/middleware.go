package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticketing-service/internal/auth"
	"ticketing-service/internal/util"

	"github.com/gin-gonic/gin"
)

const ctxUserID = "userID"

// requireAuth rejects requests without a valid Bearer access token.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			apiError(c, http.StatusUnauthorized, "NOT_AUTHENTICATED", "missing access token")
			c.Abort()
			return
		}

		userID, err := h.sessions.VerifyAccess(token)
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			apiError(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token expired")
			c.Abort()
			return
		case err != nil:
			apiError(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid access token")
			c.Abort()
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// optionalAuth attaches the user identity when a valid Bearer token is
// present and lets guests through otherwise.
func (h *Handler) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if userID, err := h.sessions.VerifyAccess(token); err == nil {
				c.Set(ctxUserID, userID)
			}
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
