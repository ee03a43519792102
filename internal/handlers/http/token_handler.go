// Package http holds the gin handlers of the bridge daemon's REST
// surface.
package http

import (
	"net/http"
	"strings"
	"time"

	"roomlink/pkg/errors"
	"roomlink/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// TokenHandler mints room auth tokens with the same secret the
// emulator validates, so clients can fetch a token over HTTP and hand
// it to Join.
type TokenHandler struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

func NewTokenHandler(secret string, ttl time.Duration) *TokenHandler {
	return &TokenHandler{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (h *TokenHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/token", h.Token)
	}
}

type TokenRequest struct {
	RoomCode string `json:"room_code" binding:"required,max=100"`
	UserID   string `json:"user_id" binding:"max=100"`
}

func (h *TokenHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.RoomCode = strings.TrimSpace(req.RoomCode)
	if err := validation.ValidateRoomCode(req.RoomCode); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if req.UserID != "" {
		if err := validation.ValidateUserID(req.UserID); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
	}

	now := h.now()
	claims := jwt.MapClaims{
		"room": req.RoomCode,
		"iat":  now.Unix(),
		"exp":  now.Add(h.ttl).Unix(),
	}
	if req.UserID != "" {
		claims["sub"] = req.UserID
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		c.Error(errors.Wrap(err, errors.ErrCodeInternal, "failed to sign token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"room_code":  req.RoomCode,
		"expires_in": int(h.ttl / time.Second),
	})
}
