package handlers

import (
	"net/http"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/identity"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	identity *identity.Service
	log      logger.Logger
}

type RegisterRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string            `json:"access_token"`
	ExpiresAt   time.Time         `json:"expires_at"`
	User        domain.UserHandle `json:"user"`
}

func NewAuthHandler(identity *identity.Service, log logger.Logger) *AuthHandler {
	return &AuthHandler{identity: identity, log: log}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body", "code": domain.Code(domain.ErrInvalidArgument)})
	}

	user, err := h.identity.Register(c.Request().Context(), identity.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.log.Warn("Registration failed", "username", req.Username, "error", err)
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body", "code": domain.Code(domain.ErrInvalidArgument)})
	}

	user, token, err := h.identity.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, LoginResponse{AccessToken: token.Token, ExpiresAt: token.ExpiresAt, User: user})
}
