package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/middleware"
)

type AuthService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error)
	GoogleLogin(ctx context.Context, req dto.GoogleLoginRequest) (*dto.AuthResponse, bool, error)
}

type UserService interface {
	Get(ctx context.Context, id int64) (*dto.UserResponse, error)
	Update(ctx context.Context, id, actor int64, req dto.UpdateUserRequest) (*dto.UserResponse, error)
}

type UserHandler struct {
	authService AuthService
	userService UserService
}

func NewUserHandler(authService AuthService, userService UserService) *UserHandler {
	return &UserHandler{authService: authService, userService: userService}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing required fields")
		return
	}
	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *UserHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing username or password")
		return
	}
	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) GoogleLogin(c *gin.Context) {
	var req dto.GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing required Google OAuth data")
		return
	}
	resp, created, err := h.authService.GoogleLogin(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "user")
	if !ok {
		return
	}
	resp, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "user")
	if !ok {
		return
	}
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	resp, err := h.userService.Update(c.Request.Context(), id, middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
