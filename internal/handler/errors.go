package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flicky/farm-market-api/internal/service"
)

type errorMapping struct {
	err     error
	status  int
	message string
}

// errorMappings is checked in order; an empty message means err.Error().
var errorMappings = []errorMapping{
	{service.ErrInsufficientStock, http.StatusBadRequest, "Insufficient quantity"},
	{service.ErrInvalidTransition, http.StatusBadRequest, ""},
	{service.ErrUsernameTaken, http.StatusBadRequest, "Username already exists"},
	{service.ErrEmailTaken, http.StatusBadRequest, "Email already exists"},
	{service.ErrCategoryExists, http.StatusBadRequest, "Category already exists"},
	{service.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{service.ErrBuyerNotFound, http.StatusNotFound, "Buyer not found"},
	{service.ErrProductNotFound, http.StatusNotFound, "Product not found"},
	{service.ErrCategoryNotFound, http.StatusNotFound, "Category not found"},
	{service.ErrOrderNotFound, http.StatusNotFound, "Order not found"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username/email or password"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrValidation) {
		msg := strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			c.JSON(m.status, gin.H{"error": msg})
			return
		}
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pathID parses the :id parameter, answering 400 itself on failure.
func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+what+" ID")
		return 0, false
	}
	return id, true
}
