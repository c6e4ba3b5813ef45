package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefront-hq/service-billing/pkg/domain"
)

// Envelope is the standard JSON response shape.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes a 200 response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// BadRequest writes a 400 response with a message.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Success: false, Error: message})
}

// Error maps a domain error to the appropriate HTTP status code.
// Unclassified errors become 500 with a generic message so internal
// diagnostics never leak to callers.
func Error(c *gin.Context, err error) {
	var domErr *domain.DomainError
	if errors.As(err, &domErr) {
		switch {
		case errors.Is(domErr, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, Envelope{Success: false, Error: domErr.Message})
		case errors.Is(domErr, domain.ErrConflict):
			c.JSON(http.StatusConflict, Envelope{Success: false, Error: domErr.Message})
		case errors.Is(domErr, domain.ErrValidation):
			c.JSON(http.StatusUnprocessableEntity, Envelope{Success: false, Error: domErr.Message})
		case errors.Is(domErr, domain.ErrInvalidState):
			c.JSON(http.StatusConflict, Envelope{Success: false, Error: domErr.Message})
		case errors.Is(domErr, domain.ErrProvider):
			c.JSON(http.StatusInternalServerError, Envelope{Success: false, Error: domErr.Message})
		default:
			c.JSON(http.StatusInternalServerError, Envelope{Success: false, Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusInternalServerError, Envelope{Success: false, Error: "internal server error"})
}
