package handlers

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// ListMessagesRequest defines the DTO for the room history endpoint.
type ListMessagesRequest struct {
	RoomID string `param:"id" validate:"required"`
	// Limit keeps only the most recent messages. Zero returns everything.
	Limit int `query:"limit" validate:"omitempty,min=1,max=500"`
}
