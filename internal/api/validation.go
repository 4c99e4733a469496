package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FieldError describes one failed binding rule on one request field.
type FieldError struct {
	Field   string `json:"field" example:"Amount"`
	Tag     string `json:"tag" example:"gt"`
	Message string `json:"message" example:"Amount must be greater than 0"`
}

// ValidationResponse is the 400 body for requests that fail binding.
type ValidationResponse struct {
	Error   string       `json:"error" example:"validation failed"`
	Details []FieldError `json:"details,omitempty"`
}

// BindingErrors converts a gin binding error into per-field messages.
// Errors that are not validator violations (malformed JSON, empty body)
// yield nil; the caller falls back to a generic message.
func BindingErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "gte":
		return fe.Field() + " must be greater than or equal to " + fe.Param()
	case "lte":
		return fe.Field() + " must be less than or equal to " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// RespondBindingError writes the 400 for a failed ShouldBindJSON call.
func RespondBindingError(c *gin.Context, err error) {
	details := BindingErrors(err)
	if details == nil {
		c.JSON(http.StatusBadRequest, ValidationResponse{Error: "invalid request body"})
		return
	}
	c.JSON(http.StatusBadRequest, ValidationResponse{Error: "validation failed", Details: details})
}
