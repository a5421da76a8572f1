package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/jaemin-s/eventsync/pkg/errors"
)

// ErrorBody is the payload written for every non-2xx response. Clients read Message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Page describes pagination metadata flattened next to a collection.
type Page struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Resource writes a single resource wrapped under its entity name, e.g. {"event": {...}}.
func Resource(c *gin.Context, statusCode int, name string, data interface{}) {
	c.JSON(statusCode, gin.H{name: data})
}

// Collection writes a collection under its plural name with pagination fields beside it.
func Collection(c *gin.Context, name string, items interface{}, page Page) {
	c.JSON(http.StatusOK, gin.H{
		name:       items,
		"total":    page.Total,
		"page":     page.Page,
		"per_page": page.PerPage,
	})
}

// JSON writes an arbitrary payload.
func JSON(c *gin.Context, statusCode int, payload interface{}) {
	c.JSON(statusCode, payload)
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}

// Abort writes the error and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
