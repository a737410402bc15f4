package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// envelope is the JSON body shared by every endpoint. The transport
// status is always 200; the application status is carried in the body.
type envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListData carries paginated rows plus the total row count.
type ListData struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// ValidationError describes a single failed request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

func reply(c echo.Context, status int, data interface{}) error {
	return c.JSON(http.StatusOK, envelope{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

// SuccessResponse answers 200 with data.
func SuccessResponse(c echo.Context, data interface{}) error {
	return reply(c, http.StatusOK, data)
}

// ListResponse answers 200 with a paginated list body.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return reply(c, http.StatusOK, &ListData{Rows: rows, Total: total})
}

// BadRequestResponse answers 400, usually with validation details.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return reply(c, http.StatusBadRequest, data)
}

// NotFoundResponse answers 404.
func NotFoundResponse(c echo.Context, data interface{}) error {
	return reply(c, http.StatusNotFound, data)
}

// TooManyRequestsResponse answers 429.
func TooManyRequestsResponse(c echo.Context) error {
	return reply(c, http.StatusTooManyRequests, "rate limit exceeded")
}

// InternalServerErrorResponse answers 500 without exposing the cause.
func InternalServerErrorResponse(c echo.Context) error {
	return reply(c, http.StatusInternalServerError, "something went wrong")
}
