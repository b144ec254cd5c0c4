package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the standard envelope with the given status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// ListResponse writes rows with their total count.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{
		Rows:  rows,
		Total: total,
	})
}

// SuccessResponse writes a 200 envelope.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// BadRequestResponse writes validation errors as a 400.
func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return DataResponse(c, http.StatusBadRequest, errs)
}

// AppErrorResponse maps err onto a status. Unknown errors become a bare 500
// so internals never leak into the body.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	case errors.Is(err, context.DeadlineExceeded):
		return DataResponse(c, http.StatusGatewayTimeout, []*AppError{TimeoutError("request timed out")})
	default:
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return AppErrorResponse(c, BadGatewayError("upstream request failed").WithParam("status", statusErr.StatusCode))
		}
		return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
	}
}
