package api

import (
	"net/http"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/collector"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/monitor"
	"codeberg.org/mutker/droidmetrics/internal/session"
	"codeberg.org/mutker/droidmetrics/internal/storage"
)

const (
	ErrInvalidRequest = errors.ErrorCode("api_invalid_request")
	ErrRateLimited    = errors.ErrorCode("api_rate_limited")
	ErrServe          = errors.ErrorCode("api_serve_failed")
)

// statusFor maps coded errors onto HTTP statuses.
var statusFor = []struct {
	code   errors.ErrorCode
	status int
}{
	{ErrInvalidRequest, http.StatusBadRequest},
	{collector.ErrInvalidPackage, http.StatusBadRequest},
	{monitor.ErrNothingToDo, http.StatusBadRequest},
	{storage.ErrInvalidStatus, http.StatusBadRequest},
	{storage.ErrSessionNotFound, http.StatusNotFound},
	{collector.ErrNoData, http.StatusNotFound},
	{session.ErrAlreadyRunning, http.StatusConflict},
	{session.ErrNotRunning, http.StatusConflict},
	{collector.ErrNotConnected, http.StatusServiceUnavailable},
	{adb.ErrNoDevice, http.StatusServiceUnavailable},
	{adb.ErrDeviceState, http.StatusServiceUnavailable},
	{adb.ErrBridgeMissing, http.StatusServiceUnavailable},
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func httpError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Code: errors.CodeOf(err), Message: err.Error()}

	for _, m := range statusFor {
		if errors.HasCode(err, m.code) {
			resp.Code = m.code
			return m.status, resp
		}
	}

	return http.StatusInternalServerError, resp
}
