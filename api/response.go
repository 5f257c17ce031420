package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/debug"
)

func respondOK(w http.ResponseWriter, r *http.Request, response any) {
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(response) // a failed write means the client is gone
}

func respondError(w http.ResponseWriter, r *http.Request, err error, fallbackCode int, logger log.Logger) {
	code, trueError := classifyError(err, fallbackCode)

	if trueError {
		level.Error(logger).Log("remote_addr", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "err", err, "code", code)
	} else {
		level.Debug(logger).Log("remote_addr", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "err", err, "code", code)
	}

	w.Header().Set("content-type", "application/json")
	if errorCode := core.CodeOf(err); errorCode != "" {
		w.Header().Set(debug.ErrorCodeHeader, errorCode)
	}
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorResponse{
		Error:      err.Error(),
		ErrorCode:  core.CodeOf(err),
		StatusCode: code,
		StatusText: http.StatusText(code),
	}); err != nil {
		level.Debug(logger).Log("msg", "write error response", "err", err)
	}
}

// classifyError maps an error to a status code, and reports whether it is a
// server-side failure worth logging at error level.
func classifyError(err error, fallback int) (int, bool) {
	switch {
	case err == nil:
		return http.StatusOK, false
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, false
	case errors.Is(err, confidential.ErrNotAllowed):
		return http.StatusForbidden, false
	case errors.Is(err, confidential.ErrUnknownHandle):
		return http.StatusNotFound, false
	}

	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest, false
	case core.KindAuthorization:
		return http.StatusForbidden, false
	case core.KindLifecycle:
		return http.StatusConflict, false
	case core.KindNotFound:
		return http.StatusNotFound, false
	case core.KindArithmetic:
		return http.StatusUnprocessableEntity, true
	case core.KindCollaborator:
		return http.StatusBadGateway, true
	default:
		return fallback, true
	}
}

type errorResponse struct {
	Error      string `json:"error"`
	ErrorCode  string `json:"error_code,omitempty"`
	StatusCode int    `json:"status_code"`
	StatusText string `json:"status_text"`
}
