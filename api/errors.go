package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/gatekeeper"
	gkmiddleware "github.com/MrEthical07/gatekeeper/middleware"
	"go.uber.org/zap"
)

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var lockout *gatekeeper.LockoutError
	switch {
	case errors.As(err, &lockout):
		gkmiddleware.WriteLockout(w, lockout)
	case errors.Is(err, gatekeeper.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, "Invalid code")
	case errors.Is(err, gatekeeper.ErrSessionRevoked):
		writeFailure(w, http.StatusUnauthorized, "Session revoked")
	case errors.Is(err, gatekeeper.ErrUnauthenticated):
		writeFailure(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, gatekeeper.ErrInvalidInput):
		writeFailure(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, gatekeeper.ErrStoreUnavailable), errors.Is(err, gatekeeper.ErrEngineClosed):
		writeFailure(w, http.StatusServiceUnavailable, "Service unavailable")
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
