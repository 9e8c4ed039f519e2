package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dannyrandall/moviecatalog/internal/apperrors"
	"go.uber.org/zap"
)

type dataResponse struct {
	Data any `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		LoggerFrom(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, r *http.Request, code int, data any) {
	writeJSON(w, r, code, dataResponse{Data: data})
}

func writeMessage(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, r, code, messageResponse{Message: msg})
}

// writeError maps err's kind to a status. Upstream causes are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindUpstream {
		LoggerFrom(r.Context()).Error("request failed", zap.Error(err))
		writeMessage(w, r, kind.StatusCode(), "Internal server error")
		return
	}

	LoggerFrom(r.Context()).Info("returning error", zap.Stringer("kind", kind), zap.String("message", apperrors.Message(err)))
	writeMessage(w, r, kind.StatusCode(), apperrors.Message(err))
}
