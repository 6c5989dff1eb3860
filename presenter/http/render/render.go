package render

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nomad-xyz/nomad-monitor/db"
	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/logging"
)

var ErrBadRequest = errors.New("bad request")

type ErrorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	enc := json.NewEncoder(w)

	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		enc.SetIndent("", "  ")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := enc.Encode(res); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Error("failed to marshal JSON result")
	}
}

// Error renders err as a JSON error with the status matching its kind.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	logger := logging.LoggerFromContext(r.Context()).WithError(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		logger.Error("request handling failed")
		msg = http.StatusText(status)
	case errors.Is(err, entity.ErrPageSizeTooLarge):
		msg = entity.ErrPageSizeTooLarge.Error()
		logger.Warn("request rejected")
	default:
		logger.Warn("request rejected")
	}
	JSON(w, r, status, &ErrorResponse{Error: msg})
}

func StatusCode(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrPageSizeTooLarge):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, entity.ErrUnknownState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
