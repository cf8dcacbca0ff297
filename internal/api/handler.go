package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgt-data/matriculas/internal/storage/sqlite"
	"github.com/dgt-data/matriculas/pkg/logger"
)

const defaultLimit = 50

// Handler serves read-only queries over the registration store
type Handler struct {
	store  *sqlite.RegistrationStorage
	logger *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(store *sqlite.RegistrationStorage, logger *logger.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.Named("api-handler"),
	}
}

// GetHealth returns a liveness response
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetRegistrations returns the most recent registrations
func (h *Handler) GetRegistrations(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.store.GetRecent(limit)
	if err != nil {
		h.logger.Error("Failed to query registrations", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if records == nil {
		records = []*sqlite.Registration{}
	}

	h.writeJSON(w, http.StatusOK, records)
}

// GetRegistrationsByBastidor returns all registrations for one chassis number
func (h *Handler) GetRegistrationsByBastidor(w http.ResponseWriter, r *http.Request) {
	bastidor := chi.URLParam(r, "bastidor")

	records, err := h.store.GetByBastidor(bastidor)
	if err != nil {
		h.logger.Error("Failed to query registrations by bastidor",
			logger.String("bastidor", bastidor),
			logger.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(records) == 0 {
		h.writeError(w, http.StatusNotFound, "no registrations for bastidor")
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

// GetStats returns row counts, optionally narrowed to ?year=&month=
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	total, err := h.store.Count()
	if err != nil {
		h.logger.Error("Failed to count registrations", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	stats := map[string]int64{"total": total}

	yearRaw := r.URL.Query().Get("year")
	monthRaw := r.URL.Query().Get("month")
	if (yearRaw == "") != (monthRaw == "") {
		h.writeError(w, http.StatusBadRequest, "year and month must be given together")
		return
	}
	if yearRaw != "" && monthRaw != "" {
		year, errY := strconv.Atoi(yearRaw)
		month, errM := strconv.Atoi(monthRaw)
		if errY != nil || errM != nil || month < 1 || month > 12 {
			h.writeError(w, http.StatusBadRequest, "invalid year/month")
			return
		}
		monthCount, err := h.store.CountForMonth(year, month)
		if err != nil {
			h.logger.Error("Failed to count registrations for month", logger.Error(err))
			h.writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		stats["month"] = monthCount
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// writeJSON writes a JSON response with the given status code
func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
