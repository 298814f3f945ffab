package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/essayauditor/pkg/logger"
	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

// QuotaService serves the authoritative quota record for the authenticated
// user and the usage-consumption operation the grading flow calls.
type QuotaService struct {
	store quota.Store
	log   *slog.Logger
}

func NewQuotaService(store quota.Store, log *slog.Logger) *QuotaService {
	if store == nil {
		panic("billing: quota store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &QuotaService{store: store, log: log}
}

func (s *QuotaService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.get)
	r.Post("/consume", s.consume)
	return r
}

func (s *QuotaService) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	record, err := s.store.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, quota.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "no quota record")
			return
		}
		s.log.ErrorContext(r.Context(), "failed to load quota record",
			logger.UserID(userID.String()), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load quota record")
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (s *QuotaService) consume(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	record, err := s.store.ConsumeUsage(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrThresholdExceeded):
			respondError(w, http.StatusPaymentRequired, "usage threshold exceeded")
		case errors.Is(err, quota.ErrRecordNotFound):
			respondError(w, http.StatusNotFound, "no quota record")
		default:
			s.log.ErrorContext(r.Context(), "failed to consume usage",
				logger.UserID(userID.String()), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to consume usage")
		}
		return
	}

	respondJSON(w, http.StatusOK, record)
}
