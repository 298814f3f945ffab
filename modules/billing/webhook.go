package billing

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	payments "github.com/dmitrymomot/essayauditor/pkg/billing"
	"github.com/dmitrymomot/essayauditor/pkg/logger"
	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

// RouteSecretHeader authenticates internal callbacks that do not carry a
// provider signature, like the auth system's new-customer notification.
const RouteSecretHeader = "X-Webhook-Secret"

// WebhookService terminates inbound callbacks. The provider webhook is the
// authoritative write path for subscription state; the customer callback
// bootstraps the quota record when the auth system provisions a user.
type WebhookService struct {
	reconciler  *payments.Reconciler
	store       quota.Store
	routeSecret string
	log         *slog.Logger
}

// NewWebhookService accepts a nil reconciler: an unconfigured provider
// webhook fails closed with a server error instead of accepting unverifiable
// payloads.
func NewWebhookService(reconciler *payments.Reconciler, store quota.Store, routeSecret string, log *slog.Logger) *WebhookService {
	if store == nil {
		panic("billing: quota store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookService{
		reconciler:  reconciler,
		store:       store,
		routeSecret: routeSecret,
		log:         log,
	}
}

func (s *WebhookService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/paddle", s.paddle)
	r.Post("/customer", s.customer)
	return r
}

func (s *WebhookService) paddle(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		s.log.ErrorContext(r.Context(), "webhook received but no verifier is configured")
		respondError(w, http.StatusInternalServerError, "webhook processing unavailable")
		return
	}

	err := s.reconciler.Process(r.Context(), r)
	switch {
	case err == nil:
		respondMessage(w, http.StatusOK, "Webhook processed", nil)
	case errors.Is(err, payments.ErrMissingSignature),
		errors.Is(err, payments.ErrInvalidSignature):
		s.log.WarnContext(r.Context(), "webhook signature rejected", logger.Error(err))
		respondError(w, http.StatusBadRequest, "invalid webhook signature")
	case errors.Is(err, payments.ErrMissingEventFields):
		s.log.WarnContext(r.Context(), "webhook payload rejected", logger.Error(err))
		respondError(w, http.StatusBadRequest, "invalid webhook payload")
	default:
		// Store failures are retryable: the provider re-delivers on 5xx and
		// the apply is idempotent.
		s.log.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to process webhook")
	}
}

type customerRequest struct {
	UserID     string `json:"userId"`
	CustomerID string `json:"customerId"`
}

func (s *WebhookService) customer(w http.ResponseWriter, r *http.Request) {
	if s.routeSecret == "" {
		s.log.ErrorContext(r.Context(), "customer webhook received but no route secret is configured")
		respondError(w, http.StatusInternalServerError, "webhook processing unavailable")
		return
	}
	secret := r.Header.Get(RouteSecretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.routeSecret)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var req customerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil || req.CustomerID == "" {
		respondError(w, http.StatusBadRequest, "userId and customerId are required")
		return
	}

	record, err := s.store.EnsureCustomer(r.Context(), userID, req.CustomerID)
	if err != nil {
		if errors.Is(err, quota.ErrCustomerConflict) {
			respondError(w, http.StatusConflict, "customer identity already assigned")
			return
		}
		s.log.ErrorContext(r.Context(), "failed to ensure customer identity",
			logger.UserID(userID.String()), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to register customer")
		return
	}

	s.log.InfoContext(r.Context(), "customer identity registered",
		logger.UserID(userID.String()), logger.CustomerID(req.CustomerID))
	respondJSON(w, http.StatusOK, record)
}
