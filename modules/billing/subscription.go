// Package billing exposes the subscription lifecycle over HTTP: the command
// API clients call, the provider webhook the reconciler consumes, and the
// quota endpoint backing the client cache.
package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	payments "github.com/dmitrymomot/essayauditor/pkg/billing"
	"github.com/dmitrymomot/essayauditor/pkg/logger"
)

// SubscriptionService handles subscription commands. It only talks to the
// provider; quota records change when the provider's webhook arrives (or,
// with the offline provider, synchronously inside the provider itself).
type SubscriptionService struct {
	provider payments.Provider
	log      *slog.Logger
}

func NewSubscriptionService(provider payments.Provider, log *slog.Logger) *SubscriptionService {
	if provider == nil {
		panic("billing: provider is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &SubscriptionService{provider: provider, log: log}
}

func (s *SubscriptionService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/cancel", s.cancel)
	r.Post("/update", s.update)
	r.Post("/action", s.action)
	return r
}

type cancelRequest struct {
	SubscriptionID string `json:"subscriptionId"`
	EffectiveFrom  string `json:"effectiveFrom"`
}

func (s *SubscriptionService) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EffectiveFrom == "" {
		req.EffectiveFrom = string(payments.EffectiveNextBillingPeriod)
	}

	ack, err := s.provider.CancelSubscription(r.Context(), payments.CancelCommand{
		SubscriptionID: req.SubscriptionID,
		EffectiveFrom:  payments.EffectiveFrom(req.EffectiveFrom),
	})
	if err != nil {
		s.respondCommandError(w, r, "cancel", err)
		return
	}

	s.log.InfoContext(r.Context(), "subscription cancellation requested",
		logger.SubscriptionID(req.SubscriptionID))
	respondMessage(w, http.StatusOK, "Subscription scheduled to cancel", ack)
}

type updateRequest struct {
	SubscriptionID string `json:"subscriptionId"`
	PriceID        string `json:"priceId"`
	Quantity       int    `json:"quantity"`
	ProrationMode  string `json:"prorationBillingMode"`
	CurrentUsage   int64  `json:"currentUsage"`
}

func (s *SubscriptionService) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.ProrationMode == "" {
		req.ProrationMode = string(payments.ProratedNextBillingPeriod)
	}

	ack, err := s.provider.UpdateSubscription(r.Context(), payments.UpdateCommand{
		SubscriptionID: req.SubscriptionID,
		PriceID:        req.PriceID,
		Quantity:       req.Quantity,
		ProrationMode:  payments.ProrationMode(req.ProrationMode),
		CurrentUsage:   req.CurrentUsage,
	})
	if err != nil {
		s.respondCommandError(w, r, "update", err)
		return
	}

	s.log.InfoContext(r.Context(), "subscription update requested",
		logger.SubscriptionID(req.SubscriptionID), slog.String("price_id", req.PriceID))
	respondMessage(w, http.StatusOK, "Subscription updated", ack)
}

type actionRequest struct {
	Action         string `json:"action"`
	SubscriptionID string `json:"subscriptionId"`
	PriceID        string `json:"priceId"`
	CurrentUsage   int64  `json:"currentUsage"`
}

// action is the coarse endpoint the client's plan picker calls: "cancel"
// tears the subscription down immediately, "upgrade" swaps the line item and
// settles the price difference at the next billing period.
func (s *SubscriptionService) action(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	switch req.Action {
	case "cancel":
		ack, err := s.provider.CancelSubscription(r.Context(), payments.CancelCommand{
			SubscriptionID: req.SubscriptionID,
			EffectiveFrom:  payments.EffectiveImmediately,
		})
		if err != nil {
			s.respondCommandError(w, r, req.Action, err)
			return
		}
		respondMessage(w, http.StatusOK, "Subscription canceled", ack)
	case "upgrade":
		ack, err := s.provider.UpdateSubscription(r.Context(), payments.UpdateCommand{
			SubscriptionID: req.SubscriptionID,
			PriceID:        req.PriceID,
			Quantity:       1,
			ProrationMode:  payments.ProratedNextBillingPeriod,
			CurrentUsage:   req.CurrentUsage,
		})
		if err != nil {
			s.respondCommandError(w, r, req.Action, err)
			return
		}
		respondMessage(w, http.StatusOK, "Subscription upgraded", ack)
	default:
		respondError(w, http.StatusBadRequest, "unknown action")
	}
}

func (s *SubscriptionService) respondCommandError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, payments.ErrMissingSubscriptionID),
		errors.Is(err, payments.ErrMissingPriceID),
		errors.Is(err, payments.ErrInvalidEffectiveFrom),
		errors.Is(err, payments.ErrInvalidProrationMode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payments.ErrProviderRejected):
		s.log.WarnContext(r.Context(), "provider rejected subscription command",
			logger.Operation(op), logger.Error(err))
		respondError(w, http.StatusBadGateway, "billing provider rejected the request")
	default:
		s.log.ErrorContext(r.Context(), "subscription command failed",
			logger.Operation(op), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to process subscription command")
	}
}
