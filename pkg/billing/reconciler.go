package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/essayauditor/pkg/logger"
	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

var (
	ErrMissingEventFields = errors.New("missing required webhook payload fields")
	ErrStoreFailure       = errors.New("failed to apply webhook event to quota store")
)

// Reconciler is the single authoritative writer of post-transaction
// subscription state. Every apply is an absolute overwrite of the whole
// dependent field group, keyed by the external customer identity, so replays
// and out-of-order deliveries converge on last-applied-wins without merges.
type Reconciler struct {
	store    quota.Store
	catalog  *quota.Catalog
	verifier SignatureVerifier
	ledger   *ReplayLedger
	log      *slog.Logger
}

// ReconcilerOption configures optional reconciler collaborators.
type ReconcilerOption func(*Reconciler)

// WithReplayLedger records processed event IDs so duplicate deliveries are
// observable in logs. Applying stays idempotent either way.
func WithReplayLedger(ledger *ReplayLedger) ReconcilerOption {
	return func(r *Reconciler) { r.ledger = ledger }
}

func WithLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// NewReconciler panics on nil required dependencies to fail fast during
// startup wiring.
func NewReconciler(store quota.Store, catalog *quota.Catalog, verifier SignatureVerifier, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("billing: quota store is required")
	}
	if catalog == nil {
		panic("billing: price catalog is required")
	}
	if verifier == nil {
		panic("billing: signature verifier is required")
	}

	r := &Reconciler{
		store:    store,
		catalog:  catalog,
		verifier: verifier,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process verifies and applies one webhook request. The error taxonomy maps
// to transport status codes at the handler: ErrMissingSignature and
// ErrInvalidSignature and ErrMissingEventFields are 400-class and terminal
// for the event, ErrStoreFailure is 500-class and retried by the provider,
// nil means applied or deliberately ignored.
func (r *Reconciler) Process(ctx context.Context, req *http.Request) error {
	// Authenticity first, over the raw unparsed bytes. Any verification
	// error fails closed.
	if req.Header.Get(SignatureHeader) == "" {
		return ErrMissingSignature
	}
	valid, err := r.verifier.Verify(req)
	if err != nil {
		if errors.Is(err, ErrMissingSignature) {
			return err
		}
		return errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return ErrInvalidSignature
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("failed to read webhook body: %w", err)
	}

	event, err := ParseWebhookEvent(body)
	if err != nil {
		return errors.Join(ErrMissingEventFields, err)
	}

	return r.Apply(ctx, event)
}

// Apply folds a verified event into the quota record store.
func (r *Reconciler) Apply(ctx context.Context, event *WebhookEvent) error {
	log := r.log.With(
		logger.EventType(event.EventType),
		logger.CustomerID(event.CustomerID),
		logger.SubscriptionID(event.SubscriptionID),
	)

	if !event.Recognized() {
		log.DebugContext(ctx, "ignoring unrecognized webhook event")
		return nil
	}

	if r.ledger != nil && event.EventID != "" {
		if seen, err := r.ledger.MarkProcessed(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "replay ledger unavailable", logger.Error(err))
		} else if seen {
			log.InfoContext(ctx, "duplicate webhook delivery", slog.String("event_id", event.EventID))
		}
	}

	// subscription.updated with a canceled status races the genuine
	// cancellation event; applying it could resurrect stale tier data.
	if event.EventType == EventSubscriptionUpdated && event.Status == statusCanceled {
		log.InfoContext(ctx, "skipping canceled-status update event")
		return nil
	}

	// Field extraction is all-or-nothing: a partial update is never applied.
	if event.CustomerID == "" || event.SubscriptionID == "" {
		return ErrMissingEventFields
	}
	tier, err := r.resolveTier(ctx, event, log)
	if err != nil {
		return err
	}

	var state quota.SubscriptionState
	if event.EventType == EventSubscriptionCanceled {
		state = quota.FreeState()
		if event.NextBilledAt != nil {
			// Cancellation payloads normally carry no billing schedule; if
			// one is present it is dropped with the rest of the paid state.
			log.DebugContext(ctx, "ignoring next_billed_at on cancellation")
		}
	} else {
		var usage int64
		if event.CurrentUsage != nil {
			usage = *event.CurrentUsage
		}
		state = quota.PaidState(tier, event.SubscriptionID, event.NextBilledAt, usage)
	}

	if _, err := r.store.ApplyByCustomerID(ctx, event.CustomerID, state); err != nil {
		if errors.Is(err, quota.ErrRecordNotFound) {
			// No quota record carries this customer identity yet. Retrying
			// would not help, so acknowledge and leave a trace.
			log.WarnContext(ctx, "webhook for unknown customer identity")
			return nil
		}
		return errors.Join(ErrStoreFailure, err)
	}

	log.InfoContext(ctx, "webhook event applied", logger.Tier(string(state.Tier)))
	return nil
}

// resolveTier derives the tier for a paid event. The price catalog is the
// source of truth; the lower-cased price name is a legacy fallback that
// logs a warning because a dashboard rename silently changes it.
func (r *Reconciler) resolveTier(ctx context.Context, event *WebhookEvent, log *slog.Logger) (quota.Tier, error) {
	if event.PriceID != "" {
		if tier, err := r.catalog.TierForPrice(event.PriceID); err == nil {
			return tier, nil
		}
	}

	name := strings.ToLower(event.PriceName)
	if name == "" {
		return "", ErrMissingEventFields
	}

	log.WarnContext(ctx, "price ID not in catalog, falling back to price name",
		slog.String("price_id", event.PriceID),
		slog.String("price_name", name),
	)
	return quota.Tier(name), nil
}
