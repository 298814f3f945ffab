// Package billing integrates the payment provider: it issues subscription
// commands and reconciles the provider's asynchronous webhook events into the
// quota record store.
package billing

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMissingSubscriptionID = errors.New("subscription ID is required")
	ErrMissingPriceID        = errors.New("price ID is required")
	ErrInvalidEffectiveFrom  = errors.New("invalid effective-from value")
	ErrInvalidProrationMode  = errors.New("invalid proration billing mode")
	ErrProviderRejected      = errors.New("billing provider rejected the request")

	ErrMissingAPIKey         = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret  = errors.New("billing provider webhook secret is required")
	ErrInvalidEnvironment    = errors.New("invalid billing provider environment")
)

// EffectiveFrom controls when a cancellation takes effect.
type EffectiveFrom string

const (
	EffectiveImmediately       EffectiveFrom = "immediately"
	EffectiveNextBillingPeriod EffectiveFrom = "next_billing_period"
)

// ProrationMode controls how an upgrade's price difference is billed.
type ProrationMode string

const (
	ProratedImmediately       ProrationMode = "prorated_immediately"
	ProratedNextBillingPeriod ProrationMode = "prorated_next_billing_period"
)

// CancelCommand schedules or immediately executes a cancellation.
type CancelCommand struct {
	SubscriptionID string
	EffectiveFrom  EffectiveFrom
}

// UpdateCommand swaps the subscription's line item for a new price. The
// current usage travels as opaque metadata so the eventual webhook can echo
// it back as the usage hint.
type UpdateCommand struct {
	SubscriptionID string
	PriceID        string
	Quantity       int
	ProrationMode  ProrationMode
	CurrentUsage   int64
}

// Ack is the provider's synchronous acknowledgement of a command. It is a
// best-effort result only; the authoritative state change arrives later via
// webhook.
type Ack struct {
	SubscriptionID string     `json:"id"`
	Status         string     `json:"status"`
	NextBilledAt   *time.Time `json:"next_billed_at,omitempty"`
}

// Provider is the synchronous command boundary to the payment provider.
// Two implementations exist: PaddleProvider delegates to the hosted provider
// and leaves store mutation to the webhook reconciler, OfflineProvider
// mutates the store directly for environments where no webhook will follow.
// Selection happens through explicit configuration at startup.
type Provider interface {
	CancelSubscription(ctx context.Context, cmd CancelCommand) (*Ack, error)
	UpdateSubscription(ctx context.Context, cmd UpdateCommand) (*Ack, error)
}

func (c CancelCommand) validate() error {
	if c.SubscriptionID == "" {
		return ErrMissingSubscriptionID
	}
	switch c.EffectiveFrom {
	case EffectiveImmediately, EffectiveNextBillingPeriod:
		return nil
	default:
		return ErrInvalidEffectiveFrom
	}
}

func (c UpdateCommand) validate() error {
	if c.SubscriptionID == "" {
		return ErrMissingSubscriptionID
	}
	if c.PriceID == "" {
		return ErrMissingPriceID
	}
	switch c.ProrationMode {
	case ProratedImmediately, ProratedNextBillingPeriod:
		return nil
	default:
		return ErrInvalidProrationMode
	}
}
