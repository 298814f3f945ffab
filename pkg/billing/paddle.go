package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// Configured reports whether provider-backed mode can run.
func (c PaddleConfig) Configured() bool {
	return c.APIKey != "" && c.WebhookSecret != ""
}

// PaddleProvider implements Provider against the Paddle API. It never writes
// the quota store: the authoritative state transition arrives through the
// webhook reconciler.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle-backed provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

// Verifier exposes the webhook signature verifier for the reconciler.
func (p *PaddleProvider) Verifier() SignatureVerifier {
	return p.verifier
}

func (p *PaddleProvider) CancelSubscription(ctx context.Context, cmd CancelCommand) (*Ack, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	effectiveFrom := paddle.EffectiveFromNextBillingPeriod
	if cmd.EffectiveFrom == EffectiveImmediately {
		effectiveFrom = paddle.EffectiveFromImmediately
	}

	sub, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: cmd.SubscriptionID,
		EffectiveFrom:  paddle.PtrTo(effectiveFrom),
	})
	if err != nil {
		return nil, errors.Join(ErrProviderRejected, err)
	}

	return ackFromSubscription(sub), nil
}

func (p *PaddleProvider) UpdateSubscription(ctx context.Context, cmd UpdateCommand) (*Ack, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	prorationMode := paddle.ProrationBillingModeProratedNextBillingPeriod
	if cmd.ProrationMode == ProratedImmediately {
		prorationMode = paddle.ProrationBillingModeProratedImmediately
	}

	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(
		&paddle.SubscriptionUpdateItemFromCatalog{
			PriceID:  cmd.PriceID,
			Quantity: cmd.Quantity,
		})

	// A failed proration charge must reject the whole change; the
	// subscription items are never updated without corresponding billing.
	sub, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       cmd.SubscriptionID,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(prorationMode),
		OnPaymentFailure:     paddle.NewPatchField(paddle.SubscriptionOnPaymentFailurePreventChange),
		CustomData: paddle.NewPatchField(paddle.CustomData{
			"currentUsage": cmd.CurrentUsage,
		}),
	})
	if err != nil {
		return nil, errors.Join(ErrProviderRejected, err)
	}

	return ackFromSubscription(sub), nil
}

func ackFromSubscription(sub *paddle.Subscription) *Ack {
	ack := &Ack{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.NextBilledAt != nil {
		if ts, err := time.Parse(time.RFC3339, *sub.NextBilledAt); err == nil {
			ack.NextBilledAt = &ts
		}
	}
	return ack
}
