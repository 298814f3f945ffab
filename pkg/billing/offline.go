package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/essayauditor/pkg/logger"
	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

// OfflineProvider serves environments without a configured payment provider.
// Because no webhook will ever follow, it performs the same state transition
// the reconciler would perform, synchronously and directly against the store.
type OfflineProvider struct {
	store   quota.Store
	catalog *quota.Catalog
	log     *slog.Logger
	now     func() time.Time
}

// OfflineOption configures the offline provider.
type OfflineOption func(*OfflineProvider)

func WithOfflineLogger(log *slog.Logger) OfflineOption {
	return func(p *OfflineProvider) {
		if log != nil {
			p.log = log
		}
	}
}

// WithOfflineClock overrides the clock, for tests.
func WithOfflineClock(now func() time.Time) OfflineOption {
	return func(p *OfflineProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func NewOfflineProvider(store quota.Store, catalog *quota.Catalog, opts ...OfflineOption) *OfflineProvider {
	if store == nil {
		panic("billing: quota store is required")
	}
	if catalog == nil {
		panic("billing: price catalog is required")
	}

	p := &OfflineProvider{
		store:   store,
		catalog: catalog,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OfflineProvider) CancelSubscription(ctx context.Context, cmd CancelCommand) (*Ack, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	if _, err := p.store.ApplyBySubscriptionID(ctx, cmd.SubscriptionID, quota.FreeState()); err != nil {
		if errors.Is(err, quota.ErrRecordNotFound) {
			return nil, errors.Join(ErrProviderRejected, err)
		}
		return nil, err
	}

	p.log.InfoContext(ctx, "offline cancellation applied", logger.SubscriptionID(cmd.SubscriptionID))
	return &Ack{SubscriptionID: cmd.SubscriptionID, Status: statusCanceled}, nil
}

func (p *OfflineProvider) UpdateSubscription(ctx context.Context, cmd UpdateCommand) (*Ack, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	tier, err := p.catalog.TierForPrice(cmd.PriceID)
	if err != nil {
		return nil, errors.Join(ErrProviderRejected, err)
	}

	// Stand-in billing schedule: one period from now.
	nextBilledAt := p.now().UTC().AddDate(0, 1, 0)
	state := quota.PaidState(tier, cmd.SubscriptionID, &nextBilledAt, cmd.CurrentUsage)

	if _, err := p.store.ApplyBySubscriptionID(ctx, cmd.SubscriptionID, state); err != nil {
		if errors.Is(err, quota.ErrRecordNotFound) {
			return nil, errors.Join(ErrProviderRejected, err)
		}
		return nil, err
	}

	p.log.InfoContext(ctx, "offline subscription update applied",
		logger.SubscriptionID(cmd.SubscriptionID), logger.Tier(string(tier)))
	return &Ack{SubscriptionID: cmd.SubscriptionID, Status: "active", NextBilledAt: &nextBilledAt}, nil
}
