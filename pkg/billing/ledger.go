package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ledgerKeyPrefix = "billing:webhook:event:"
	ledgerTTL       = 24 * time.Hour
)

// ledgerClient is the slice of the redis client the ledger needs.
type ledgerClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// ReplayLedger records processed webhook event IDs in Redis so duplicate
// deliveries show up in logs. It is an observability aid, not a guard:
// applying an event twice is already safe because every apply is an absolute
// overwrite.
type ReplayLedger struct {
	client ledgerClient
}

func NewReplayLedger(client *redis.Client) *ReplayLedger {
	return &ReplayLedger{client: client}
}

func newReplayLedgerWithClient(client ledgerClient) *ReplayLedger {
	return &ReplayLedger{client: client}
}

// MarkProcessed records the event ID and reports whether it was seen before.
func (l *ReplayLedger) MarkProcessed(ctx context.Context, eventID string) (seen bool, err error) {
	first, err := l.client.SetNX(ctx, ledgerKeyPrefix+eventID, 1, ledgerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event id: %w", err)
	}
	return !first, nil
}
