package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/essayauditor/pkg/pg"
)

// PostgresStore persists quota records in the user_quota table. Every
// subscription-state write is a single conditional UPDATE so concurrent
// webhook deliveries and command handlers serialize on the row, not on any
// in-process lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordColumns = `id, customer_id, subscription_id, tier, num_usages, threshold, next_billed_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		record         Record
		tier           string
		customerID     *string
		subscriptionID *string
		nextBilledAt   *time.Time
	)
	if err := row.Scan(&record.UserID, &customerID, &subscriptionID, &tier,
		&record.NumUsages, &record.Threshold, &nextBilledAt); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan quota record: %w", err)
	}

	record.Tier = ParseTier(tier)
	if customerID != nil {
		record.CustomerID = *customerID
	}
	if subscriptionID != nil && *subscriptionID != "" {
		record.Billing = PaidBilling{SubscriptionID: *subscriptionID, NextBilledAt: nextBilledAt}
	} else {
		record.Billing = FreeBilling{}
	}
	return &record, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM user_quota WHERE id = $1`, userID)
	return scanRecord(row)
}

func (s *PostgresStore) EnsureCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*Record, error) {
	// COALESCE keeps an already-assigned customer identity immutable while
	// still filling it in for records created before the paying relationship.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_quota (id, customer_id, tier, num_usages, threshold)
		VALUES ($1, $2, 'free', 0, $3)
		ON CONFLICT (id) DO UPDATE
		SET customer_id = COALESCE(user_quota.customer_id, EXCLUDED.customer_id),
		    updated_at  = now()
		RETURNING `+recordColumns, userID, customerID, ThresholdFor(TierFree))

	record, err := scanRecord(row)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil, errors.Join(ErrCustomerConflict, err)
		}
		return nil, err
	}
	return record, nil
}

func (s *PostgresStore) ApplyByCustomerID(ctx context.Context, customerID string, state SubscriptionState) (*Record, error) {
	return s.apply(ctx, `customer_id`, customerID, state)
}

func (s *PostgresStore) ApplyBySubscriptionID(ctx context.Context, subscriptionID string, state SubscriptionState) (*Record, error) {
	return s.apply(ctx, `subscription_id`, subscriptionID, state)
}

// apply overwrites the whole dependent field group in one statement. The key
// column is one of the two fixed identity columns, never caller input.
func (s *PostgresStore) apply(ctx context.Context, keyColumn, key string, state SubscriptionState) (*Record, error) {
	var (
		subscriptionID *string
		nextBilledAt   *time.Time
	)
	if paid, ok := state.Billing.(PaidBilling); ok {
		subscriptionID = &paid.SubscriptionID
		nextBilledAt = paid.NextBilledAt
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE user_quota
		SET tier            = $2,
		    threshold       = $3,
		    num_usages      = $4,
		    subscription_id = $5,
		    next_billed_at  = $6,
		    updated_at      = now()
		WHERE `+keyColumn+` = $1
		RETURNING `+recordColumns,
		key, string(state.Tier), state.Threshold, state.NumUsages, subscriptionID, nextBilledAt)

	return scanRecord(row)
}

func (s *PostgresStore) ConsumeUsage(ctx context.Context, userID uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE user_quota
		SET num_usages = num_usages + 1,
		    updated_at = now()
		WHERE id = $1 AND num_usages < threshold
		RETURNING `+recordColumns, userID)

	record, err := scanRecord(row)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	// Distinguish an exhausted quota from a missing record.
	if _, getErr := s.Get(ctx, userID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrThresholdExceeded
}
