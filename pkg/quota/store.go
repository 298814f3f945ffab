package quota

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound    = errors.New("quota record not found")
	ErrThresholdExceeded = errors.New("usage threshold exceeded")
	ErrCustomerConflict  = errors.New("customer identity already assigned to another user")
)

// Store persists quota records, one per user. Records are never deleted:
// cancellation transitions them back to the free baseline.
//
// Subscription-state writes replace the whole dependent field group in a
// single atomic statement. The conditional match on customer or subscription
// identity is the only concurrency guard; callers never hold locks across
// store operations.
type Store interface {
	// Get retrieves the record for a user.
	// Returns ErrRecordNotFound if none exists yet.
	Get(ctx context.Context, userID uuid.UUID) (*Record, error)

	// EnsureCustomer creates the record on first paid-plan interaction, or
	// assigns the customer identity to an existing record that has none.
	// An already-assigned customer identity is never overwritten.
	EnsureCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*Record, error)

	// ApplyByCustomerID overwrites the subscription state of the record with
	// the given external customer identity.
	ApplyByCustomerID(ctx context.Context, customerID string, state SubscriptionState) (*Record, error)

	// ApplyBySubscriptionID overwrites the subscription state of the record
	// holding the given provider subscription identity.
	ApplyBySubscriptionID(ctx context.Context, subscriptionID string, state SubscriptionState) (*Record, error)

	// ConsumeUsage increments the usage counter if headroom remains.
	// Returns ErrThresholdExceeded once the counter has reached the threshold.
	ConsumeUsage(ctx context.Context, userID uuid.UUID) (*Record, error)
}
