package quota

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Billing is the tier-dependent half of a quota record. A free record carries
// no subscription identity; a paid one always does. Modeling the two shapes
// as a sealed union makes "free tier has no subscription identity" a
// type-level guarantee instead of a nullable-field convention.
type Billing interface {
	isBilling()
}

// FreeBilling marks a record with no paying relationship to the provider.
type FreeBilling struct{}

func (FreeBilling) isBilling() {}

// PaidBilling carries the provider's subscription identity and billing
// schedule.
type PaidBilling struct {
	SubscriptionID string
	NextBilledAt   *time.Time
}

func (PaidBilling) isBilling() {}

// Record is the per-user quota row. CustomerID is assigned once when a paying
// relationship is first established and is immutable thereafter.
type Record struct {
	UserID     uuid.UUID
	CustomerID string
	Tier       Tier
	NumUsages  int64
	Threshold  int64
	Billing    Billing
}

// SubscriptionID returns the provider subscription identity, empty for free
// records.
func (r *Record) SubscriptionID() string {
	if paid, ok := r.Billing.(PaidBilling); ok {
		return paid.SubscriptionID
	}
	return ""
}

// NextBilledAt returns the next billing timestamp, nil for free records.
func (r *Record) NextBilledAt() *time.Time {
	if paid, ok := r.Billing.(PaidBilling); ok {
		return paid.NextBilledAt
	}
	return nil
}

// IsFree reports whether the record is on the free baseline.
func (r *Record) IsFree() bool {
	_, ok := r.Billing.(FreeBilling)
	return ok
}

// Remaining returns the usage headroom before the threshold is reached.
func (r *Record) Remaining() int64 {
	if r.NumUsages >= r.Threshold {
		return 0
	}
	return r.Threshold - r.NumUsages
}

// recordJSON is the wire shape of a quota record, matching the persisted row
// layout consumed by clients.
type recordJSON struct {
	ID             uuid.UUID  `json:"id"`
	CustomerID     string     `json:"customer_id,omitempty"`
	SubscriptionID *string    `json:"subscription_id"`
	Tier           Tier       `json:"tier"`
	NumUsages      int64      `json:"num_usages"`
	Threshold      int64      `json:"threshold"`
	NextBilledAt   *time.Time `json:"next_billed_at"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:           r.UserID,
		CustomerID:   r.CustomerID,
		Tier:         r.Tier,
		NumUsages:    r.NumUsages,
		Threshold:    r.Threshold,
		NextBilledAt: r.NextBilledAt(),
	}
	if paid, ok := r.Billing.(PaidBilling); ok {
		out.SubscriptionID = &paid.SubscriptionID
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.UserID = in.ID
	r.CustomerID = in.CustomerID
	r.Tier = ParseTier(string(in.Tier))
	r.NumUsages = in.NumUsages
	r.Threshold = in.Threshold
	if in.SubscriptionID != nil && *in.SubscriptionID != "" {
		r.Billing = PaidBilling{SubscriptionID: *in.SubscriptionID, NextBilledAt: in.NextBilledAt}
	} else {
		r.Billing = FreeBilling{}
	}
	return nil
}

// SubscriptionState is the logically-dependent field group every writer must
// overwrite together: writing a subset could leave the threshold-matches-tier
// invariant violated.
type SubscriptionState struct {
	Tier      Tier
	Threshold int64
	NumUsages int64
	Billing   Billing
}

// FreeState returns the baseline state a cancellation transitions to.
func FreeState() SubscriptionState {
	return SubscriptionState{
		Tier:      TierFree,
		Threshold: ThresholdFor(TierFree),
		NumUsages: 0,
		Billing:   FreeBilling{},
	}
}

// PaidState returns the state for an active paid subscription. The tier may
// be webhook-derived and outside the known set; the threshold still comes
// from the total policy table.
func PaidState(tier Tier, subscriptionID string, nextBilledAt *time.Time, numUsages int64) SubscriptionState {
	return SubscriptionState{
		Tier:      tier,
		Threshold: ThresholdFor(tier),
		NumUsages: numUsages,
		Billing:   PaidBilling{SubscriptionID: subscriptionID, NextBilledAt: nextBilledAt},
	}
}
