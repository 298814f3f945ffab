package quota_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

func TestRecordBilling(t *testing.T) {
	t.Parallel()

	t.Run("free record has no subscription identity", func(t *testing.T) {
		t.Parallel()

		record := quota.Record{
			UserID:    uuid.New(),
			Tier:      quota.TierFree,
			Threshold: 10,
			Billing:   quota.FreeBilling{},
		}
		assert.True(t, record.IsFree())
		assert.Empty(t, record.SubscriptionID())
		assert.Nil(t, record.NextBilledAt())
	})

	t.Run("paid record carries identity and schedule", func(t *testing.T) {
		t.Parallel()

		billedAt := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
		record := quota.Record{
			UserID:    uuid.New(),
			Tier:      quota.TierPro,
			Threshold: 100,
			Billing:   quota.PaidBilling{SubscriptionID: "sub_123", NextBilledAt: &billedAt},
		}
		assert.False(t, record.IsFree())
		assert.Equal(t, "sub_123", record.SubscriptionID())
		require.NotNil(t, record.NextBilledAt())
		assert.Equal(t, billedAt, *record.NextBilledAt())
	})
}

func TestRecordRemaining(t *testing.T) {
	t.Parallel()

	record := quota.Record{Threshold: 10, NumUsages: 7}
	assert.Equal(t, int64(3), record.Remaining())

	record.NumUsages = 12
	assert.Zero(t, record.Remaining())
}

func TestRecordJSONRoundTrip(t *testing.T) {
	t.Parallel()

	t.Run("paid", func(t *testing.T) {
		t.Parallel()

		billedAt := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
		record := quota.Record{
			UserID:     uuid.New(),
			CustomerID: "ctm_1",
			Tier:       quota.TierBasic,
			NumUsages:  3,
			Threshold:  50,
			Billing:    quota.PaidBilling{SubscriptionID: "sub_1", NextBilledAt: &billedAt},
		}

		raw, err := json.Marshal(record)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"subscription_id":"sub_1"`)

		var decoded quota.Record
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, record, decoded)
	})

	t.Run("free serializes null subscription identity", func(t *testing.T) {
		t.Parallel()

		record := quota.Record{
			UserID:    uuid.New(),
			Tier:      quota.TierFree,
			Threshold: 10,
			Billing:   quota.FreeBilling{},
		}

		raw, err := json.Marshal(record)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"subscription_id":null`)

		var decoded quota.Record
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.True(t, decoded.IsFree())
	})
}

func TestSubscriptionStates(t *testing.T) {
	t.Parallel()

	t.Run("free state is the cancellation baseline", func(t *testing.T) {
		t.Parallel()

		state := quota.FreeState()
		assert.Equal(t, quota.TierFree, state.Tier)
		assert.Equal(t, int64(10), state.Threshold)
		assert.Zero(t, state.NumUsages)
		assert.IsType(t, quota.FreeBilling{}, state.Billing)
	})

	t.Run("paid state derives threshold from policy", func(t *testing.T) {
		t.Parallel()

		state := quota.PaidState(quota.TierPremium, "sub_9", nil, 4)
		assert.Equal(t, int64(500), state.Threshold)
		assert.Equal(t, int64(4), state.NumUsages)
	})

	t.Run("unknown webhook tier keeps name, default threshold", func(t *testing.T) {
		t.Parallel()

		state := quota.PaidState(quota.Tier("enterprise"), "sub_9", nil, 0)
		assert.Equal(t, quota.Tier("enterprise"), state.Tier)
		assert.Equal(t, int64(10), state.Threshold)
	})
}
