package billing_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

func TestSubscriptionCancel(t *testing.T) {
	t.Parallel()

	t.Run("cancels an active subscription", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierPro, "sub_1", 40)

		rec := env.do(t, http.MethodPost, "/subscription/cancel", userID, map[string]any{
			"subscriptionId": "sub_1",
			"effectiveFrom":  "immediately",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		got := env.do(t, http.MethodGet, "/quota/", userID, nil)
		body := decodeRecord(t, got)
		assert.Equal(t, "free", body["tier"])
		assert.Equal(t, float64(10), body["threshold"])
		assert.Nil(t, body["subscription_id"])
	})

	t.Run("missing subscription id", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierPro, "sub_1", 0)

		rec := env.do(t, http.MethodPost, "/subscription/cancel", userID, map[string]any{
			"effectiveFrom": "immediately",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid effective-from", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierPro, "sub_1", 0)

		rec := env.do(t, http.MethodPost, "/subscription/cancel", userID, map[string]any{
			"subscriptionId": "sub_1",
			"effectiveFrom":  "someday",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("provider rejection maps to bad gateway", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierPro, "sub_1", 0)

		rec := env.do(t, http.MethodPost, "/subscription/cancel", userID, map[string]any{
			"subscriptionId": "sub_unknown",
			"effectiveFrom":  "immediately",
		})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("requires a principal", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/subscription/cancel", uuid.Nil, map[string]any{
			"subscriptionId": "sub_1",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSubscriptionUpdate(t *testing.T) {
	t.Parallel()

	t.Run("swaps the plan", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierBasic, "sub_1", 12)

		rec := env.do(t, http.MethodPost, "/subscription/update", userID, map[string]any{
			"subscriptionId": "sub_1",
			"priceId":        "pri_01jxex45tsw9y44b0b6j12xj7z",
			"currentUsage":   12,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		got := env.do(t, http.MethodGet, "/quota/", userID, nil)
		body := decodeRecord(t, got)
		assert.Equal(t, "pro", body["tier"])
		assert.Equal(t, float64(100), body["threshold"])
		assert.Equal(t, float64(12), body["num_usages"])
		assert.NotNil(t, body["next_billed_at"])
	})

	t.Run("missing price id", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierBasic, "sub_1", 0)

		rec := env.do(t, http.MethodPost, "/subscription/update", userID, map[string]any{
			"subscriptionId": "sub_1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSubscriptionAction(t *testing.T) {
	t.Parallel()

	t.Run("upgrade action", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierFree, "sub_1", 7)

		rec := env.do(t, http.MethodPost, "/subscription/action", userID, map[string]any{
			"action":         "upgrade",
			"subscriptionId": "sub_1",
			"priceId":        "pri_01jxex69z43bmy5k0a6ycppnj6",
			"currentUsage":   7,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		got := env.do(t, http.MethodGet, "/quota/", userID, nil)
		body := decodeRecord(t, got)
		assert.Equal(t, "premium", body["tier"])
		assert.Equal(t, float64(500), body["threshold"])
	})

	t.Run("cancel action is immediate", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierPremium, "sub_1", 100)

		rec := env.do(t, http.MethodPost, "/subscription/action", userID, map[string]any{
			"action":         "cancel",
			"subscriptionId": "sub_1",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		got := env.do(t, http.MethodGet, "/quota/", userID, nil)
		body := decodeRecord(t, got)
		assert.Equal(t, "free", body["tier"])
	})

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierPro, "sub_1", 0)

		rec := env.do(t, http.MethodPost, "/subscription/action", userID, map[string]any{
			"action":         "pause",
			"subscriptionId": "sub_1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
