package billing_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

func TestQuotaEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("requires a principal", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/quota/", uuid.Nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user has no record", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/quota/", uuid.New(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns the record", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierPro, "sub_1", 40)

		rec := env.do(t, http.MethodGet, "/quota/", userID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeRecord(t, rec)
		assert.Equal(t, userID.String(), body["id"])
		assert.Equal(t, "pro", body["tier"])
		assert.Equal(t, float64(40), body["num_usages"])
		assert.Equal(t, float64(100), body["threshold"])
		assert.Equal(t, "sub_1", body["subscription_id"])
	})
}

func TestQuotaConsume(t *testing.T) {
	t.Parallel()

	t.Run("increments the usage counter", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierFree, "", 0)

		rec := env.do(t, http.MethodPost, "/quota/consume", userID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeRecord(t, rec)
		assert.Equal(t, float64(1), body["num_usages"])
	})

	t.Run("exhausted quota requires payment", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		userID := env.seedUser(quota.TierFree, "", 10)

		rec := env.do(t, http.MethodPost, "/quota/consume", userID, nil)
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)

		got := env.do(t, http.MethodGet, "/quota/", userID, nil)
		body := decodeRecord(t, got)
		assert.Equal(t, float64(10), body["num_usages"], "rejected consume must not increment")
	})

	t.Run("requires a principal", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/quota/consume", uuid.Nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
