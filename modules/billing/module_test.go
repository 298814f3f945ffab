package billing_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	modbilling "github.com/dmitrymomot/essayauditor/modules/billing"
	payments "github.com/dmitrymomot/essayauditor/pkg/billing"
	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

const (
	testWebhookSecret = "whsec_module_test"
	testRouteSecret   = "route_secret"
)

type testEnv struct {
	store   *quota.MemoryStore
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := quota.NewMemoryStore()
	catalog := quota.DefaultCatalog()
	provider := billingProvider(store, catalog)
	reconciler := payments.NewReconciler(store, catalog, payments.NewHMACVerifier(testWebhookSecret))

	router := modbilling.Router(modbilling.RouterOptions{
		Subscription: modbilling.NewSubscriptionService(provider, nil),
		Quota:        modbilling.NewQuotaService(store, nil),
		Webhook:      modbilling.NewWebhookService(reconciler, store, testRouteSecret, nil),
	})
	return &testEnv{store: store, handler: router}
}

func billingProvider(store quota.Store, catalog *quota.Catalog) payments.Provider {
	return payments.NewOfflineProvider(store, catalog)
}

func (e *testEnv) seedUser(tier quota.Tier, subscriptionID string, numUsages int64) uuid.UUID {
	userID := uuid.New()
	record := quota.Record{
		UserID:     userID,
		CustomerID: "ctm_1",
		Tier:       tier,
		NumUsages:  numUsages,
		Threshold:  quota.ThresholdFor(tier),
		Billing:    quota.FreeBilling{},
	}
	if subscriptionID != "" {
		record.Billing = quota.PaidBilling{SubscriptionID: subscriptionID}
	}
	e.store.Seed(record)
	return userID
}

func (e *testEnv) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postWebhook(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook/paddle", bytes.NewReader(body))
	req.Header.Set(payments.SignatureHeader, payments.SignPayload(testWebhookSecret, body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func mustJSON(t *testing.T, body any) []byte {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return payload
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
