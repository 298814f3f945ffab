package httpserver_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/essayauditor/pkg/httpserver"
)

func testConfig() httpserver.Config {
	return httpserver.Config{
		Addr:            "localhost:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		ShutdownTimeout: time.Second,
	}
}

func TestServerRunAndShutdown(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	}()

	// Give the listener a moment to bind, then cancel to trigger shutdown.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerRunTwice(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Run(ctx, nil) }()
	time.Sleep(100 * time.Millisecond)

	err := srv.Run(ctx, nil)
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	t.Run("all checks pass", func(t *testing.T) {
		t.Parallel()

		h := httpserver.Healthcheck(map[string]httpserver.HealthCheckFunc{
			"postgres": func(ctx context.Context) error { return nil },
		})

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body, _ := io.ReadAll(rec.Body)
		assert.Contains(t, string(body), `"postgres":"ok"`)
	})

	t.Run("failing check reports 503", func(t *testing.T) {
		t.Parallel()

		h := httpserver.Healthcheck(map[string]httpserver.HealthCheckFunc{
			"redis": func(ctx context.Context) error { return errors.New("connection refused") },
		})

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
