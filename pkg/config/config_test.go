package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/essayauditor/pkg/config"
)

type testConfig struct {
	Host string `env:"CONFIG_TEST_HOST" envDefault:"localhost"`
	Port int    `env:"CONFIG_TEST_PORT" envDefault:"5432"`
}

type overrideConfig struct {
	Name string `env:"CONFIG_TEST_NAME" envDefault:"fallback"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
	})

	t.Run("cached between calls", func(t *testing.T) {
		var first testConfig
		require.NoError(t, config.Load(&first))

		// Changing the environment after the first load must not change the
		// cached value other components already observed.
		t.Setenv("CONFIG_TEST_HOST", "db.internal")

		var second testConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first, second)
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_NAME", "from-env")
		var cfg overrideConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-env", cfg.Name)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}
