package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Availability.RefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.Availability.Grace)
	assert.Equal(t, domain.MergeSum, cfg.Sync.MergeMode())
	assert.Equal(t, StorageSQLite, cfg.Storage.Type)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AVAILABILITY_REFRESH_INTERVAL", "1m")
	t.Setenv("LOGIN_MERGE_POLICY", "replace")
	t.Setenv("GUEST_CART_STORAGE", "REDIS")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SESSION_ID", "sess-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Availability.RefreshInterval)
	assert.Equal(t, domain.MergeReplace, cfg.Sync.MergeMode())
	assert.Equal(t, StorageRedis, cfg.Storage.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sess-1", cfg.Session.ID)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CART_URL=http://cart:9000\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CART_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://cart:9000", cfg.Endpoints.CartURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"merge policy", "LOGIN_MERGE_POLICY", "append"},
		{"storage", "GUEST_CART_STORAGE", "s3"},
		{"refresh interval", "AVAILABILITY_REFRESH_INTERVAL", "0s"},
		{"grace", "AVAILABILITY_GRACE", "-1s"},
		{"not a duration", "SYNC_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
