package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seedkit/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("/work", MapLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/work", "toolkit", "scenarios"), cfg.ScenariosDir)
	assert.Equal(t, filepath.Join("/work", "toolkit", "fixtures"), cfg.FixturesDir)
	assert.Empty(t, cfg.AllowedOutputRoots)
	assert.Equal(t, 1, cfg.MaxConcurrentCommands)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, store.Config{
		Driver:      store.DialectSQLite,
		URL:         DefaultDBURL,
		PingTimeout: 2 * time.Second,
		BatchSize:   200,
		WriteRate:   50,
	}, cfg.Store)
	assert.False(t, cfg.ObjectStore.Enabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	roots := "/srv/reports" + string(filepath.ListSeparator) + " " + string(filepath.ListSeparator) + "/srv/manifests"
	cfg, err := Load("/work", MapLookup(map[string]string{
		EnvScenariosDir:          "/data/scenarios",
		EnvAllowedOutputRoots:    roots,
		EnvMaxConcurrentCommands: "4",
		EnvDBDriver:              "pgx",
		EnvDBURL:                 "postgres://u:p@db/metrics",
		EnvDBPingTimeout:         "5s",
		EnvWriteBatchSize:        "50",
		EnvWriteRate:             "0",
		EnvObjectStoreEndpoint:   "minio:9000",
		EnvObjectStoreAccessKey:  "ak",
		EnvObjectStoreSecretKey:  "sk",
		EnvObjectStoreUseSSL:     "true",
		"CI":                     "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/data/scenarios", cfg.ScenariosDir)
	assert.Equal(t, []string{"/srv/reports", "/srv/manifests"}, cfg.AllowedOutputRoots)
	assert.Equal(t, 4, cfg.MaxConcurrentCommands)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, store.DialectPostgres, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.PingTimeout)
	assert.Equal(t, 50, cfg.Store.BatchSize)
	assert.Zero(t, cfg.Store.WriteRate)
	assert.True(t, cfg.ObjectStore.Enabled())
	assert.True(t, cfg.ObjectStore.UseSSL)
	assert.Equal(t, "seedkit-reports", cfg.ObjectStore.Bucket)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad int", map[string]string{EnvMaxConcurrentCommands: "many"}, EnvMaxConcurrentCommands},
		{"zero commands", map[string]string{EnvMaxConcurrentCommands: "0"}, EnvMaxConcurrentCommands},
		{"bad duration", map[string]string{EnvDBPingTimeout: "soon"}, EnvDBPingTimeout},
		{"bad driver", map[string]string{EnvDBDriver: "mysql"}, "db driver"},
		{"bad format", map[string]string{EnvLogFormat: "xml"}, EnvLogFormat},
		{"bad rate", map[string]string{EnvWriteRate: "fast"}, EnvWriteRate},
		{"bad ssl", map[string]string{EnvObjectStoreUseSSL: "maybe"}, EnvObjectStoreUseSSL},
		{"object store without keys", map[string]string{EnvObjectStoreEndpoint: "minio:9000"}, "object store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("/work", MapLookup(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
