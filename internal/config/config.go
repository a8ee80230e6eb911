// Package config loads seedkit settings from SEEDKIT_* environment
// variables. CLI flags override individual fields afterwards.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/roach88/seedkit/internal/executor"
	"github.com/roach88/seedkit/internal/logging"
	"github.com/roach88/seedkit/internal/objectstore"
	"github.com/roach88/seedkit/internal/store"
)

// Environment keys.
const (
	EnvScenariosDir          = "SEEDKIT_SCENARIOS_DIR"
	EnvFixturesDir           = "SEEDKIT_FIXTURES_DIR"
	EnvAllowedOutputRoots    = "SEEDKIT_ALLOWED_OUTPUT_ROOTS"
	EnvMaxConcurrentCommands = "SEEDKIT_MAX_CONCURRENT_COMMANDS"
	EnvRulesFile             = "SEEDKIT_RULES_FILE"
	EnvDBDriver              = "SEEDKIT_DB_DRIVER"
	EnvDBURL                 = "SEEDKIT_DB_URL"
	EnvDBPingTimeout         = "SEEDKIT_DB_PING_TIMEOUT"
	EnvWriteBatchSize        = "SEEDKIT_WRITE_BATCH_SIZE"
	EnvWriteRate             = "SEEDKIT_WRITE_RATE"
	EnvLogFormat             = "SEEDKIT_LOG_FORMAT"
	EnvObjectStoreEndpoint   = "SEEDKIT_OBJECT_STORE_ENDPOINT"
	EnvObjectStoreAccessKey  = "SEEDKIT_OBJECT_STORE_ACCESS_KEY"
	EnvObjectStoreSecretKey  = "SEEDKIT_OBJECT_STORE_SECRET_KEY"
	EnvObjectStoreBucket     = "SEEDKIT_OBJECT_STORE_BUCKET"
	EnvObjectStoreRegion     = "SEEDKIT_OBJECT_STORE_REGION"
	EnvObjectStoreUseSSL     = "SEEDKIT_OBJECT_STORE_USE_SSL"
)

// DefaultDBURL is a SQLite file in the working directory.
const DefaultDBURL = "file:seedkit.db?_busy_timeout=5000"

// Config is the process configuration.
type Config struct {
	WorkDir               string
	ScenariosDir          string
	FixturesDir           string
	AllowedOutputRoots    []string
	MaxConcurrentCommands int
	// RulesFile is an optional CUE rule catalog applied on every verification.
	RulesFile   string
	LogFormat   string
	Store       store.Config
	ObjectStore objectstore.Config
}

// Load reads the configuration for workDir from lookup and validates it.
func Load(workDir string, lookup Lookup) (Config, error) {
	maxCommands, err := lookup.Int(EnvMaxConcurrentCommands, executor.DefaultLimit)
	if err != nil {
		return Config{}, err
	}
	pingTimeout, err := lookup.Duration(EnvDBPingTimeout, 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	batchSize, err := lookup.Int(EnvWriteBatchSize, store.DefaultBatchSize)
	if err != nil {
		return Config{}, err
	}
	writeRate, err := lookup.Float(EnvWriteRate, store.DefaultWriteRate)
	if err != nil {
		return Config{}, err
	}
	useSSL, err := lookup.Bool(EnvObjectStoreUseSSL, false)
	if err != nil {
		return Config{}, err
	}
	getenv := func(k string) string { return lookup.String(k, "") }

	cfg := Config{
		WorkDir:               workDir,
		ScenariosDir:          lookup.String(EnvScenariosDir, filepath.Join(workDir, "toolkit", "scenarios")),
		FixturesDir:           lookup.String(EnvFixturesDir, filepath.Join(workDir, "toolkit", "fixtures")),
		AllowedOutputRoots:    lookup.List(EnvAllowedOutputRoots),
		MaxConcurrentCommands: maxCommands,
		RulesFile:             lookup.String(EnvRulesFile, ""),
		LogFormat:             lookup.String(EnvLogFormat, logging.DefaultFormat(getenv)),
		Store: store.Config{
			Driver:      store.Dialect(lookup.String(EnvDBDriver, string(store.DialectSQLite))),
			URL:         lookup.String(EnvDBURL, DefaultDBURL),
			PingTimeout: pingTimeout,
			BatchSize:   batchSize,
			WriteRate:   writeRate,
		},
		ObjectStore: objectstore.Config{
			Endpoint:  lookup.String(EnvObjectStoreEndpoint, ""),
			AccessKey: lookup.String(EnvObjectStoreAccessKey, ""),
			SecretKey: lookup.String(EnvObjectStoreSecretKey, ""),
			Bucket:    lookup.String(EnvObjectStoreBucket, objectstore.DefaultBucket),
			Region:    lookup.String(EnvObjectStoreRegion, "us-east-1"),
			UseSSL:    useSSL,
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field. The database is not contacted.
func (c Config) Validate() error {
	if c.WorkDir == "" {
		return errors.New("work dir is required")
	}
	if c.ScenariosDir == "" {
		return fmt.Errorf("%s must not be empty", EnvScenariosDir)
	}
	if c.FixturesDir == "" {
		return fmt.Errorf("%s must not be empty", EnvFixturesDir)
	}
	if c.MaxConcurrentCommands < 1 {
		return fmt.Errorf("%s must be >= 1", EnvMaxConcurrentCommands)
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("%s must be %q or %q", EnvLogFormat, logging.FormatText, logging.FormatJSON)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.ObjectStore.Enabled() {
		if err := c.ObjectStore.Validate(); err != nil {
			return fmt.Errorf("object store: %w", err)
		}
	}
	return nil
}
