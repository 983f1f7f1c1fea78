// Package config loads the node configuration enumerated in spec §6, the
// way the teacher's main.go calls config.LoadConfig(path, name) before
// constructing a node, backed by github.com/spf13/viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Highway holds the highway-mode-only tunables of spec §6.
type Highway struct {
	InitRoundExponent  uint8   `mapstructure:"initRoundExponent"`
	OmegaMessageTimeStart float64 `mapstructure:"omegaMessageTimeStart"`
	OmegaMessageTimeEnd   float64 `mapstructure:"omegaMessageTimeEnd"`
}

// Validator holds the local signing identity.
type Validator struct {
	PublicKeyPath        string `mapstructure:"publicKey"`
	PrivateKeyPath        string `mapstructure:"privateKey"`
	SignatureAlgorithm string `mapstructure:"signatureAlgorithm"`
}

// Config is the full set of spec §6 configuration knobs. Genesis-era
// timings live in the chain spec, not here (spec §6, last sentence).
type Config struct {
	FaultToleranceThreshold float64 `mapstructure:"faultToleranceThreshold"`
	RequiredSigs            int     `mapstructure:"requiredSigs"`
	MinDeployTtl            time.Duration `mapstructure:"minDeployTtl"`
	MaxBlockSizeBytes       uint64  `mapstructure:"maxBlockSizeBytes"`

	DownloadMaxRetries          int           `mapstructure:"downloadMaxRetries"`
	DownloadRetryInitialBackoff time.Duration `mapstructure:"downloadRetryInitialBackoff"`
	DownloadRetryBackoffFactor  float64       `mapstructure:"downloadRetryBackoffFactor"`

	RelayFactor     int     `mapstructure:"relayFactor"`
	RelaySaturation float64 `mapstructure:"relaySaturation"`

	InitSyncMaxNodes      int           `mapstructure:"initSyncMaxNodes"`
	InitSyncMinSuccessful int           `mapstructure:"initSyncMinSuccessful"`
	InitSyncStep          int           `mapstructure:"initSyncStep"`
	InitSyncRoundPeriod   time.Duration `mapstructure:"initSyncRoundPeriod"`
	PeriodicSyncRoundPeriod time.Duration `mapstructure:"periodicSyncRoundPeriod"`

	SyncMaxPossibleDepth           uint64  `mapstructure:"syncMaxPossibleDepth"`
	SyncMaxBondingRate             float64 `mapstructure:"syncMaxBondingRate"`
	SyncMinBlockCountToCheckWidth  uint64  `mapstructure:"syncMinBlockCountToCheckWidth"`
	SyncMaxDepthAncestorsRequest   uint64  `mapstructure:"syncMaxDepthAncestorsRequest"`

	Highway   Highway   `mapstructure:"highway"`
	Validator Validator `mapstructure:"validator"`

	ChainSpecPath string `mapstructure:"chainSpecPath"`

	// SecondaryParentsEnabled gates spec §4.5's optional secondary-parent
	// selection.
	SecondaryParentsEnabled bool `mapstructure:"secondaryParentsEnabled"`
}

// LoadConfig reads configName (without extension) from path and unmarshals
// it into a Config, the way the teacher's config.LoadConfig does.
func LoadConfig(path, configName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("faultToleranceThreshold", 0.1)
	v.SetDefault("requiredSigs", 1)
	v.SetDefault("minDeployTtl", "30m")
	v.SetDefault("maxBlockSizeBytes", 10*1024*1024)
	v.SetDefault("downloadMaxRetries", 3)
	v.SetDefault("downloadRetryInitialBackoff", "500ms")
	v.SetDefault("downloadRetryBackoffFactor", 2.0)
	v.SetDefault("relayFactor", 3)
	v.SetDefault("relaySaturation", 0.8)
	v.SetDefault("initSyncMaxNodes", 5)
	v.SetDefault("initSyncMinSuccessful", 1)
	v.SetDefault("initSyncStep", 100)
	v.SetDefault("initSyncRoundPeriod", "30s")
	v.SetDefault("periodicSyncRoundPeriod", "30s")
	v.SetDefault("syncMaxPossibleDepth", uint64(1000))
	v.SetDefault("syncMaxBondingRate", 0.1)
	v.SetDefault("syncMinBlockCountToCheckWidth", uint64(100))
	v.SetDefault("syncMaxDepthAncestorsRequest", uint64(10))
	v.SetDefault("highway.initRoundExponent", 14)
	v.SetDefault("highway.omegaMessageTimeStart", 0.5)
	v.SetDefault("highway.omegaMessageTimeEnd", 1.0)
	v.SetDefault("validator.signatureAlgorithm", "ed25519")
	v.SetDefault("secondaryParentsEnabled", true)
}
