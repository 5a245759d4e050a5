package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/ruteri/tee-vigil/kms"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "VIGIL_"

// Clock sources.
const (
	ClockSystem = "system"
	ClockChain  = "chain"
)

// MinSealSeedLength is the minimum length of a decoded seal key.
const MinSealSeedLength = kms.MinSeedLength

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Clock   ClockConfig   `koanf:"clock"`
	Auth    AuthConfig    `koanf:"auth"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	EnablePprof bool   `koanf:"pprof"`

	DrainDuration            time.Duration `koanf:"drain_duration"`
	GracefulShutdownDuration time.Duration `koanf:"graceful_shutdown_duration"`
	ReadTimeout              time.Duration `koanf:"read_timeout"`
	WriteTimeout             time.Duration `koanf:"write_timeout"`
}

type StorageConfig struct {
	// URI selects the record backend, e.g. "file:///var/lib/vigil".
	URI string `koanf:"uri"`
	// SealKey is a hex-encoded seed. When set, stored fields are sealed.
	SealKey string `koanf:"seal_key"`
	// SealShares are files holding Shamir shares of the seed, an
	// alternative to SealKey.
	SealShares    []string `koanf:"seal_shares"`
	SealThreshold int      `koanf:"seal_threshold"`
}

type ClockConfig struct {
	// Source is either "system" or "chain".
	Source  string `koanf:"source"`
	RPCAddr string `koanf:"rpc_addr"`
}

type AuthConfig struct {
	// MaxSkew bounds the difference between a request's signing time and
	// the server time. Signatures are remembered for as long.
	MaxSkew time.Duration `koanf:"max_skew"`
}

type LoggingConfig struct {
	JSON    bool   `koanf:"json"`
	Debug   bool   `koanf:"debug"`
	UID     bool   `koanf:"uid"`
	Service string `koanf:"service"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:               "127.0.0.1:8080",
			MetricsAddr:              "127.0.0.1:8090",
			DrainDuration:            45 * time.Second,
			GracefulShutdownDuration: 30 * time.Second,
			ReadTimeout:              60 * time.Second,
			WriteTimeout:             30 * time.Second,
		},
		Storage: StorageConfig{
			URI: "memory://",
		},
		Clock: ClockConfig{
			Source:  ClockSystem,
			RPCAddr: "http://127.0.0.1:8545",
		},
		Auth: AuthConfig{
			MaxSkew: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Service: "vigil",
		},
	}
}

// Load reads configPath (if not empty) and the environment on top of the
// defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
}

// Validate checks the configuration for values no component would accept.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if c.Server.DrainDuration < 0 || c.Server.GracefulShutdownDuration < 0 {
		return errors.New("server durations must not be negative")
	}

	if _, err := interfaces.NewStorageBackendLocation(c.Storage.URI); err != nil {
		return fmt.Errorf("storage.uri: %w", err)
	}
	if _, err := c.Storage.SealSeed(); err != nil {
		return err
	}

	switch c.Clock.Source {
	case ClockSystem:
	case ClockChain:
		if c.Clock.RPCAddr == "" {
			return errors.New("clock.rpc_addr is required for the chain clock")
		}
	default:
		return fmt.Errorf("unknown clock.source %q", c.Clock.Source)
	}

	if c.Auth.MaxSkew <= 0 {
		return errors.New("auth.max_skew must be positive")
	}
	return nil
}

// SealSeed decodes SealKey or reconstructs the seed from SealShares. It
// returns nil when sealing is disabled.
func (s StorageConfig) SealSeed() ([]byte, error) {
	if s.SealKey != "" && len(s.SealShares) > 0 {
		return nil, errors.New("storage.seal_key and storage.seal_shares are mutually exclusive")
	}
	if len(s.SealShares) > 0 {
		if s.SealThreshold < 2 {
			return nil, errors.New("storage.seal_threshold must be at least 2")
		}
		seed, err := kms.RecoverSeedFromFiles(s.SealShares, s.SealThreshold)
		if err != nil {
			return nil, fmt.Errorf("storage.seal_shares: %w", err)
		}
		return seed, nil
	}
	if s.SealKey == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(strings.TrimPrefix(s.SealKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("storage.seal_key: %w", err)
	}
	if len(seed) < MinSealSeedLength {
		return nil, fmt.Errorf("storage.seal_key must be at least %d bytes", MinSealSeedLength)
	}
	return seed, nil
}
