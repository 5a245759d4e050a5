package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/tee-vigil/common"
	"github.com/ruteri/tee-vigil/config"
	"github.com/ruteri/tee-vigil/httpserver"
	"github.com/urfave/cli/v2"
)

// SetupLogger builds the process logger from cfg.Logging.
func SetupLogger(cfg *config.Config) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cfg.Logging.Debug,
		JSON:    cfg.Logging.JSON,
		Service: cfg.Logging.Service,
		Version: common.Version,
	})

	if cfg.Logging.UID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// LoadConfig reads the config file and environment, then applies every flag
// set on the command line.
func LoadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cCtx.String(ConfigFileFlag.Name))
	if err != nil {
		return nil, err
	}

	setString := func(flag *cli.StringFlag, dst *string) {
		if cCtx.IsSet(flag.Name) {
			*dst = cCtx.String(flag.Name)
		}
	}
	setBool := func(flag *cli.BoolFlag, dst *bool) {
		if cCtx.IsSet(flag.Name) {
			*dst = cCtx.Bool(flag.Name)
		}
	}

	setString(ListenAddrFlag, &cfg.Server.ListenAddr)
	setString(MetricsAddrFlag, &cfg.Server.MetricsAddr)
	setBool(PprofFlag, &cfg.Server.EnablePprof)
	if cCtx.IsSet(DrainSecondsFlag.Name) {
		cfg.Server.DrainDuration = time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second
	}

	setString(StorageURIFlag, &cfg.Storage.URI)
	setString(SealKeyFlag, &cfg.Storage.SealKey)
	if cCtx.IsSet(SealSharesFlag.Name) {
		cfg.Storage.SealShares = cCtx.StringSlice(SealSharesFlag.Name)
	}
	if cCtx.IsSet(SealThresholdFlag.Name) {
		cfg.Storage.SealThreshold = cCtx.Int(SealThresholdFlag.Name)
	}
	setString(ClockFlag, &cfg.Clock.Source)
	setString(RpcAddrFlag, &cfg.Clock.RPCAddr)
	if cCtx.IsSet(MaxSkewFlag.Name) {
		cfg.Auth.MaxSkew = cCtx.Duration(MaxSkewFlag.Name)
	}

	setBool(LogJsonFlag, &cfg.Logging.JSON)
	setBool(LogDebugFlag, &cfg.Logging.Debug)
	setBool(LogUidFlag, &cfg.Logging.UID)
	setString(LogServiceFlag, &cfg.Logging.Service)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ConfigureServer(cfg *config.Config, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cfg.Server.ListenAddr,
		MetricsAddr:              cfg.Server.MetricsAddr,
		Log:                      logger,
		EnablePprof:              cfg.Server.EnablePprof,
		DrainDuration:            cfg.Server.DrainDuration,
		GracefulShutdownDuration: cfg.Server.GracefulShutdownDuration,
		ReadTimeout:              cfg.Server.ReadTimeout,
		WriteTimeout:             cfg.Server.WriteTimeout,
	}
}

var ConfigFileFlag = &cli.StringFlag{
	Name:    "config",
	EnvVars: []string{"VIGIL_CONFIG"},
	Usage:   "path to a TOML config file",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var StorageURIFlag = &cli.StringFlag{
	Name:  "storage",
	Value: "memory://",
	Usage: "storage location URI (memory://, file:///dir, sqlite:///file.db, redis://host:port/db, vault://host:port/mount/path, s3://bucket/prefix)",
}

var SealKeyFlag = &cli.StringFlag{
	Name:  "seal-key",
	Usage: "hex-encoded seed (at least 32 bytes) to seal stored records with",
}

var SealSharesFlag = &cli.StringSliceFlag{
	Name:  "seal-share",
	Usage: "file holding a Shamir share of the seal seed (repeatable, alternative to --seal-key)",
}

var SealThresholdFlag = &cli.IntFlag{
	Name:  "seal-threshold",
	Usage: "number of seal seed shares needed to reconstruct the seed",
}

var ClockFlag = &cli.StringFlag{
	Name:  "clock",
	Value: config.ClockSystem,
	Usage: "time source for revelation checks: 'system' or 'chain'",
}

var RpcAddrFlag = &cli.StringFlag{
	Name:  "rpc-addr",
	Value: "http://127.0.0.1:8545",
	Usage: "address to connect to RPC (chain clock)",
}

var MaxSkewFlag = &cli.DurationFlag{
	Name:  "max-skew",
	Value: 5 * time.Minute,
	Usage: "maximum accepted difference between a request's signing time and server time",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

// ServerFlags are the flags of the vigil server binary.
var ServerFlags = append([]cli.Flag{
	ConfigFileFlag,
	ListenAddrFlag,
	StorageURIFlag,
	SealKeyFlag,
	SealSharesFlag,
	SealThresholdFlag,
	ClockFlag,
	RpcAddrFlag,
	MaxSkewFlag,
}, CommonFlags...)
