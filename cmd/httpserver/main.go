package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/tee-vigil/clock"
	"github.com/ruteri/tee-vigil/cmd/flags"
	"github.com/ruteri/tee-vigil/config"
	"github.com/ruteri/tee-vigil/cryptoutils"
	"github.com/ruteri/tee-vigil/httpserver"
	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/ruteri/tee-vigil/registry"
	"github.com/ruteri/tee-vigil/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "vigil-server",
		Usage: "Serve the vigil dead-man's switch secret registry",
		Flags: flags.ServerFlags,
		Action: func(cCtx *cli.Context) error {
			cfg, err := flags.LoadConfig(cCtx)
			if err != nil {
				return err
			}

			logger := flags.SetupLogger(cfg)
			ctx := cCtx.Context

			var timeSource interfaces.Clock = clock.SystemClock{}
			if cfg.Clock.Source == config.ClockChain {
				logger.Info("Connecting to Ethereum RPC", "address", cfg.Clock.RPCAddr)
				timeSource, err = clock.DialChainClock(ctx, cfg.Clock.RPCAddr, logger)
				if err != nil {
					logger.Error("Failed to dial RPC", "err", err)
					return err
				}
			}

			seed, err := cfg.Storage.SealSeed()
			if err != nil {
				return err
			}
			store, err := storage.NewStorageBackendFactory(logger).NewTransactionalStore(ctx, cfg.Storage.URI, seed)
			if err != nil {
				logger.Error("Failed to open storage", "err", err)
				return err
			}

			dispatcher := registry.NewDispatcher(store, timeSource, logger)
			handler := httpserver.NewHandler(dispatcher, cryptoutils.NewReplayGuard(cfg.Auth.MaxSkew), logger)

			server, err := httpserver.New(flags.ConfigureServer(cfg, logger), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			store.SetCommitObserver(server.Metrics().ObserveCommit)

			logger.Info("Starting server")
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
