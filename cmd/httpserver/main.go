package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/routerlabs/device-cert-backend/api/certhandler"
	"github.com/routerlabs/device-cert-backend/certauth"
	"github.com/routerlabs/device-cert-backend/common"
	"github.com/routerlabs/device-cert-backend/httpserver"
	"github.com/routerlabs/device-cert-backend/ratelimit"
	"github.com/routerlabs/device-cert-backend/storage"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics, empty to disable",
	},
	&cli.StringFlag{
		Name:    "store-uri",
		Value:   "redis://127.0.0.1:6379/0",
		EnvVars: []string{"CERTAPI_STORE_URI"},
		Usage:   "location URI of the key-value store for the certs action",
	},
	&cli.StringFlag{
		Name:    "mailpass-store-uri",
		Value:   "",
		EnvVars: []string{"CERTAPI_MAILPASS_STORE_URI"},
		Usage:   "location URI of the store for the mailpass action, defaults to store-uri",
	},
	&cli.Int64Flag{
		Name:  "session-timeout",
		Value: 300,
		Usage: "session TTL in seconds",
	},
	&cli.Int64Flag{
		Name:  "rlimit-window",
		Value: 600,
		Usage: "rate-limit sliding window in seconds",
	},
	&cli.Int64Flag{
		Name:  "rlimit-ban",
		Value: 3600,
		Usage: "rate-limit ban window in seconds",
	},
	&cli.Int64Flag{
		Name:  "rlimit-max-hits",
		Value: 0,
		Usage: "admitted hits per window per address, 0 disables the rate limiter",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: common.PackageName,
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "cert-api",
		Usage: "Serve the certificate-issuance authentication API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: cCtx.String("log-service"),
				Version: common.Version,
			})
			if cCtx.Bool("log-uid") {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			storeFactory := storage.NewStorageBackendFactory(logger)
			certsStore, err := storeFactory.StorageBackendFor(cCtx.String("store-uri"))
			if err != nil {
				logger.Error("Failed to create store", "err", err)
				return err
			}
			defer certsStore.Close()

			mailpassStore := certsStore
			if uri := cCtx.String("mailpass-store-uri"); uri != "" {
				mailpassStore, err = storeFactory.StorageBackendFor(uri)
				if err != nil {
					logger.Error("Failed to create mailpass store", "err", err)
					return err
				}
				defer mailpassStore.Close()
			}

			sessionTTL := time.Duration(cCtx.Int64("session-timeout")) * time.Second
			certsSvc := certauth.NewService(certauth.Config{
				Store:      certsStore,
				Action:     certauth.CertsAction{},
				SessionTTL: sessionTTL,
				Log:        logger,
			})
			mailpassSvc := certauth.NewService(certauth.Config{
				Store:      mailpassStore,
				Action:     certauth.MailpassAction{},
				SessionTTL: sessionTTL,
				Log:        logger,
			})

			limiter := ratelimit.New(certsStore, ratelimit.Config{
				WindowTime: time.Duration(cCtx.Int64("rlimit-window")) * time.Second,
				BanTime:    time.Duration(cCtx.Int64("rlimit-ban")) * time.Second,
				MaxHits:    cCtx.Int64("rlimit-max-hits"),
			}, logger)

			handler := certhandler.NewHandler(certsSvc, mailpassSvc, limiter, logger)

			cfg := &httpserver.HTTPServerConfig{
				ListenAddr:               cCtx.String("listen-addr"),
				MetricsAddr:              cCtx.String("metrics-addr"),
				Log:                      logger,
				EnablePprof:              cCtx.Bool("pprof"),
				DrainDuration:            time.Duration(cCtx.Int64("drain-seconds")) * time.Second,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

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

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
