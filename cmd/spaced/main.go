// Command spaced runs a tuple-space server.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tuplespace/admin"
	"tuplespace/config"
	"tuplespace/logging"
	"tuplespace/middleware"
	"tuplespace/registry"
	"tuplespace/server"
	"tuplespace/space"
)

func main() {
	var (
		configPath string
		listen     string
		logLevel   string
		dev        bool
	)

	rootCmd := &cobra.Command{
		Use:          "spaced",
		Short:        "Serve tuple spaces over TCP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServer()
			if configPath != "" {
				var err error
				if cfg, err = config.LoadServer(configPath); err != nil {
					return err
				}
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			profile := logging.ProfileRuntime
			if dev {
				profile = logging.ProfileDev
			}
			logger, err := logging.New(profile, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to a TOML config file")
	rootCmd.Flags().StringVar(&listen, "listen", "", "Address to listen on, overrides the config file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn, error or off")
	rootCmd.Flags().BoolVar(&dev, "dev", false, "Human-readable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx ends, then shuts the server down.
func run(ctx context.Context, cfg config.Server, logger *zap.Logger) error {
	repo := space.NewRepository(cfg.Spaces...)

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMaxBodySize(cfg.MaxBodySize),
		server.WithPreferredCodec(cfg.Codec),
	}
	if len(cfg.EtcdEndpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, 5*time.Second, logger)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.AdvertiseAddr(), int64(cfg.LeaseTTL/time.Second)))
	}

	svr := server.NewServer(repo, opts...)
	svr.Use(middleware.RecoverMiddleware(logger))
	svr.Use(middleware.LoggingMiddleware(logger))
	svr.Use(middleware.MetricsMiddleware())
	if cfg.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	svr.Use(middleware.TimeoutMiddleware(cfg.RequestTimeout))

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	errCh := make(chan error, 2)
	go func() { errCh <- svr.ServeListener(l) }()

	var adm *admin.Admin
	if cfg.AdminAddr != "" {
		al, err := net.Listen("tcp", cfg.AdminAddr)
		if err != nil {
			svr.Shutdown(time.Second)
			return err
		}
		adm = admin.New(repo, logger.Named("admin"))
		go func() { errCh <- adm.Serve(al) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("serve failed", zap.Error(err))
	}

	shutdownTimeout := 10 * time.Second
	if adm != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		adm.Shutdown(sctx)
		cancel()
	}
	if serr := svr.Shutdown(shutdownTimeout); serr != nil && err == nil {
		err = serr
	}
	return err
}
