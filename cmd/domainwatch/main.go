package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rakapra/domainwatch/internal/config"
	"github.com/rakapra/domainwatch/internal/monitor"
	"github.com/rakapra/domainwatch/internal/notify"
	"github.com/rakapra/domainwatch/internal/scan"
	"github.com/rakapra/domainwatch/internal/secret"
	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	viperCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	env, err := config.EnvFrom(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(env.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("domainwatch starting")
	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults")
	}

	var cipher *secret.Cipher
	if env.EncryptionKey != "" {
		cipher, err = secret.NewCipher(env.EncryptionKey)
		if err != nil {
			logger.Fatal("failed to build credential cipher", zap.Error(err))
		}
	} else {
		logger.Warn("no encryption key configured, credentials stored in clear")
	}

	st, err := store.New(env.DatabasePath, cipher)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("path", env.DatabasePath))

	scanner := scan.NewScanner(env, logger.Named("scan"))
	gateway := notify.NewGateway(st, logger.Named("notify"))
	batcher := notify.NewBatcher(gateway, func(ctx context.Context) store.Settings {
		settings, err := st.GetSettings(ctx)
		if err != nil {
			logger.Warn("loading settings failed, using defaults", zap.Error(err))
			return store.DefaultSettings()
		}
		return settings
	}, logger.Named("notify"))

	scheduler := monitor.NewScheduler(st, scanner, batcher, logger.Named("scheduler"))
	if err := scheduler.ScheduleAll(ctx); err != nil {
		logger.Fatal("failed to arm scheduler", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              env.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listener started", zap.String("addr", env.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	scheduler.Stop()
	batcher.Stop()
	logger.Info("shutdown complete")
}
