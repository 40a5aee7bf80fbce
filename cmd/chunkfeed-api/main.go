package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/chunks"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/config"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/credentials"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/database"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/engagement"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/fanout"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/identifier"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/logging"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/notifications"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/server"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chunkfeed-api",
		Short: "Chunkfeed social backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-days", defaults.GetInt("token.ttl_days"), "Session token TTL in days")
	cmd.PersistentFlags().Int("store-timeout-seconds", defaults.GetInt("store.timeout_seconds"), "Per-operation store deadline in seconds")
	cmd.PersistentFlags().Int("fanout-buffer", defaults.GetInt("fanout.buffer"), "Notification fan-out buffer size")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_days", "token-ttl-days")
	bindFlag(cmd, "store.timeout_seconds", "store-timeout-seconds")
	bindFlag(cmd, "fanout.buffer", "fanout-buffer")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "token.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	storeTimeout := time.Duration(appConfig.StoreTimeoutSeconds) * time.Second
	bus := fanout.NewBus(appConfig.FanoutBuffer)
	idProvider := identifier.NewUUIDProvider()

	tokens := credentials.NewTokenIssuer(credentials.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      time.Duration(appConfig.TokenTTLDays) * 24 * time.Hour,
	})

	userService, err := users.NewService(users.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		IDProvider:   idProvider,
		Hasher:       credentials.NewPasswordHasher(credentials.PasswordHasherConfig{}),
		Events:       bus,
		Logger:       logger,
		StoreTimeout: storeTimeout,
	})
	if err != nil {
		return err
	}

	chunkService, err := chunks.NewService(chunks.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		IDProvider:   idProvider,
		SlugProvider: chunks.NewRandomSlugProvider(),
		Logger:       logger,
		StoreTimeout: storeTimeout,
	})
	if err != nil {
		return err
	}

	engagementService, err := engagement.NewService(engagement.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		IDProvider:   idProvider,
		Events:       bus,
		Logger:       logger,
		StoreTimeout: storeTimeout,
	})
	if err != nil {
		return err
	}

	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		IDProvider:   idProvider,
		Users:        userService,
		Logger:       logger,
		StoreTimeout: storeTimeout,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:        tokens,
		Users:         userService,
		Chunks:        chunkService,
		Engagement:    engagementService,
		Notifications: notificationService,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		notificationService.Run(signalCtx, bus)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		bus.Close()
		<-consumerDone
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		bus.Close()
		return err
	}
}
