package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/config"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/database"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/notebooks"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/server"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notebook-api",
		Short: "Notebook backend service",
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
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Browser origins allowed to send credentials (comma separated)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", defaults.GetString("log.file"), "Optional rotating log file")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().Bool("dev", defaults.GetBool("dev.enabled"), "Serve every request as the development user")
	cmd.PersistentFlags().String("dev-username", defaults.GetString("dev.username"), "Development user name")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "dev.enabled", "dev")
	bindFlag(cmd, "dev.username", "dev-username")
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

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
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

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	notebookService, err := notebooks.NewService(notebooks.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
		Notifier: dispatcher,
	})
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		Users:          userService,
		Notebooks:      notebookService,
		Realtime:       dispatcher,
		Logger:         logger,
		CookieName:     appConfig.AuthCookieName,
		AllowedOrigins: appConfig.AllowedOrigins,
	}

	if appConfig.DevEnabled {
		devUserID, err := userService.EnsureUser(ctx, appConfig.DevUsername)
		if err != nil {
			return err
		}
		identity, err := auth.NewStaticIdentity(devUserID)
		if err != nil {
			return err
		}
		deps.Identity = identity
		deps.AuthDisabled = true
		logger.Warn("development identity enabled",
			zap.String("username", appConfig.DevUsername),
			zap.Int64("user_id", devUserID))
	} else {
		tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(appConfig.AuthSigningSecret),
			TokenTTL:      appConfig.AuthTokenTTL,
		})
		if err != nil {
			return err
		}
		identity, err := auth.NewBearerIdentity(tokenIssuer, appConfig.AuthCookieName)
		if err != nil {
			return err
		}
		deps.Identity = identity
		deps.Tokens = tokenIssuer
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
