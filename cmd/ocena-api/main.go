package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ocena-project/ocena/internal/auth"
	"github.com/ocena-project/ocena/internal/config"
	"github.com/ocena-project/ocena/internal/database"
	"github.com/ocena-project/ocena/internal/logging"
	"github.com/ocena-project/ocena/internal/movies"
	"github.com/ocena-project/ocena/internal/music"
	"github.com/ocena-project/ocena/internal/scraper"
	"github.com/ocena-project/ocena/internal/server"
	"github.com/ocena-project/ocena/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ocena-api",
		Short: "Ocena movie and music metadata API",
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
	cmd.PersistentFlags().String("gophie-host", defaults.GetString("gophie.host"), "Movie scraping service base URL")
	cmd.PersistentFlags().String("mythra-host", defaults.GetString("mythra.host"), "Music scraping service base URL")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("rating-identity", defaults.GetString("rating.identity"), "Rating identity mode (ip or ip_user)")
	cmd.PersistentFlags().String("signing-secret", "", "Identity token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "gophie.host", "gophie-host")
	bindFlag(cmd, "mythra.host", "mythra-host")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "rating.identity", "rating-identity")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

	movieCatalog, err := movies.NewService(movies.ServiceConfig{
		Database:     db,
		IDProvider:   movies.NewUUIDProvider(),
		IdentityMode: movies.IdentityMode(appConfig.RatingIdentity),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	musicCatalog, err := music.NewService(music.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	movieSource, err := scraper.NewMovieClient(scraper.MovieClientConfig{
		BaseURL:   appConfig.GophieHost,
		AccessKey: appConfig.GophieAccessKey,
		Timeout:   appConfig.UpstreamTimeout,
		Retries:   appConfig.UpstreamRetries,
		Catalog:   movieCatalog,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	musicSource, err := scraper.NewMusicClient(scraper.MusicClientConfig{
		BaseURL: appConfig.MythraHost,
		Timeout: appConfig.UpstreamTimeout,
		Retries: appConfig.UpstreamRetries,
		Catalog: musicCatalog,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	caches, err := server.NewCaches(server.CacheSizes{
		List:      appConfig.ListCacheSize,
		Search:    appConfig.SearchCacheSize,
		Downloads: appConfig.DownloadsCacheSize,
		Referral:  appConfig.ReferralCacheSize,
	}, nil)
	if err != nil {
		return err
	}

	var verifier *auth.Verifier
	var identityService *users.Service
	if appConfig.SigningSecret != "" {
		verifier, err = auth.NewVerifier(auth.VerifierConfig{
			SigningSecret: []byte(appConfig.SigningSecret),
		})
		if err != nil {
			return err
		}
		identityService, err = users.NewService(users.ServiceConfig{Database: db})
		if err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		MovieCatalog:   movieCatalog,
		MusicCatalog:   musicCatalog,
		MovieSource:    movieSource,
		MusicSource:    musicSource,
		Caches:         caches,
		Verifier:       verifier,
		Users:          identityService,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
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
