package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/yapp/internal/auth"
	"github.com/MarcoPoloResearchLab/yapp/internal/config"
	"github.com/MarcoPoloResearchLab/yapp/internal/database"
	"github.com/MarcoPoloResearchLab/yapp/internal/logging"
	"github.com/MarcoPoloResearchLab/yapp/internal/metrics"
	"github.com/MarcoPoloResearchLab/yapp/internal/posts"
	"github.com/MarcoPoloResearchLab/yapp/internal/seed"
	"github.com/MarcoPoloResearchLab/yapp/internal/server"
	"github.com/MarcoPoloResearchLab/yapp/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "yapp-api",
		Short: "Yapp feed backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newTokenCommand(), newSeedCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "PostgreSQL DSN")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", "", "Rotated JSON log file (optional)")
	cmd.PersistentFlags().String("redis-url", "", "Redis URL for cross-replica realtime fan-out (optional)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
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

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newTokenCommand() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := newTokenIssuer(appConfig)
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueToken(cmd.Context(), auth.Profile{Email: email, DisplayName: name})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %s\n", time.Duration(expiresIn)*time.Second)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Identity (email) carried by the token")
	cmd.Flags().StringVar(&name, "name", "", "Display name carried by the token")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSeedCommand() *cobra.Command {
	var opts seed.Options
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with generated posts, reactions and comments",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := newLogger(appConfig)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, closeDB, err := openDatabase(appConfig, logger)
			if err != nil {
				return err
			}
			defer closeDB()

			postsService, err := newPostsService(db, logger)
			if err != nil {
				return err
			}
			seeder, err := seed.NewSeeder(postsService, logger)
			if err != nil {
				return err
			}
			summary, err := seeder.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d posts, %d reactions, %d comments\n",
				summary.Posts, summary.Reactions, summary.Comments)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Posts, "posts", 20, "Number of posts to create")
	cmd.Flags().IntVar(&opts.Users, "users", 8, "Number of distinct authors")
	cmd.Flags().IntVar(&opts.MaxCommentsPerPost, "max-comments", 4, "Upper bound of comments per post")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed (0 picks one)")
	return cmd
}

func newLogger(appConfig config.AppConfig) (*zap.Logger, error) {
	return logging.NewLoggerWithFile(appConfig.LogLevel, logging.FileOptions{Path: appConfig.LogFile})
}

func newTokenIssuer(appConfig config.AppConfig) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func newPostsService(db *gorm.DB, logger *zap.Logger) (*posts.Service, error) {
	return posts.NewService(posts.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: posts.NewUUIDProvider(),
		Logger:     logger,
	})
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := newLogger(appConfig)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		Audience:      auth.DefaultAudience,
	})
	if err != nil {
		return err
	}

	postsService, err := newPostsService(db, logger)
	if err != nil {
		return err
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	collectors := metrics.New()
	dispatcher := server.NewRealtimeDispatcherWithHooks(server.RealtimeHooks{
		OnJoin:  collectors.SubscriberJoined,
		OnLeave: collectors.SubscriberLeft,
		OnDrop:  collectors.FrameDropped,
	})

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher server.RealtimePublisher = dispatcher
	if appConfig.RedisURL != "" {
		redisOptions, err := redis.ParseURL(appConfig.RedisURL)
		if err != nil {
			return fmt.Errorf("redis.url: %w", err)
		}
		redisClient := redis.NewClient(redisOptions)
		defer redisClient.Close()
		relay, err := server.NewRedisRelay(redisClient, dispatcher, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := relay.Run(signalCtx); err != nil {
				logger.Error("realtime relay stopped", zap.Error(err))
			}
		}()
		publisher = relay
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Validator:    validator,
		PostsService: postsService,
		UsersService: usersService,
		Realtime:     dispatcher,
		Publisher:    publisher,
		Metrics:      collectors,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

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
