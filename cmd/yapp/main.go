package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/yapp/internal/apiclient"
	"github.com/MarcoPoloResearchLab/yapp/internal/config"
	"github.com/MarcoPoloResearchLab/yapp/internal/feed"
	"github.com/MarcoPoloResearchLab/yapp/internal/identity"
	"github.com/MarcoPoloResearchLab/yapp/internal/logging"
	"github.com/MarcoPoloResearchLab/yapp/internal/metrics"
	"github.com/MarcoPoloResearchLab/yapp/internal/pushclient"
	"github.com/MarcoPoloResearchLab/yapp/internal/render"
)

var (
	cfgFile string
	noColor bool
)

// session bundles the engine with the output it reports to.
type session struct {
	cfg      config.ClientConfig
	engine   *feed.Engine
	resolver *identity.Resolver
	metrics  *metrics.Metrics
	logger   *zap.Logger

	outputMu sync.Mutex
	printer  *render.Printer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "yapp",
		Short:         "Command-line client for the yapp feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newFeedCommand(),
		newProfileCommand(),
		newShowCommand(),
		newPostCommand(),
		newReactionCommand("like", "Like a post (again to clear)"),
		newReactionCommand("dislike", "Dislike a post (again to clear)"),
		newCommentCommand(),
		newEditCommand(),
		newDeleteCommand(),
		newWatchCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("api-url", defaults.GetString("api.base_url"), "Feed API base URL")
	cmd.PersistentFlags().String("stream-url", "", "Push stream URL (derived from the API URL when empty)")
	cmd.PersistentFlags().String("token", "", "Bearer token")
	cmd.PersistentFlags().String("identity", "", "Identity (email) to act as when the token carries none")
	cmd.PersistentFlags().String("reaction-mode", defaults.GetString("reactions.mode"), "Reaction write mode (set, toggle)")
	cmd.PersistentFlags().Bool("refresh-after-comment", defaults.GetBool("comments.refresh_after_create"), "Reload the feed after a comment is saved")
	cmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	bindFlag(cmd, "api.base_url", "api-url")
	bindFlag(cmd, "api.stream_url", "stream-url")
	bindFlag(cmd, "auth.token", "token")
	bindFlag(cmd, "identity.email", "identity")
	bindFlag(cmd, "reactions.mode", "reaction-mode")
	bindFlag(cmd, "comments.refresh_after_create", "refresh-after-comment")
	bindFlag(cmd, "log.level", "log-level")
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

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return nil, err
	}
	mode, err := feed.ParseReactionMode(cfg.ReactionMode)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	backend, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	resolver := identity.NewResolver(identity.ResolverConfig{
		Credentials:   identity.StaticCredential(cfg.AuthToken),
		EmailOverride: cfg.IdentityEmail,
	})

	s := &session{
		cfg:      cfg,
		resolver: resolver,
		metrics:  metrics.New(),
		logger:   logger,
		printer:  render.NewPrinter(cmd.OutOrStdout(), resolver.Current().Email, noColor),
	}

	engine, err := feed.NewEngine(feed.EngineConfig{
		Backend:             backend,
		Identity:            resolver,
		ReactionMode:        mode,
		RefreshAfterComment: cfg.RefreshAfterComment,
		Notifier:            feed.NotifierFunc(s.notify),
		Observer:            s.metrics,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

func (s *session) notify(notification feed.Notification) {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	s.printer.Notification(notification)
}

func (s *session) print(write func(*render.Printer)) {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	write(s.printer)
}

// withSession builds a session and runs fn, syncing the logger afterwards.
func withSession(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_ = s.logger.Sync()
		}()
		return fn(cmd, s, args)
	}
}

func newFeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Print the current feed",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			if err := s.engine.Refresh(cmd.Context()); err != nil {
				return err
			}
			s.print(func(p *render.Printer) { p.Feed(s.engine.Posts()) })
			return nil
		}),
	}
}

func newProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile [email]",
		Short: "Print the posts written by a user (yourself by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			email := ""
			if len(args) == 1 {
				email = args[0]
			}
			posts, err := s.engine.ProfilePosts(cmd.Context(), email)
			if err != nil {
				return err
			}
			s.print(func(p *render.Printer) { p.Feed(posts) })
			return nil
		}),
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <post-id>",
		Short: "Print one post with all of its comments",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			post, err := s.engine.FetchPost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s.print(func(p *render.Printer) { p.Post(post) })
			return nil
		}),
	}
}

func newPostCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>",
		Short: "Publish a new post",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			post, err := s.engine.CreatePost(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			s.print(func(p *render.Printer) { p.Post(post) })
			return nil
		}),
	}
}

func newReactionCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <post-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			// The engine reacts against its local copy, so load it first.
			if err := s.engine.Refresh(cmd.Context()); err != nil {
				return err
			}
			react := s.engine.Like
			if name == "dislike" {
				react = s.engine.Dislike
			}
			state, err := react(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reaction: %s\n", state)
			return nil
		}),
	}
}

func newCommentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <text>",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			if err := s.engine.Refresh(cmd.Context()); err != nil {
				return err
			}
			comment, err := s.engine.AddComment(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			s.print(func(p *render.Printer) { p.Comment(comment) })
			return nil
		}),
	}
}

func newEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <post-id> <text>",
		Short: "Replace the content of one of your posts",
		Args:  cobra.MinimumNArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			if err := s.engine.Refresh(cmd.Context()); err != nil {
				return err
			}
			post, err := s.engine.EditPost(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			s.print(func(p *render.Printer) { p.Post(post) })
			return nil
		}),
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			if err := s.engine.Refresh(cmd.Context()); err != nil {
				return err
			}
			return s.engine.DeletePost(cmd.Context(), args[0])
		}),
	}
}

func newWatchCommand() *cobra.Command {
	var metricsAddress string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the feed live until interrupted",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			return s.watch(cmd.Context(), metricsAddress)
		}),
	}
	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "Serve Prometheus metrics on this address while watching (optional)")
	return cmd
}

func (s *session) watch(ctx context.Context, metricsAddress string) error {
	if err := s.engine.Refresh(ctx); err != nil {
		return err
	}
	s.print(func(p *render.Printer) { p.Feed(s.engine.Posts()) })

	if metricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		metricsServer := &http.Server{Addr: metricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	first := true
	client, err := pushclient.New(pushclient.Config{
		URL:         s.cfg.StreamURL,
		Credentials: func() string { return s.resolver.Current().Credential },
		Handler: func(event feed.Event) {
			applied, err := s.engine.HandleEvent(event)
			if err != nil || !applied {
				return
			}
			s.print(func(p *render.Printer) { p.Event(event) })
		},
		OnConnect: func() {
			// Events may have been missed while disconnected.
			if first {
				first = false
				return
			}
			if err := s.engine.Refresh(ctx); err == nil {
				s.print(func(p *render.Printer) { p.Feed(s.engine.Posts()) })
			}
		},
		Logger: s.logger,
	})
	if err != nil {
		return err
	}

	err = client.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
