package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tutorlink/tutorlink-client/internal/app"
	"github.com/tutorlink/tutorlink-client/internal/config"
	"github.com/tutorlink/tutorlink-client/internal/devserver"
	"github.com/tutorlink/tutorlink-client/internal/log"
	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tutorlink",
		Short:         "tutorlink realtime client and development backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newWatchCmd(&configPath))
	root.AddCommand(newDevServerCmd(&configPath))
	return root
}

// loadRuntime resolves config and builds the logger shared by all commands.
func loadRuntime(configPath string) (config.Config, *zerolog.Logger, error) {
	bootstrap := log.New("info")
	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newWatchCmd(configPath *string) *cobra.Command {
	var (
		token    string
		name     string
		password string
		chatID   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "connect to the realtime channel and print incoming events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			a := app.New(cfg, logger)
			defer a.Close()

			if token == "" {
				if name == "" || password == "" {
					return errors.New("either --token or --name and --password are required")
				}
				token, err = a.API().Login(ctx, name, password)
				if err != nil {
					return fmt.Errorf("login: %w", err)
				}
			}

			identity, err := a.SetCredential(ctx, token)
			if err != nil {
				return err
			}
			logger.Info().Str("user_id", identity.UserID).Str("role", string(identity.Role)).Msg("watching realtime events")

			ch := a.Channel()
			for _, kind := range []realtime.EventKind{
				realtime.EventMessageSent,
				realtime.EventTrialRequestCreated,
				realtime.EventTrialRequestAccepted,
				realtime.EventTrialRequestTaken,
				realtime.EventProposalUpdated,
				realtime.EventFeedbackSubmitted,
				realtime.EventStudentReviewSubmitted,
			} {
				kind := kind
				ch.Subscribe(kind, func(data json.RawMessage) {
					logger.Info().Str("event", string(kind)).RawJSON("data", data).Msg("push event")
				})
			}

			if chatID != "" {
				ch.OnConnect(func() {
					ch.JoinRoom(ctx, chatID)
				})
			}

			<-ctx.Done()
			logger.Info().Msg("stopping")
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "access token")
	cmd.Flags().StringVar(&name, "name", "", "account name, used with --password when no token is given")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&chatID, "chat", "", "chat room to join on connect")
	return cmd
}

func newDevServerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "devserver",
		Short: "run the local development backend emulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			server, err := devserver.New(cfg.DevServer, logger)
			if err != nil {
				return err
			}
			if err := server.Run(ctx); err != nil {
				return fmt.Errorf("devserver exited: %w", err)
			}
			logger.Info().Msg("devserver stopped")
			return nil
		},
	}
}
