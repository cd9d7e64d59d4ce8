package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"zerocode-chat/internal/app"
	"zerocode-chat/internal/bootstrap"
	"zerocode-chat/internal/config"
	"zerocode-chat/internal/conversation"
	"zerocode-chat/internal/pkg/logging"
	"zerocode-chat/internal/store"
	httptransport "zerocode-chat/internal/transport/http"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "zerocode-chat",
		Short:         "ZeroCode chat assistant server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCommand(), newExportCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newExportCommand() *cobra.Command {
	var userID, email string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the export document of a stored chat log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" && email == "" {
				return errors.New("one of --user or --email is required")
			}
			if userID == "" {
				userID = app.UserIDForEmail(email)
			}
			return runExport(cmd.Context(), cmd.OutOrStdout(), userID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id owning the log")
	cmd.Flags().StringVar(&email, "email", "", "email of the user owning the log")
	return cmd
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := bootstrap.New(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("close resources failed")
		}
	}()

	router := httptransport.NewRouter(a)
	server := &http.Server{
		Addr:              a.Config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	return waitForShutdown(server, serveErr)
}

func waitForShutdown(server *http.Server, serveErr <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func runExport(ctx context.Context, out io.Writer, userID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	logging.Setup(cfg.App.Env, cfg.App.LogLevel)

	st, redisCli, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	if redisCli != nil {
		defer redisCli.Close()
	}

	messages, err := conversation.LoadMessages(ctx, st, store.Key(cfg.Session.HistoryKey, userID))
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(conversation.NewExportDocument(messages, time.Now()))
}
