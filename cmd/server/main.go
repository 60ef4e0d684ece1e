package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"e2e_relay/internal/app"
	"e2e_relay/internal/auth"
	"e2e_relay/internal/config"
	"e2e_relay/internal/model"
	"e2e_relay/internal/utils/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "relayd",
		Short:        "End-to-end encrypted chat relay",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := log.Init(c.Log.Level, c.Log.Development); err != nil {
				return err
			}
			cfg = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
		RunE: runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and websocket relay",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create tables, collections and indexes",
			RunE:  runMigrate,
		},
		tokenCmd(),
	)
	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := app.NewWire(ctx, cfg)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := w.Close(context.Background()); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	return w.Serve(ctx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Storage.Timeout*6)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	log.Info("migration complete", zap.String("driver", cfg.Storage.Driver))
	return nil
}

func tokenCmd() *cobra.Command {
	var handle string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a token for an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Storage.Timeout)
			defer cancel()

			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())

			u, err := store.Users().GetByHandle(ctx, model.NormalizeHandle(handle))
			if err != nil {
				return err
			}
			token, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL).Issue(u.ID, u.Handle)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "user handle")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}
