package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"e2e_relay/internal/client"
	"e2e_relay/internal/utils/log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func defaultHome() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".e2e_relay"
	}
	return filepath.Join(dir, "e2e_relay")
}

func rootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RELAY_CLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "relay-chat",
		Short:        "Terminal client for the end-to-end encrypted relay",
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initLog(v.GetString("log-file"), v.GetString("log-level"))
		},
		PostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := client.Options{
				Server:  v.GetString("server"),
				Handle:  v.GetString("handle"),
				Home:    v.GetString("home"),
				Prekeys: v.GetInt("prekeys"),
			}
			if opts.Handle == "" {
				return errors.New("--handle is required")
			}
			if token := v.GetString("token"); token != "" {
				if err := installToken(opts, token); err != nil {
					return err
				}
			}

			if err := client.NewApp().Run(ctx, opts); err != nil {
				log.Error("client stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("server", "http://localhost:9090", "relay base URL")
	f.String("handle", "", "your handle, e.g. alice@example.com")
	f.String("home", defaultHome(), "directory holding key files")
	f.Int("prekeys", 20, "one-time prekeys to keep published")
	f.String("token", "", "replace the stored token, e.g. one minted with relayd token")
	f.String("log-file", filepath.Join(os.TempDir(), "relay-chat.log"), "log destination, the terminal belongs to the UI")
	f.String("log-level", "info", "debug, info, warn or error")
	_ = v.BindPFlags(f)

	return cmd
}

// installToken stores a token minted out of band, for a keyring whose token
// expired.
func installToken(opts client.Options, token string) error {
	keys, err := client.LoadKeyring(opts.Home, opts.Handle)
	if err != nil {
		return err
	}
	keys.Token = token
	return keys.Save()
}

func initLog(path, level string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	log.Set(l)
	return nil
}
