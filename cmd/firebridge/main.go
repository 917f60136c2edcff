package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"firebridge/internal/config"
	"firebridge/internal/firebase"
	"firebridge/internal/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "firebridge",
	Short:         "Talk to Firebase Auth, Storage, Firestore and callable functions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		cmdCtx.cfg = cfg
		cmdCtx.log = logger.New(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cmdCtx.clients.Close()
	},
}

var logLevel string

// commandContext is filled before any subcommand runs. Admin clients are created on
// first use so that commands working with the client SDK only need an API key.
type commandContext struct {
	cfg     config.Config
	log     *logrus.Logger
	clients *firebase.Clients
}

var cmdCtx commandContext

func (c *commandContext) adminClients(ctx context.Context) (*firebase.Clients, error) {
	if c.clients != nil {
		return c.clients, nil
	}
	clients, err := firebase.NewClients(ctx, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.clients = clients
	return clients, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
