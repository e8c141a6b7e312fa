// Command wsrouter runs the WebSocket message router as a standalone
// process: a bare root command (no subcommands), all configuration bound
// directly as flags on it, grounded on plexsphere-plexd's cmd/plexd/cmd
// root.go + up.go shape but collapsed into one command since this server
// has exactly one mode of operation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wsrouter/internal/appcred"
	"wsrouter/internal/config"
	"wsrouter/internal/httpapi"
	"wsrouter/internal/logging"
	"wsrouter/internal/registry"
)

// drainTimeout bounds how long graceful shutdown waits for in-flight HTTP
// requests. Upgraded WebSocket connections are hijacked and are not waited for.
const drainTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "wsrouter",
		Short: "wsrouter is a WebSocket message router",
		Long: "wsrouter rendezvouses peers by a shared 8-character registration id and\n" +
			"forwards frames between them, supporting a symmetric lobby topology and\n" +
			"an asymmetric host/client topology.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, cmd.Flags().Changed)
		},
	}

	flags := cmd.Flags()
	flags.Uint16VarP(&cfg.Port, "port", "p", cfg.Port, "listen port")
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", false, "suppress all non-error output")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug-level logging")
	flags.BoolVarP(&cfg.Secure, "secure", "s", false, "enable TLS (requires --key_file and --cert_file)")
	flags.StringVar(&cfg.KeyFile, "key_file", "", "TLS private key path")
	flags.StringVar(&cfg.CertFile, "cert_file", "", "TLS certificate path")
	flags.StringVarP(&cfg.SecretKey, "secret_key", "k", "", "argon2 additional-data secret (random if absent)")
	flags.BoolVarP(&cfg.AutoRemove, "auto_remove", "r", false, "remove a registration once its last connection drains")
	flags.BoolVarP(&cfg.Reject, "reject", "j", false, "reject bad id_req values instead of silently reassigning")

	cmd.MarkFlagsMutuallyExclusive("quiet", "verbose")

	return cmd
}

func run(cfg config.Config, flagChanged func(name string) bool) error {
	cfg = config.ApplyEnv(cfg, flagChanged)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cfg)

	processSecret := cfg.SecretKey
	if processSecret == "" {
		var err error
		processSecret, err = appcred.GenerateProcessSecret()
		if err != nil {
			return fmt.Errorf("wsrouter: generate process secret: %w", err)
		}
		log.Warn().Msg("no --secret_key configured; generated a process-lifetime secret, credentials will not survive a restart")
	}

	reg := registry.New()
	handler := httpapi.New(reg, processSecret, cfg.AutoRemove, cfg.Reject, log)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Secure {
			err = httpServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	log.Info().Uint16("port", cfg.Port).Bool("secure", cfg.Secure).Msg("wsrouter listening")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrCh:
		return fmt.Errorf("wsrouter: listen: %w", err)
	case sig := <-signalCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("wsrouter: shutdown: %w", err)
		}
		log.Info().Msg("shutdown complete")
		return nil
	}
}
