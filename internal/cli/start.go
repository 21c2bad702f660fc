package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/harun/roundtable/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	startHost string
	startPort int
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"serve"},
	Short:   "Start the Roundtable server",
	Long: `Start the Roundtable server in the foreground.
The server accepts discussion sessions on /ws/discuss and serves the REST
endpoints until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startHost, "host", "", "listen host (overrides gateway.host)")
	startCmd.Flags().IntVar(&startPort, "port", 0, "listen port (overrides gateway.port)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if startHost != "" {
		cfg.Gateway.Host = startHost
	}
	if startPort > 0 {
		cfg.Gateway.Port = startPort
	}

	if running, pid := daemon.IsRunning(daemon.PIDFilePath(cfg.DataDir)); running {
		return fmt.Errorf("server is already running (PID %d)", pid)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
