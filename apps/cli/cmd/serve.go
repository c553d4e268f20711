package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/logging"
	"github.com/abdul-hamid-achik/hitmux/packages/mock"
	"github.com/spf13/cobra"
)

var (
	servePortFlag    int
	serveDelayFlag   string
	serveVerboseFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local mock server",
	Long: `Start a local HTTP server with endpoints that make batch behavior easy
to observe:

  /                         empty 200 response
  /print?content=...        echoes content as text/html
  /sleep?ms=...             responds after a delay
  /setcookie?name=&value=   sets a cookie
  /headers                  echoes the request headers as JSON
  /status/{code}            responds with the given status
  /redirect/{n}             redirects n times before landing on /

Examples:
  hitmux serve
  hitmux serve --port 3000
  hitmux serve --port 3000 --delay 100ms --verbose`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().IntVarP(&servePortFlag, "port", "p", getEnvInt("HITMUX_MOCK_PORT", 1080), "Port to run the mock server on (env: HITMUX_MOCK_PORT)")
	serveCmd.Flags().StringVarP(&serveDelayFlag, "delay", "d", "0", "Delay to add to all responses (e.g., 100ms, 1s)")
	serveCmd.Flags().BoolVarP(&serveVerboseFlag, "verbose", "v", false, "Log every request")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	var delay time.Duration
	if serveDelayFlag != "0" {
		var err error
		delay, err = time.ParseDuration(serveDelayFlag)
		if err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("invalid delay value %q: %w", serveDelayFlag, err))
		}
	}

	logger, err := logging.NewConsole("info", cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}

	server := mock.NewServer(
		mock.WithPort(servePortFlag),
		mock.WithDelay(delay),
		mock.WithVerbose(serveVerboseFlag),
		mock.WithLogger(logger),
	)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info().Msg("mock server stopped")
	return nil
}
