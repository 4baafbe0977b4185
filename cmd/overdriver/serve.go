package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/overdriver/internal/platform/tui"
	"github.com/vovakirdan/overdriver/internal/platform/web"
	"github.com/vovakirdan/overdriver/internal/session"
)

var (
	flagSSHAddr     string
	flagHostKey     string
	flagIdleTimeout int
	flagHTTPAddr    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control panel SSH server",
	Long: `Start an SSH server that serves the control panel, so a phone or a
second machine can arm songs while the game keeps focus on this one.

All connections share one session: the overdrive key is pressed on this
host, and an armed or running song is visible to every client.

With --http, a JSON API is served as well:
  GET  /api/status, /api/songs?search=, /api/history, /api/events (SSE)
  POST /api/arm {"song", "instrument", "difficulty"}, /api/start, /api/cancel

Host key handling:
  - If --host-key is provided, uses that key file
  - Otherwise, auto-generates a key at ~/.overdriver/host_key

Examples:
  overdriver serve                           # Listen on :23235 with auto-generated key
  overdriver serve --ssh :2222               # Listen on port 2222
  overdriver serve --host-key ./my_host_key  # Use specific host key
  overdriver serve --http :8088              # Also serve the JSON API
  overdriver serve --ssh "" --http :8088     # JSON API only

Users can connect with:
  ssh localhost -p 23235`,
	Run: runServe,
}

func init() {
	defaults := tui.DefaultSSHServerConfig()
	serveCmd.Flags().StringVar(&flagSSHAddr, "ssh", defaults.Address, "SSH server address (host:port)")
	serveCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to host key file (auto-generated if not specified)")
	serveCmd.Flags().StringVar(&flagHTTPAddr, "http", "", "HTTP API address (disabled if empty)")
	serveCmd.Flags().IntVar(&flagIdleTimeout, "idle-timeout", int(defaults.IdleTimeout/time.Minute), "Idle timeout in minutes before disconnecting")
}

func runServe(_ *cobra.Command, _ []string) {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sess, err := openSession(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var api *web.Server
	if flagHTTPAddr != "" {
		api = web.NewServer(flagHTTPAddr, sess, logger.WithPrefix("http"))
		go func() {
			if err := api.ListenAndServe(); err != nil {
				logger.Error("HTTP server stopped", "error", err)
			}
		}()
		fmt.Printf("Serving HTTP API on %s\n", api.Addr())
	}

	var serveErr error
	if flagSSHAddr != "" {
		serveErr = serveSSH(sess, logger)
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		fmt.Println("Press Ctrl+C to stop")
		<-ctx.Done()
		stop()
	}

	if api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(ctx); err != nil {
			logger.Warn("HTTP shutdown", "error", err)
		}
		cancel()
	}
	if !sess.Shutdown(sess.Settings().Grace()) {
		logger.Warn("key presses still in flight at exit")
	}
	if serveErr != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", serveErr)
		os.Exit(1)
	}
}

// serveSSH runs the SSH server until interrupted.
func serveSSH(sess *session.Session, logger *log.Logger) error {
	cfg := tui.SSHServerConfig{
		Address:     flagSSHAddr,
		HostKeyPath: flagHostKey,
		IdleTimeout: time.Duration(flagIdleTimeout) * time.Minute,
	}

	server, err := tui.NewSSHServer(cfg, sess, logger.WithPrefix("ssh"))
	if err != nil {
		return fmt.Errorf("cannot create server: %w", err)
	}

	fmt.Printf("Starting overdriver SSH server on %s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	return server.ListenAndServe()
}
