package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/modoterra/rndrwatch/internal/buildinfo"
	"github.com/modoterra/rndrwatch/pkg/daemon"
	"github.com/modoterra/rndrwatch/pkg/settings"
	"github.com/modoterra/rndrwatch/pkg/transport/uds"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		socketPath   string
		settingsPath string
		logLevel     string
		start        bool
	)

	root := &cobra.Command{
		Use:          "rndrwatchd",
		Short:        "RNDR render log monitor daemon",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			return run(cmd.Context(), logger, socketPath, settingsPath, start)
		},
	}

	defaultSettings, _ := settings.DefaultPath()
	root.Flags().StringVar(&socketPath, "socket", uds.DefaultSocketPath(), "unix socket to listen on")
	root.Flags().StringVar(&settingsPath, "settings", defaultSettings, "settings file (yaml, or legacy .json)")
	root.Flags().StringVar(&logLevel, "log-level", envOr("RNDRWATCH_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.Flags().BoolVar(&start, "start", false, "start monitoring immediately")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("rndrwatchd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		},
	})
	return root
}

func run(ctx context.Context, logger *slog.Logger, socketPath, settingsPath string, start bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s := loadSettings(logger, settingsPath)
	if s.NtfyTopic == "" && !s.PopupNotifications {
		logger.Warn("no ntfy topic configured; set one with: rndrwatch topic <name>")
	}

	d := daemon.New(socketPath, s, logger, daemon.Options{})
	defer d.Shutdown()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	logger.Info("starting rndrwatchd", "version", buildinfo.Version, "log_file", s.LogFile())

	select {
	case <-d.Ready():
	case err := <-errCh:
		return fmt.Errorf("daemon: %w", err)
	}

	if start || s.AutostartEnabled {
		d.StartMonitoring()
	}
	if ok, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify ready", "err", err)
	} else if ok {
		logger.Debug("notified systemd of readiness")
	}

	err := <-errCh
	logger.Info("shutting down")
	_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}

// loadSettings never fails. An unreadable file leaves FilePath empty so
// changes made over the socket are not saved on top of it.
func loadSettings(logger *slog.Logger, path string) *settings.Settings {
	s, err := settings.Load(path)
	if err != nil {
		logger.Warn("settings not loaded, using defaults; changes will not be saved", "path", path, "err", err)
		s = settings.Default()
	}
	for _, e := range settings.Sanitize(s) {
		logger.Warn("invalid setting replaced with default", "err", e)
	}
	return s
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
