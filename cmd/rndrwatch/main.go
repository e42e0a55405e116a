package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/modoterra/rndrwatch/internal/buildinfo"
	"github.com/modoterra/rndrwatch/pkg/core"
	"github.com/modoterra/rndrwatch/pkg/daemon/service"
	"github.com/modoterra/rndrwatch/pkg/filetail"
	"github.com/modoterra/rndrwatch/pkg/settings"
	"github.com/modoterra/rndrwatch/pkg/transport/uds"
	tuimodel "github.com/modoterra/rndrwatch/pkg/tui/model"
)

var (
	socketPath   string
	settingsPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "rndrwatch",
	Short:        "Push notifications for RNDR render jobs",
	Long:         "rndrwatch watches the RNDR client log through the rndrwatchd daemon and pushes a notification when a render job starts, fails or completes.",
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	defaultSettings, _ := settings.DefaultPath()
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", uds.DefaultSocketPath(), "daemon socket path")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", defaultSettings, "settings file")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(topicCmd)
	rootCmd.AddCommand(popupCmd)
	rootCmd.AddCommand(testlogCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(autostartCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- Root: TUI ---

func runTUI(cmd *cobra.Command, _ []string) error {
	ensureDaemon()
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return printStatus(cmd.OutOrStdout(), false)
	}
	app := tuimodel.New(socketPath)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func ensureDaemon() {
	if _, err := os.Stat(socketPath); err == nil {
		return
	}
	cmd := exec.Command("rndrwatchd", "--socket", socketPath, "--settings", settingsPath)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not start daemon:", err)
		return
	}
	for i := 0; i < 30; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "warning: could not start daemon, continuing anyway")
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socketPath, err)
	}
	return client, nil
}

// callDaemon performs one request against the daemon and decodes the reply into out.
func callDaemon(timeout time.Duration, method string, data, out any) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Call(ctx, method, data, out)
}

func checkOK(resp uds.OKResponse) error {
	if !resp.OK {
		return errors.New(strings.Join(resp.Errors, "; "))
	}
	for _, e := range resp.Errors {
		fmt.Fprintln(os.Stderr, "warning:", e)
	}
	return nil
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if daemon is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var pong uds.PingResponse
		if err := callDaemon(uds.DefaultRequestTimeout, uds.MethodPing, nil, &pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ (rndrwatchd %s)\n", pong.Version)
		}
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rndrwatch %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Daemon ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start daemon in foreground (for debugging)",
	Long:  "Normally the TUI auto-spawns the daemon. Use this to run it manually.",
	RunE: func(_ *cobra.Command, _ []string) error {
		args := []string{"--socket", socketPath, "--settings", settingsPath}
		if daemonStart {
			args = append(args, "--start")
		}
		if daemonLogLevel != "" {
			args = append(args, "--log-level", daemonLogLevel)
		}
		cmd := exec.Command("rndrwatchd", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	},
}

var (
	daemonStart    bool
	daemonLogLevel string
)

func init() {
	daemonCmd.Flags().BoolVar(&daemonStart, "start", false, "start monitoring immediately")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "", "daemon log level")
}

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printStatus(cmd.OutOrStdout(), statusJSON)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func printStatus(w io.Writer, asJSON bool) error {
	var st core.MonitorState
	if err := callDaemon(uds.DefaultRequestTimeout, uds.MethodStatus, nil, &st); err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(w, "Status:      %s\n", st.Status)
	fmt.Fprintf(w, "Log file:    %s\n", st.LogFile)
	fmt.Fprintf(w, "Delay:       %s\n", st.CompletionDelay)
	fmt.Fprintf(w, "Interval:    %s\n", st.CheckInterval)
	if st.Running {
		fmt.Fprintf(w, "Session:     %s\n", st.SessionID)
		fmt.Fprintf(w, "Offset:      %d\n", st.Offset)
		fmt.Fprintf(w, "Cycles:      %d\n", st.Cycles)
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error:  %s\n", st.LastError)
	}
	return nil
}

// --- Start / Stop ---

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start monitoring",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ensureDaemon()
		return monitorAction(cmd.OutOrStdout(), uds.MethodStart)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop monitoring",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return monitorAction(cmd.OutOrStdout(), uds.MethodStop)
	},
}

func monitorAction(w io.Writer, method string) error {
	var st core.MonitorState
	if err := callDaemon(uds.DefaultRequestTimeout, method, nil, &st); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s ✓ %s\n", strings.ToLower(method), st.Status)
	return nil
}

// --- Set ---

var (
	setDelay    int
	setInterval int
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change completion delay and poll interval (seconds)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if setDelay == 0 && setInterval == 0 {
			return errors.New("nothing to set: use --delay and/or --interval")
		}
		var resp uds.OKResponse
		req := uds.SetParamsRequest{CompletionDelay: setDelay, CheckInterval: setInterval}
		if err := callDaemon(uds.DefaultRequestTimeout, uds.MethodSetParams, req, &resp); err != nil {
			return err
		}
		if err := checkOK(resp); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "timing updated ✓")
		return nil
	},
}

func init() {
	setCmd.Flags().IntVar(&setDelay, "delay", 0, fmt.Sprintf("completion delay (%d-%d)", settings.MinCompletionDelay, settings.MaxCompletionDelay))
	setCmd.Flags().IntVar(&setInterval, "interval", 0, fmt.Sprintf("poll interval (%d-%d)", settings.MinCheckInterval, settings.MaxCheckInterval))
}

// --- Topic / popup / testlog ---

var topicCmd = &cobra.Command{
	Use:   "topic <name>",
	Short: "Set the ntfy topic notifications are pushed to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp uds.OKResponse
		if err := callDaemon(uds.DefaultRequestTimeout, uds.MethodSetTopic, uds.SetTopicRequest{Topic: args[0]}, &resp); err != nil {
			return err
		}
		if err := checkOK(resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "topic set to %s ✓\n", args[0])
		return nil
	},
}

var popupCmd = &cobra.Command{
	Use:       "popup on|off",
	Short:     "Use desktop popups instead of ntfy",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		var resp uds.OKResponse
		if err := callDaemon(uds.DefaultRequestTimeout, uds.MethodSetPopup, uds.SetPopupRequest{Enabled: on}, &resp); err != nil {
			return err
		}
		if err := checkOK(resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "popup notifications %s ✓\n", args[0])
		return nil
	},
}

var testlogCmd = &cobra.Command{
	Use:       "testlog on|off",
	Short:     "Watch the test log file instead of the render client log",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		var st core.MonitorState
		if err := callDaemon(uds.DefaultRequestTimeout, uds.MethodSetLogFile, uds.SetLogFileRequest{UseTest: on}, &st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "monitoring log file %s ✓\n", st.LogFile)
		return nil
	},
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// --- Test message ---

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := callDaemon(uds.SendRequestTimeout, uds.MethodSendTest, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "test message sent ✓")
		return nil
	},
}

// --- Logs ---

var (
	logsFollow    bool
	logsFromStart bool
	logsLines     int
	logsPath      string
)

var eventStyle = lipgloss.NewStyle().Bold(true)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the monitored render log",
	Long:  "Without -f, prints the lines the daemon read most recently. With -f, follows the log file directly.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()
		if !logsFollow {
			var recent uds.RecentResponse
			if err := callDaemon(uds.DefaultRequestTimeout, uds.MethodRecent, uds.RecentRequest{Lines: logsLines}, &recent); err != nil {
				return err
			}
			for _, l := range recent.Lines {
				printLogLine(w, l)
			}
			return nil
		}

		path := logsPath
		if path == "" {
			s, err := settings.Load(settingsPath)
			if err != nil {
				return err
			}
			path = s.LogFile()
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		return filetail.Follow(ctx, path, logsFromStart, func(l core.LogLine) {
			printLogLine(w, l)
		})
	},
}

func printLogLine(w io.Writer, l core.LogLine) {
	if l.Event != nil {
		fmt.Fprintln(w, eventStyle.Render("» "+l.Line))
		return
	}
	fmt.Fprintln(w, "  "+l.Line)
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow the log file")
	logsCmd.Flags().BoolVar(&logsFromStart, "from-start", false, "with -f, print the whole file first")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "number of recent lines")
	logsCmd.Flags().StringVar(&logsPath, "path", "", "log file to follow (default from settings)")
}

// --- Autostart ---

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Manage starting rndrwatchd at login",
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Install and enable the systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Install(cmd.Context()); err != nil {
			return err
		}
		if err := persistAutostart(true); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "autostart enabled ✓")
		return nil
	},
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop and remove the systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(cmd.Context()); err != nil {
			return err
		}
		if err := persistAutostart(false); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "autostart disabled ✓")
		return nil
	},
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon service status",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), service.Status(cmd.Context(), socketPath))
	},
}

func init() {
	autostartCmd.AddCommand(autostartEnableCmd)
	autostartCmd.AddCommand(autostartDisableCmd)
	autostartCmd.AddCommand(autostartStatusCmd)
}

// persistAutostart records the autostart choice through the daemon when one
// is running, else directly in the settings file.
func persistAutostart(enabled bool) error {
	var resp uds.OKResponse
	err := callDaemon(uds.DefaultRequestTimeout, uds.MethodSetAutostart, uds.SetAutostartRequest{Enabled: enabled}, &resp)
	if err == nil {
		return checkOK(resp)
	}

	s, err := settings.Load(settingsPath)
	if err != nil {
		return err
	}
	s.AutostartEnabled = enabled
	return settings.Save(s, settingsPath)
}

// --- Settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and create the settings file",
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), settingsPath)
	},
}

var settingsInitForce bool

var settingsInitCmd = &cobra.Command{
	Use:   "init [topic]",
	Short: "Write a settings file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(settingsPath); err == nil && !settingsInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", settingsPath)
		}
		s := settings.Default()
		if len(args) > 0 {
			s.NtfyTopic = args[0]
		}
		if errs := settings.Validate(s); len(errs) > 0 {
			return errs[0]
		}
		if err := settings.Save(s, settingsPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", settingsPath)
		return nil
	},
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a settings file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := settingsPath
		if len(args) > 0 {
			path = args[0]
		}

		s, err := settings.Load(path)
		if err != nil {
			return err
		}

		errs := settings.Validate(s)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (watching %s)\n", path, s.LogFile())
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
		}
		return fmt.Errorf("%s: invalid settings", path)
	},
}

func init() {
	settingsInitCmd.Flags().BoolVar(&settingsInitForce, "force", false, "overwrite an existing file")
	settingsCmd.AddCommand(settingsPathCmd)
	settingsCmd.AddCommand(settingsInitCmd)
	settingsCmd.AddCommand(settingsValidateCmd)
}
