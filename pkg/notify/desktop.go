package notify

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Desktop shows a local notification using the platform's native tool:
// notify-send on Linux, osascript on macOS and a PowerShell toast on Windows.
type Desktop struct {
	goos      string
	available bool
	// run is replaced in tests.
	run func(ctx context.Context, name string, args ...string) error
}

// NewDesktop creates a desktop notifier for the current platform.
func NewDesktop() *Desktop {
	d := &Desktop{goos: runtime.GOOS, run: runCommand}
	d.available = d.detect()
	return d
}

// Available reports whether the platform tool was found.
func (d *Desktop) Available() bool {
	return d.available
}

// Send shows message. It fails when no notification tool is available so the
// caller can report that the popup never appeared.
func (d *Desktop) Send(ctx context.Context, message string) error {
	if !d.available {
		return fmt.Errorf("desktop notifications unavailable on %s", d.goos)
	}
	name, args := d.command(message)
	if err := d.run(ctx, name, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (d *Desktop) detect() bool {
	switch d.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return toolAvailable("notify-send") && hasDisplay()
	case "darwin":
		return toolAvailable("osascript")
	case "windows":
		return toolAvailable("powershell")
	default:
		return false
	}
}

func (d *Desktop) command(message string) (string, []string) {
	switch d.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", message, Title)
		return "osascript", []string{"-e", script}
	case "windows":
		return "powershell", []string{"-NoProfile", "-Command", windowsToast(message)}
	default:
		return "notify-send", []string{"-a", Title, Title, message}
	}
}

func windowsToast(message string) string {
	esc := strings.ReplaceAll(message, "'", "''")
	return `[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null;` +
		`$t = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02);` +
		`$x = $t.GetElementsByTagName('text');` +
		`$x.Item(0).AppendChild($t.CreateTextNode('` + Title + `')) | Out-Null;` +
		`$x.Item(1).AppendChild($t.CreateTextNode('` + esc + `')) | Out-Null;` +
		`[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('` + Title + `').Show([Windows.UI.Notifications.ToastNotification]::new($t))`
}

func toolAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func hasDisplay() bool {
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
