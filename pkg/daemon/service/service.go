// Package service manages the rndrwatchd systemd user service unit.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitName is the systemd user unit installed for autostart.
const UnitName = "rndrwatchd.service"

// BinaryName is the daemon executable the unit runs.
const BinaryName = "rndrwatchd"

// UnitContents returns the systemd unit file contents for the given binary path.
// The daemon starts monitoring immediately and reports readiness via sd_notify.
func UnitContents(binaryPath string) string {
	return fmt.Sprintf(`[Unit]
Description=RNDR render log monitor
After=network-online.target

[Service]
Type=notify
ExecStart=%s --start
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`, binaryPath)
}

// UnitPath returns the path to the systemd user unit file.
func UnitPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(configDir, "systemd", "user", UnitName), nil
}

// Installed reports whether the unit file exists.
func Installed() bool {
	unitPath, err := UnitPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(unitPath)
	return err == nil
}

// Install writes the unit file, reloads systemd, and enables and starts the
// service.
func Install(ctx context.Context) error {
	binaryPath, err := exec.LookPath(BinaryName)
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", BinaryName, err)
	}
	binaryPath, err = filepath.Abs(binaryPath)
	if err != nil {
		return fmt.Errorf("cannot resolve %s path: %w", BinaryName, err)
	}

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(UnitContents(binaryPath)), 0o644); err != nil {
		return fmt.Errorf("cannot write unit file: %w", err)
	}

	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		if err := systemctl("daemon-reload"); err != nil {
			return err
		}
		return systemctl("enable", "--now", UnitName)
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("systemd reload: %w", err)
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{UnitName}, false, true); err != nil {
		return fmt.Errorf("enable %s: %w", UnitName, err)
	}
	return waitJob(ctx, "start", func(ch chan<- string) (int, error) {
		return conn.StartUnitContext(ctx, UnitName, "replace", ch)
	})
}

// Uninstall stops and disables the service, removes the unit file, and
// reloads systemd.
func Uninstall(ctx context.Context) error {
	unitPath, err := UnitPath()
	if err != nil {
		return err
	}

	conn, connErr := dbus.NewUserConnectionContext(ctx)
	if connErr == nil {
		defer conn.Close()
		// Stopping or disabling a unit that is not loaded is not an error here.
		_ = waitJob(ctx, "stop", func(ch chan<- string) (int, error) {
			return conn.StopUnitContext(ctx, UnitName, "replace", ch)
		})
		_, _ = conn.DisableUnitFilesContext(ctx, []string{UnitName}, false)
	} else {
		_ = systemctl("stop", UnitName)
		_ = systemctl("disable", UnitName)
	}

	if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot remove unit file: %w", err)
	}

	if connErr == nil {
		if err := conn.ReloadContext(ctx); err != nil {
			return fmt.Errorf("systemd reload: %w", err)
		}
		return nil
	}
	return systemctl("daemon-reload")
}

// UnitState describes the installed unit as seen by systemd.
type UnitState struct {
	ActiveState string
	SubState    string
	MainPID     uint32
}

func (u UnitState) String() string {
	s := u.ActiveState
	if u.SubState != "" {
		s += " (" + u.SubState + ")"
	}
	if u.MainPID > 0 {
		s += fmt.Sprintf(", pid %d", u.MainPID)
	}
	return s
}

// QueryUnit asks the user systemd instance for the unit's state.
func QueryUnit(ctx context.Context) (UnitState, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return UnitState{}, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, []string{UnitName})
	if err != nil {
		return UnitState{}, fmt.Errorf("list units: %w", err)
	}
	if len(units) == 0 {
		return UnitState{}, fmt.Errorf("unit %s not loaded", UnitName)
	}

	state := UnitState{ActiveState: units[0].ActiveState, SubState: units[0].SubState}
	if state.ActiveState == "active" {
		props, err := conn.GetUnitTypePropertiesContext(ctx, UnitName, "Service")
		if err == nil {
			if pid, ok := props["MainPID"].(uint32); ok {
				state.MainPID = pid
			}
		}
	}
	return state, nil
}

// Status returns a human-readable status string.
func Status(ctx context.Context, socketPath string) string {
	var lines []string

	if _, err := os.Stat(socketPath); err == nil {
		lines = append(lines, "socket: active ("+socketPath+")")
	} else {
		lines = append(lines, "socket: inactive ("+socketPath+")")
	}

	if !Installed() {
		lines = append(lines, "systemd user service: not installed")
		return strings.Join(lines, "\n")
	}

	state := "unknown"
	if us, err := QueryUnit(ctx); err == nil {
		state = us.String()
	} else if out, runErr := exec.CommandContext(ctx, "systemctl", "--user", "is-active", UnitName).Output(); runErr == nil || len(out) > 0 {
		state = strings.TrimSpace(string(out))
	}
	lines = append(lines, "systemd user service: "+state)
	return strings.Join(lines, "\n")
}

// waitJob runs a systemd job and waits for its result.
func waitJob(ctx context.Context, action string, submit func(chan<- string) (int, error)) error {
	ch := make(chan string, 1)
	if _, err := submit(ch); err != nil {
		return fmt.Errorf("systemd %s %s: %w", action, UnitName, err)
	}
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("systemd %s %s: job result %q", action, UnitName, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl --user %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
