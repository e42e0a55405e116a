package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/rndrwatch/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusStopped = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = statusFailed

	eventLineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	if a.mode == ModeEditor && a.editor != nil {
		editorView := a.editor.View(a.width - 4)
		return paneStyle.Width(a.width - 4).Height(a.height - 2).Render(editorView)
	}

	statusBarH := 2
	logPaneH := max(a.height/3, 5)
	mainH := a.height - logPaneH - statusBarH - 4
	statusW := a.width*3/5 - 2
	notesW := a.width - statusW - 4

	status := a.paneBox(PaneStatus, " RNDR Monitor ", a.renderStatus(statusW), statusW, mainH)
	notes := a.paneBox(PaneNotifications, " Notifications ", a.renderNotifications(notesW, mainH), notesW, mainH)
	topRow := lipgloss.JoinHorizontal(lipgloss.Top, status, notes)

	logs := a.paneBox(PaneLogs, a.logTitle(), a.renderLogs(a.width-4, logPaneH), a.width-4, logPaneH)

	return lipgloss.JoinVertical(lipgloss.Left, topRow, logs, a.renderStatusBar())
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderStatus(w int) string {
	if !a.connected {
		return statusFailed.Render("daemon not connected") + "\n" + dimStyle.Render(a.socketPath)
	}

	st := a.state
	var b strings.Builder
	fmt.Fprintf(&b, "Status:    %s\n", colorStatus(st.Status))
	fmt.Fprintf(&b, "Log file:  %s\n", truncate(st.LogFile, w-11))
	if a.settings.UseTestLogFile {
		fmt.Fprintf(&b, "           %s\n", dimStyle.Render("(test log)"))
	}
	fmt.Fprintf(&b, "Delay:     %s\n", formatDuration(st.CompletionDelay))
	fmt.Fprintf(&b, "Interval:  %s\n", formatDuration(st.CheckInterval))
	fmt.Fprintf(&b, "Notify:    %s\n", a.targetDescription())
	if st.Running {
		fmt.Fprintf(&b, "Session:   %s\n", dimStyle.Render(shortID(st.SessionID)))
		fmt.Fprintf(&b, "Read:      %s in %d cycles\n", formatBytes(st.Offset), st.Cycles)
		if !st.LastCycle.IsZero() {
			fmt.Fprintf(&b, "Checked:   %s\n", a.since(st.LastCycle))
		}
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "Error:     %s\n", errorStyle.Render(truncate(st.LastError, w-11)))
	}
	return b.String()
}

func (a App) targetDescription() string {
	switch {
	case a.settings.PopupNotifications:
		return "desktop popup"
	case a.settings.NtfyTopic != "":
		return strings.TrimRight(a.settings.NtfyServer, "/") + "/" + a.settings.NtfyTopic
	default:
		return statusWarn.Render("no topic set (press e)")
	}
}

func (a App) renderNotifications(w, h int) string {
	if len(a.notifications) == 0 {
		return dimStyle.Render("no notifications yet")
	}

	var b strings.Builder
	maxVisible := max(h-2, 1)
	for i := len(a.notifications) - 1; i >= 0 && len(a.notifications)-i <= maxVisible; i-- {
		n := a.notifications[i]
		ts := dimStyle.Render(n.At.Local().Format("15:04:05"))
		b.WriteString(ts + " " + truncate(n.Message, w-10) + "\n")
	}
	return b.String()
}

func (a App) renderLogs(w, h int) string {
	lines := a.filteredLogs()
	if len(lines) == 0 {
		return dimStyle.Render("no log output")
	}

	start := 0
	if len(lines) > h-1 {
		start = len(lines) - h + 1
	}

	var b strings.Builder
	for i := start; i < len(lines); i++ {
		line := truncate(lines[i].Line, w)
		if lines[i].Event != nil {
			line = eventLineStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if a.mode == ModeSearch {
		b.WriteString(a.search.View())
	}
	return b.String()
}

func (a App) logTitle() string {
	title := " Log "
	if a.logPaused {
		title += dimStyle.Render("[PAUSED]") + " "
	}
	if q := a.search.Value(); q != "" && a.mode != ModeSearch {
		title += dimStyle.Render("[/"+q+"]") + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "s:start/stop t:test log +/-:delay [/]:interval e:settings m:test msg p:popup /:filter q:quit"
	if a.mode == ModeSearch {
		right = "enter:apply esc:cancel"
	}

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func (a App) since(t time.Time) string {
	now := a.now
	if now.IsZero() {
		now = time.Now()
	}
	d := now.Sub(t).Truncate(time.Second)
	if d < time.Second {
		return "just now"
	}
	return formatDuration(d) + " ago"
}

func colorStatus(status core.Status) string {
	s := string(status)
	switch status {
	case core.StatusMonitoring, core.StatusJobStarted, core.StatusJobCompleted:
		return statusRunning.Render(s)
	case core.StatusIdle:
		return statusStopped.Render(s)
	case core.StatusJobFailed:
		return statusFailed.Render(s)
	case core.StatusReadError, core.StatusNotifyError, core.StatusNoTarget:
		return statusWarn.Render(s)
	default:
		return dimStyle.Render(s)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(d time.Duration) string {
	sec := int64(d / time.Second)
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	if sec < 3600 {
		return fmt.Sprintf("%dm%ds", sec/60, sec%60)
	}
	return fmt.Sprintf("%dh%dm", sec/3600, (sec%3600)/60)
}
