package model

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/rndrwatch/pkg/core"
	"github.com/modoterra/rndrwatch/pkg/settings"
	"github.com/modoterra/rndrwatch/pkg/transport/uds"
)

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneStatus Pane = iota
	PaneNotifications
	PaneLogs
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeEditor
)

// Steps used by the +/- and [/] keys, in seconds.
const (
	delayStep    = 30
	intervalStep = 5
)

const (
	maxLogLines      = 500
	maxNotifications = 50
	reconnectDelay   = 2 * time.Second
)

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	events     <-chan uds.Message
	socketPath string
	connected  bool

	// State
	state         core.MonitorState
	settings      settings.Settings
	notifications []core.Notification
	logLines      []core.LogLine
	logPaused     bool
	now           time.Time

	// UI
	activePane Pane
	mode       Mode
	search     textinput.Model
	width      int
	height     int

	editor *EditorModel

	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	si := textinput.New()
	si.Placeholder = "filter log..."
	si.CharLimit = 64

	return App{
		socketPath: socketPath,
		search:     si,
		activePane: PaneStatus,
		mode:       ModeNormal,
		state:      core.MonitorState{Status: core.StatusIdle},
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tickCmd(),
		tea.SetWindowTitle("RNDR Monitor"),
	)
}

// tickMsg refreshes relative times.
type tickMsg time.Time

// connectedMsg indicates successful daemon connection.
type connectedMsg struct {
	client *uds.Client
	events <-chan uds.Message
}

// disconnectedMsg reports that the daemon connection ended.
type disconnectedMsg struct{}

// reconnectMsg asks for another connection attempt.
type reconnectMsg struct{}

// eventMsg carries a server-pushed event.
type eventMsg uds.Message

// stateMsg carries a monitor state snapshot.
type stateMsg core.MonitorState

// settingsMsg carries the daemon's current settings.
type settingsMsg settings.Settings

// recentMsg carries buffered history fetched on connect.
type recentMsg uds.RecentResponse

// okMsg carries the result of a settings change.
type okMsg struct {
	what string
	resp uds.OKResponse
}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

// resultMsg carries a one-line result to display.
type resultMsg struct{ msg string }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		return connectedMsg{client: client, events: client.Events(256)}
	}
}

func reconnectCmd() tea.Cmd {
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitEventCmd delivers the next pushed event.
func waitEventCmd(events <-chan uds.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return disconnectedMsg{}
		}
		return eventMsg(msg)
	}
}

func call(client *uds.Client, timeout time.Duration, method string, data, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Call(ctx, method, data, out)
}

func fetchStateCmd(client *uds.Client, method string, data any) tea.Cmd {
	return func() tea.Msg {
		var st core.MonitorState
		if err := call(client, uds.DefaultRequestTimeout, method, data, &st); err != nil {
			return errorMsg{err}
		}
		return stateMsg(st)
	}
}

func fetchSettingsCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		var s settings.Settings
		if err := call(client, uds.DefaultRequestTimeout, uds.MethodSettings, nil, &s); err != nil {
			return errorMsg{err}
		}
		return settingsMsg(s)
	}
}

func fetchRecentCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		var r uds.RecentResponse
		if err := call(client, uds.DefaultRequestTimeout, uds.MethodRecent, uds.RecentRequest{Lines: maxLogLines}, &r); err != nil {
			return errorMsg{err}
		}
		return recentMsg(r)
	}
}

func updateCmd(client *uds.Client, what, method string, data any) tea.Cmd {
	return func() tea.Msg {
		var resp uds.OKResponse
		if err := call(client, uds.DefaultRequestTimeout, method, data, &resp); err != nil {
			return errorMsg{err}
		}
		return okMsg{what: what, resp: resp}
	}
}

func sendTestCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		if err := call(client, uds.SendRequestTimeout, uds.MethodSendTest, nil, nil); err != nil {
			return errorMsg{err}
		}
		return resultMsg{msg: "test message sent"}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tickMsg:
		a.now = time.Time(msg)
		return a, tickCmd()

	case connectedMsg:
		a.client = msg.client
		a.events = msg.events
		a.connected = true
		a.statusMsg = "connected"
		return a, tea.Batch(
			waitEventCmd(a.events),
			fetchStateCmd(a.client, uds.MethodStatus, nil),
			fetchSettingsCmd(a.client),
			fetchRecentCmd(a.client),
		)

	case disconnectedMsg:
		a.client = nil
		a.events = nil
		a.connected = false
		a.statusMsg = "daemon connection lost, retrying..."
		return a, reconnectCmd()

	case reconnectMsg:
		if a.connected {
			return a, nil
		}
		return a, connectCmd(a.socketPath)

	case eventMsg:
		a = a.applyEvent(uds.Message(msg))
		if a.events != nil {
			return a, waitEventCmd(a.events)
		}
		return a, nil

	case stateMsg:
		a.state = core.MonitorState(msg)
		return a, nil

	case settingsMsg:
		a.settings = settings.Settings(msg)
		return a, nil

	case recentMsg:
		a.logLines = append(msg.Lines, a.logLines...)
		a.logLines = tail(a.logLines, maxLogLines)
		a.notifications = tail(append(msg.Notifications, a.notifications...), maxNotifications)
		return a, nil

	case okMsg:
		if !msg.resp.OK {
			a.statusMsg = "error: " + strings.Join(msg.resp.Errors, "; ")
			return a, nil
		}
		a.statusMsg = msg.what + " updated"
		if len(msg.resp.Errors) > 0 {
			a.statusMsg += " (not saved: " + strings.Join(msg.resp.Errors, "; ") + ")"
		}
		if a.client != nil {
			return a, tea.Batch(fetchSettingsCmd(a.client), fetchStateCmd(a.client, uds.MethodStatus, nil))
		}
		return a, nil

	case resultMsg:
		a.statusMsg = msg.msg
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		if !a.connected {
			return a, reconnectCmd()
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) applyEvent(msg uds.Message) App {
	switch msg.Method {
	case uds.EventStatus:
		var st core.MonitorState
		if err := msg.UnmarshalData(&st); err == nil {
			a.state = st
		}
	case uds.EventNotification:
		var n core.Notification
		if err := msg.UnmarshalData(&n); err == nil {
			a.notifications = tail(append(a.notifications, n), maxNotifications)
			a.statusMsg = n.Message
		}
	case uds.EventLogsLine:
		if a.logPaused {
			return a
		}
		var l core.LogLine
		if err := msg.UnmarshalData(&l); err == nil {
			a.logLines = tail(append(a.logLines, l), maxLogLines)
		}
	}
	return a
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			return a, nil
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			return a, cmd
		}
	}

	if a.mode == ModeEditor && a.editor != nil {
		return a.editor.HandleKey(a, msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "tab":
		a.activePane = (a.activePane + 1) % 3

	case "l":
		a.activePane = PaneLogs

	case "/":
		a.mode = ModeSearch
		a.activePane = PaneLogs
		a.search.Focus()
		return a, textinput.Blink

	case " ":
		if a.activePane == PaneLogs {
			a.logPaused = !a.logPaused
			return a, nil
		}
		return a.toggleMonitoring()

	case "s":
		return a.toggleMonitoring()

	case "t":
		if a.client == nil {
			return a.notConnected()
		}
		return a, fetchStateCmd(a.client, uds.MethodSetLogFile, uds.SetLogFileRequest{UseTest: !a.settings.UseTestLogFile})

	case "+", "=":
		return a.setParams(clamp(a.settings.CompletionDelay+delayStep, settings.MinCompletionDelay, settings.MaxCompletionDelay), 0)
	case "-":
		return a.setParams(clamp(a.settings.CompletionDelay-delayStep, settings.MinCompletionDelay, settings.MaxCompletionDelay), 0)
	case "]":
		return a.setParams(0, clamp(a.settings.CheckInterval+intervalStep, settings.MinCheckInterval, settings.MaxCheckInterval))
	case "[":
		return a.setParams(0, clamp(a.settings.CheckInterval-intervalStep, settings.MinCheckInterval, settings.MaxCheckInterval))

	case "m":
		if a.client == nil {
			return a.notConnected()
		}
		a.statusMsg = "sending test message..."
		return a, sendTestCmd(a.client)

	case "p":
		if a.client == nil {
			return a.notConnected()
		}
		return a, updateCmd(a.client, "popup", uds.MethodSetPopup, uds.SetPopupRequest{Enabled: !a.settings.PopupNotifications})

	case "e", "c":
		a.editor = NewSettingsEditor(a.settings)
		a.mode = ModeEditor
		return a, textinput.Blink
	}

	return a, nil
}

func (a App) toggleMonitoring() (tea.Model, tea.Cmd) {
	if a.client == nil {
		return a.notConnected()
	}
	if a.state.Running {
		a.statusMsg = "stopping..."
		return a, fetchStateCmd(a.client, uds.MethodStop, nil)
	}
	a.statusMsg = "starting..."
	return a, fetchStateCmd(a.client, uds.MethodStart, nil)
}

func (a App) setParams(delay, interval int) (tea.Model, tea.Cmd) {
	if a.client == nil {
		return a.notConnected()
	}
	return a, updateCmd(a.client, "timing", uds.MethodSetParams, uds.SetParamsRequest{CompletionDelay: delay, CheckInterval: interval})
}

func (a App) notConnected() (tea.Model, tea.Cmd) {
	a.statusMsg = "not connected"
	return a, nil
}

func (a App) filteredLogs() []core.LogLine {
	q := strings.ToLower(a.search.Value())
	if q == "" {
		return a.logLines
	}
	var filtered []core.LogLine
	for _, l := range a.logLines {
		if strings.Contains(strings.ToLower(l.Line), q) {
			filtered = append(filtered, l)
		}
	}
	return filtered
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func tail[T any](s []T, n int) []T {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
