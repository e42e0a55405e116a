package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modoterra/rndrwatch/internal/buildinfo"
	"github.com/modoterra/rndrwatch/pkg/core"
	"github.com/modoterra/rndrwatch/pkg/notify"
	"github.com/modoterra/rndrwatch/pkg/settings"
	"github.com/modoterra/rndrwatch/pkg/transport/uds"
)

// DefaultSendTimeout bounds a single notification delivery.
const DefaultSendTimeout = 10 * time.Second

// Options configures a Daemon beyond its settings.
type Options struct {
	// Desktop overrides the popup notifier. Nil selects the platform default.
	Desktop notify.Notifier
	// SendTimeout bounds each delivery. Zero selects DefaultSendTimeout.
	SendTimeout time.Duration
}

// Daemon is the rndrwatchd process: it owns the settings, the poll loop and
// the socket clients use to control them.
type Daemon struct {
	server     *uds.Server
	loop       *PollLoop
	dispatcher *notify.Dispatcher
	history    *history
	logger     *slog.Logger

	mu       sync.Mutex
	settings *settings.Settings
	runCtx   context.Context
}

// New creates a daemon listening on socketPath and configured from s.
func New(socketPath string, s *settings.Settings, logger *slog.Logger, opts Options) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}

	dispatcher := notify.NewDispatcher(targetOf(s), opts.Desktop)
	loop := NewPollLoop(dispatcher, logger)
	loop.SetSendTimeout(opts.SendTimeout)
	loop.SetParams(s.CompletionDelayDuration(), s.CheckIntervalDuration())
	loop.SetLogFile(s.LogFile())

	d := &Daemon{
		server:     uds.NewServer(socketPath, logger),
		loop:       loop,
		dispatcher: dispatcher,
		history:    newHistory(),
		logger:     logger,
		settings:   s,
		runCtx:     context.Background(),
	}
	d.registerHandlers()
	return d
}

// Run serves clients and forwards monitor events until ctx is cancelled.
// Monitoring is stopped before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.runCtx = ctx
	d.mu.Unlock()

	fwdDone := make(chan struct{})
	go func() {
		defer close(fwdDone)
		d.forwardEvents(ctx)
	}()

	err := d.server.Start(ctx)
	d.loop.Stop()
	<-fwdDone
	return err
}

// Ready is closed once clients can connect.
func (d *Daemon) Ready() <-chan struct{} {
	return d.server.Ready()
}

// Shutdown stops monitoring and closes the socket.
func (d *Daemon) Shutdown() {
	d.loop.Stop()
	d.server.Shutdown()
}

// Server returns the underlying UDS server.
func (d *Daemon) Server() *uds.Server {
	return d.server
}

// Loop returns the daemon's poll loop.
func (d *Daemon) Loop() *PollLoop {
	return d.loop
}

// Settings returns a copy of the current settings.
func (d *Daemon) Settings() settings.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.settings
}

// StartMonitoring starts the poll loop under the daemon's run context.
func (d *Daemon) StartMonitoring() core.MonitorState {
	if !d.dispatcher.Configured() {
		d.logger.Warn("no ntfy topic configured and popups disabled; notifications will be skipped")
	}
	if d.Settings().UseTestLogFile {
		d.ensureTestLog()
	}
	d.mu.Lock()
	ctx := d.runCtx
	d.mu.Unlock()
	return d.loop.Start(ctx)
}

func (d *Daemon) forwardEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.loop.Events():
			var (
				msg uds.Message
				err error
			)
			switch ev.Kind {
			case EventStatus:
				msg, err = uds.NewEvent(uds.EventStatus, ev.State)
			case EventNotification:
				d.history.addNotification(ev.Notification)
				msg, err = uds.NewEvent(uds.EventNotification, ev.Notification)
			case EventLine:
				d.history.addLine(ev.Line)
				msg, err = uds.NewEvent(uds.EventLogsLine, ev.Line)
			default:
				continue
			}
			if err != nil {
				d.logger.Error("encode event", "err", err)
				continue
			}
			d.server.Broadcast(msg)
		}
	}
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
	d.server.Handle(uds.MethodStart, d.handleStart)
	d.server.Handle(uds.MethodStop, d.handleStop)
	d.server.Handle(uds.MethodSetParams, d.handleSetParams)
	d.server.Handle(uds.MethodSetLogFile, d.handleSetLogFile)
	d.server.Handle(uds.MethodSetTopic, d.handleSetTopic)
	d.server.Handle(uds.MethodSetPopup, d.handleSetPopup)
	d.server.Handle(uds.MethodSendTest, d.handleSendTest)
	d.server.Handle(uds.MethodSettings, d.handleSettings)
	d.server.Handle(uds.MethodSetAutostart, d.handleSetAutostart)
	d.server.Handle(uds.MethodRecent, d.handleRecent)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Version: buildinfo.Version}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ uds.Message) (any, error) {
	return d.loop.State(), nil
}

func (d *Daemon) handleStart(_ context.Context, _ uds.Message) (any, error) {
	return d.StartMonitoring(), nil
}

func (d *Daemon) handleStop(_ context.Context, _ uds.Message) (any, error) {
	return d.loop.Stop(), nil
}

func (d *Daemon) handleSetParams(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SetParamsRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	cur := d.Settings()
	delay, interval := cur.CompletionDelay, cur.CheckInterval
	if req.CompletionDelay != 0 {
		delay = req.CompletionDelay
	}
	if req.CheckInterval != 0 {
		interval = req.CheckInterval
	}
	if err := settings.ValidateParams(delay, interval); err != nil {
		return uds.OKResponse{OK: false, Errors: []string{err.Error()}}, nil
	}

	resp := d.update(func(s *settings.Settings) {
		s.CompletionDelay = delay
		s.CheckInterval = interval
	})
	if resp.OK {
		d.loop.SetParams(time.Duration(delay)*time.Second, time.Duration(interval)*time.Second)
		d.logger.Info("parameters changed", "completion_delay", delay, "check_interval", interval)
	}
	return resp, nil
}

func (d *Daemon) handleSetLogFile(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SetLogFileRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	resp := d.update(func(s *settings.Settings) {
		s.UseTestLogFile = req.UseTest
	})
	if !resp.OK {
		return resp, nil
	}
	if req.UseTest {
		d.ensureTestLog()
	}
	path := d.Settings().LogFile()
	d.loop.SetLogFile(path)
	d.logger.Info("log file selected", "path", path, "test", req.UseTest)
	return d.loop.State(), nil
}

func (d *Daemon) handleSetTopic(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SetTopicRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	resp := d.update(func(s *settings.Settings) {
		s.NtfyTopic = req.Topic
	})
	if resp.OK {
		d.logger.Info("ntfy topic changed", "topic", req.Topic)
	}
	return resp, nil
}

func (d *Daemon) handleSetPopup(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SetPopupRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return d.update(func(s *settings.Settings) {
		s.PopupNotifications = req.Enabled
	}), nil
}

func (d *Daemon) handleSetAutostart(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SetAutostartRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return d.update(func(s *settings.Settings) {
		s.AutostartEnabled = req.Enabled
	}), nil
}

func (d *Daemon) handleSendTest(ctx context.Context, _ uds.Message) (any, error) {
	if !d.dispatcher.Configured() {
		return nil, notify.ErrNoTarget
	}
	n := core.NewNotification(core.NotifyTest, time.Now())

	ctx, cancel := context.WithTimeout(ctx, DefaultSendTimeout)
	defer cancel()
	if err := d.dispatcher.Send(ctx, n.Message); err != nil {
		d.logger.Error("test notification failed", "err", err)
		return nil, err
	}

	d.history.addNotification(n)
	if evt, err := uds.NewEvent(uds.EventNotification, n); err == nil {
		d.server.Broadcast(evt)
	}
	return uds.OKResponse{OK: true}, nil
}

func (d *Daemon) handleSettings(_ context.Context, _ uds.Message) (any, error) {
	return d.Settings(), nil
}

func (d *Daemon) handleRecent(_ context.Context, msg uds.Message) (any, error) {
	var req uds.RecentRequest
	if len(msg.Data) > 0 {
		if err := msg.UnmarshalData(&req); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
	}
	lines, notes := d.history.snapshot(req.Lines)
	return uds.RecentResponse{Lines: lines, Notifications: notes}, nil
}

// update applies fn to a copy of the settings, validates and persists the
// result, and refreshes the notification target. On validation failure the
// current settings are kept.
func (d *Daemon) update(fn func(*settings.Settings)) uds.OKResponse {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := *d.settings
	fn(&next)
	if errs := settings.Validate(&next); len(errs) > 0 {
		strs := make([]string, len(errs))
		for i, e := range errs {
			strs[i] = e.Error()
		}
		return uds.OKResponse{OK: false, Errors: strs}
	}

	*d.settings = next
	d.dispatcher.SetTarget(targetOf(d.settings))

	if d.settings.FilePath != "" {
		if err := settings.Save(d.settings, d.settings.FilePath); err != nil {
			d.logger.Error("save settings", "path", d.settings.FilePath, "err", err)
			return uds.OKResponse{OK: true, Errors: []string{err.Error()}}
		}
	}
	return uds.OKResponse{OK: true}
}

// ensureTestLog creates an empty test log if none exists yet.
func (d *Daemon) ensureTestLog() {
	path := d.Settings().TestLogFile
	if _, err := os.Stat(path); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		d.logger.Warn("create test log directory", "path", path, "err", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		d.logger.Warn("create test log", "path", path, "err", err)
		return
	}
	f.Close()
	d.logger.Info("created test log", "path", path)
}

func targetOf(s *settings.Settings) notify.Target {
	return notify.Target{
		Server: s.NtfyServer,
		Topic:  s.NtfyTopic,
		Popup:  s.PopupNotifications,
	}
}
