package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/modoterra/rndrwatch/pkg/core"
	"github.com/modoterra/rndrwatch/pkg/extract"
	"github.com/modoterra/rndrwatch/pkg/filetail"
	"github.com/modoterra/rndrwatch/pkg/jobstate"
	"github.com/modoterra/rndrwatch/pkg/notify"
)

// Defaults applied until SetParams is called.
const (
	DefaultCompletionDelay = jobstate.DefaultCompletionDelay
	DefaultCheckInterval   = 30 * time.Second

	// maxLinesPerEvent bounds how many lines of one read reach clients.
	maxLinesPerEvent = 200
)

// EventKind identifies what a PollLoop event carries.
type EventKind int

const (
	EventStatus EventKind = iota
	EventNotification
	EventLine
)

// Event is emitted by the poll loop for presentation layers to consume.
type Event struct {
	Kind         EventKind
	State        core.MonitorState
	Notification core.Notification
	Line         core.LogLine
}

// session is the state owned by one Idle→Running→Idle span.
type session struct {
	id      string
	cursor  core.TailCursor
	tracker *jobstate.Tracker
}

func newSession(path string, delay time.Duration) *session {
	return &session{
		id:      uuid.NewString(),
		cursor:  core.TailCursor{Path: path},
		tracker: jobstate.New(delay),
	}
}

// PollLoop tails the render log on an interval, infers job transitions and
// dispatches notifications. It is either Idle or Running.
type PollLoop struct {
	tailer   *filetail.Tailer
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	events   chan Event

	// Tunables read at the top of every cycle.
	delay       atomic.Int64
	interval    atomic.Int64
	sendTimeout atomic.Int64
	logFile     atomic.Pointer[string]

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	stateMu sync.RWMutex
	state   core.MonitorState
}

// NewPollLoop creates an idle poll loop delivering through notifier.
func NewPollLoop(notifier notify.Notifier, logger *slog.Logger) *PollLoop {
	if logger == nil {
		logger = slog.Default()
	}
	pl := &PollLoop{
		tailer:   filetail.New(logger),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		events:   make(chan Event, 256),
	}
	pl.delay.Store(int64(DefaultCompletionDelay))
	pl.interval.Store(int64(DefaultCheckInterval))
	empty := ""
	pl.logFile.Store(&empty)
	pl.state = core.MonitorState{
		Status:          core.StatusIdle,
		CompletionDelay: DefaultCompletionDelay,
		CheckInterval:   DefaultCheckInterval,
	}
	return pl
}

// Events returns the channel on which status changes, notifications and log
// lines are published. Events are dropped if the consumer falls behind.
func (pl *PollLoop) Events() <-chan Event {
	return pl.events
}

// SetParams changes the completion delay and poll interval. Non-positive
// values leave the current setting unchanged. Takes effect next cycle.
func (pl *PollLoop) SetParams(delay, interval time.Duration) {
	if delay > 0 {
		pl.delay.Store(int64(delay))
	}
	if interval > 0 {
		pl.interval.Store(int64(interval))
	}
	pl.updateState(func(s *core.MonitorState) {
		s.CompletionDelay = pl.CompletionDelay()
		s.CheckInterval = pl.CheckInterval()
	})
}

// CompletionDelay returns the current completion delay.
func (pl *PollLoop) CompletionDelay() time.Duration {
	return time.Duration(pl.delay.Load())
}

// CheckInterval returns the current poll interval.
func (pl *PollLoop) CheckInterval() time.Duration {
	return time.Duration(pl.interval.Load())
}

// SetSendTimeout bounds each notification delivery. Zero means no bound.
func (pl *PollLoop) SetSendTimeout(d time.Duration) {
	pl.sendTimeout.Store(int64(d))
}

// SetLogFile switches the watched file. The cursor restarts at offset 0 on
// the next cycle; deduplication and first-cycle state are kept.
func (pl *PollLoop) SetLogFile(path string) {
	pl.logFile.Store(&path)
	pl.updateState(func(s *core.MonitorState) {
		if s.LogFile != path {
			s.LogFile = path
			s.Offset = 0
		}
	})
}

// LogFile returns the watched file path.
func (pl *PollLoop) LogFile() string {
	return *pl.logFile.Load()
}

// State returns a snapshot of the loop's state.
func (pl *PollLoop) State() core.MonitorState {
	pl.stateMu.RLock()
	defer pl.stateMu.RUnlock()
	return pl.state
}

// Running reports whether the loop is in the Running state.
func (pl *PollLoop) Running() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.running
}

// Start transitions Idle→Running with a fresh session: job state, the
// dedup set and the cursor are all reset. Starting a running loop is a no-op.
func (pl *PollLoop) Start(ctx context.Context) core.MonitorState {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.running {
		return pl.State()
	}

	s := newSession(pl.LogFile(), pl.CompletionDelay())

	runCtx, cancel := context.WithCancel(ctx)
	pl.cancel = cancel
	pl.done = make(chan struct{})
	pl.running = true

	pl.updateState(func(st *core.MonitorState) {
		st.Running = true
		st.SessionID = s.id
		st.Status = core.StatusMonitoring
		st.LogFile = s.cursor.Path
		st.Offset = 0
		st.LastError = ""
		st.Cycles = 0
	})
	pl.logger.Info("monitoring started", "session", s.id, "path", s.cursor.Path)

	go pl.run(runCtx, s, pl.done)
	return pl.State()
}

// Stop transitions Running→Idle. A cycle in progress is allowed to finish;
// Stop returns once it has. Stopping an idle loop is a no-op.
func (pl *PollLoop) Stop() core.MonitorState {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if !pl.running {
		return pl.State()
	}
	pl.running = false
	pl.cancel()
	<-pl.done

	pl.updateState(func(st *core.MonitorState) {
		st.Running = false
		st.Status = core.StatusIdle
	})
	pl.logger.Info("monitoring stopped")
	return pl.State()
}

func (pl *PollLoop) run(ctx context.Context, s *session, done chan struct{}) {
	defer close(done)

	for {
		// The cycle itself is not interrupted by Stop.
		pl.cycle(context.WithoutCancel(ctx), s)

		timer := time.NewTimer(pl.CheckInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle performs one read → extract → track → notify pass.
func (pl *PollLoop) cycle(ctx context.Context, s *session) {
	now := pl.now()
	s.tracker.SetCompletionDelay(pl.CompletionDelay())
	if path := pl.LogFile(); path != s.cursor.Path {
		pl.logger.Info("log file changed", "from", s.cursor.Path, "to", path)
		s.cursor = core.TailCursor{Path: path}
	}

	// Status sticks until something newer happens.
	prev := pl.State()
	status, lastErr := prev.Status, prev.LastError
	var notes []core.Notification

	batch, err := pl.tailer.Poll(s.cursor)
	if err != nil {
		status = core.StatusReadError
		lastErr = err.Error()
		pl.logger.Warn("read log file", "path", s.cursor.Path, "err", err)
	} else {
		if status == core.StatusReadError {
			status, lastErr = core.StatusMonitoring, ""
		}
		s.cursor = batch.Cursor
		lines := batch.Lines
		if len(lines) > maxLinesPerEvent {
			lines = lines[len(lines)-maxLinesPerEvent:]
		}
		skip := len(batch.Lines) - len(lines)
		for i, line := range batch.Lines {
			ev, ok := extract.Extract(line)
			if ok {
				pl.logger.Debug("job event", "event", ev.String())
				notes = append(notes, s.tracker.Apply(ev, now)...)
			}
			if i < skip {
				continue
			}
			ll := core.LogLine{Path: s.cursor.Path, TsUnixMs: now.UnixMilli(), Line: line}
			if ok {
				ll.Event = &ev
			}
			pl.emit(Event{Kind: EventLine, Line: ll})
		}
		if batch.Found {
			s.tracker.EndCycle()
		}
	}

	notes = append(notes, s.tracker.Tick(now)...)

	for _, n := range notes {
		status, lastErr = n.Kind.Status(), ""
		if dispatchStatus, derr := pl.dispatch(ctx, n); derr != nil {
			status = dispatchStatus
			lastErr = derr.Error()
		}
	}

	pl.updateState(func(st *core.MonitorState) {
		st.Status = status
		st.LastError = lastErr
		st.LogFile = s.cursor.Path
		st.Offset = s.cursor.Offset
		st.LastCycle = now
		st.Cycles++
	})
}

// dispatch publishes n and delivers it. Delivery failures are reported but
// never retried and never affect job state.
func (pl *PollLoop) dispatch(ctx context.Context, n core.Notification) (core.Status, error) {
	pl.emit(Event{Kind: EventNotification, Notification: n})
	pl.logger.Info("notification", "kind", n.Kind, "hash", n.Hash)

	if pl.notifier == nil {
		return "", nil
	}
	if t := time.Duration(pl.sendTimeout.Load()); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	err := pl.notifier.Send(ctx, n.Message)
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, notify.ErrNoTarget):
		pl.logger.Warn("notification skipped", "kind", n.Kind, "err", err)
		return core.StatusNoTarget, err
	default:
		pl.logger.Error("notification delivery failed", "kind", n.Kind, "err", err)
		return core.StatusNotifyError, err
	}
}

func (pl *PollLoop) updateState(fn func(*core.MonitorState)) {
	pl.stateMu.Lock()
	fn(&pl.state)
	st := pl.state
	pl.stateMu.Unlock()
	pl.emit(Event{Kind: EventStatus, State: st})
}

func (pl *PollLoop) emit(e Event) {
	select {
	case pl.events <- e:
	default:
	}
}
