package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/rndrwatch/pkg/settings"
	"github.com/modoterra/rndrwatch/pkg/transport/uds"
)

// EditorField is a named text input in the editor form.
type EditorField struct {
	Label string
	Input textinput.Model
}

// Field indexes in the settings editor.
const (
	fieldTopic = iota
	fieldDelay
	fieldInterval
)

// EditorModel is the inline settings editor.
type EditorModel struct {
	fields    []EditorField
	activeIdx int
	orig      settings.Settings
	err       string
}

// NewSettingsEditor creates an editor pre-filled with s.
func NewSettingsEditor(s settings.Settings) *EditorModel {
	fields := []EditorField{
		newField("ntfy topic", s.NtfyTopic, 64),
		newField("completion delay (s)", strconv.Itoa(s.CompletionDelay), 4),
		newField("check interval (s)", strconv.Itoa(s.CheckInterval), 4),
	}
	fields[0].Input.Focus()
	return &EditorModel{fields: fields, orig: s}
}

func newField(label, value string, limit int) EditorField {
	ti := textinput.New()
	ti.Placeholder = label
	ti.SetValue(value)
	ti.CharLimit = limit
	return EditorField{Label: label, Input: ti}
}

// Changes is the validated result of the editor.
type Changes struct {
	Topic           *string
	CompletionDelay int
	CheckInterval   int
}

// Changes parses and validates the form, returning only what differs from
// the settings the editor was opened with.
func (e *EditorModel) Changes() (Changes, error) {
	var c Changes

	topic := strings.TrimSpace(e.fields[fieldTopic].Input.Value())
	if strings.ContainsAny(topic, "/?#") {
		return c, fmt.Errorf("topic must not contain / ? or #")
	}
	if topic != e.orig.NtfyTopic {
		c.Topic = &topic
	}

	delay, err := strconv.Atoi(strings.TrimSpace(e.fields[fieldDelay].Input.Value()))
	if err != nil {
		return c, fmt.Errorf("completion delay: %w", err)
	}
	interval, err := strconv.Atoi(strings.TrimSpace(e.fields[fieldInterval].Input.Value()))
	if err != nil {
		return c, fmt.Errorf("check interval: %w", err)
	}
	if err := settings.ValidateParams(delay, interval); err != nil {
		return c, err
	}
	if delay != e.orig.CompletionDelay {
		c.CompletionDelay = delay
	}
	if interval != e.orig.CheckInterval {
		c.CheckInterval = interval
	}
	return c, nil
}

// HandleKey processes key events in editor mode.
func (e *EditorModel) HandleKey(a App, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = ModeNormal
		a.editor = nil
		return a, nil

	case "enter":
		c, err := e.Changes()
		if err != nil {
			e.err = err.Error()
			return a, nil
		}
		a.mode = ModeNormal
		a.editor = nil
		if a.client == nil {
			return a.notConnected()
		}

		var cmds []tea.Cmd
		if c.Topic != nil {
			cmds = append(cmds, updateCmd(a.client, "topic", uds.MethodSetTopic, uds.SetTopicRequest{Topic: *c.Topic}))
		}
		if c.CompletionDelay != 0 || c.CheckInterval != 0 {
			cmds = append(cmds, updateCmd(a.client, "timing", uds.MethodSetParams, uds.SetParamsRequest{
				CompletionDelay: c.CompletionDelay,
				CheckInterval:   c.CheckInterval,
			}))
		}
		if len(cmds) == 0 {
			a.statusMsg = "no changes"
			return a, nil
		}
		return a, tea.Batch(cmds...)

	case "tab", "down":
		e.fields[e.activeIdx].Input.Blur()
		e.activeIdx = (e.activeIdx + 1) % len(e.fields)
		e.fields[e.activeIdx].Input.Focus()
		return a, textinput.Blink

	case "shift+tab", "up":
		e.fields[e.activeIdx].Input.Blur()
		e.activeIdx = (e.activeIdx - 1 + len(e.fields)) % len(e.fields)
		e.fields[e.activeIdx].Input.Focus()
		return a, textinput.Blink

	default:
		e.err = ""
		var cmd tea.Cmd
		e.fields[e.activeIdx].Input, cmd = e.fields[e.activeIdx].Input.Update(msg)
		return a, cmd
	}
}

// View renders the editor form.
func (e *EditorModel) View(width int) string {
	s := titleStyle.Render(" Settings ") + "\n\n"
	for i, f := range e.fields {
		prefix := "  "
		if i == e.activeIdx {
			prefix = "▸ "
		}
		s += prefix + dimStyle.Render(f.Label+": ") + f.Input.View() + "\n"
	}
	if e.err != "" {
		s += "\n" + errorStyle.Render("  "+truncate(e.err, width-2)) + "\n"
	}
	s += "\n" + helpStyle.Render("  tab:next  shift+tab:prev  enter:save  esc:cancel")
	return s
}
