package uds

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/modoterra/rndrwatch/pkg/core"
)

var reqCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UnmarshalData decodes the message payload into v.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return errors.New("message has no data")
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", m.Method, err)
	}
	return nil
}

func newMessage(t MsgType, id, method string, data any) (Message, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		raw = b
	}
	return Message{Type: t, ID: id, Method: method, Data: raw}, nil
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	return newMessage(MsgTypeReq, fmt.Sprintf("req-%d", reqCounter.Add(1)), method, data)
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	return newMessage(MsgTypeRes, reqID, method, data)
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	return newMessage(MsgTypeEvt, fmt.Sprintf("evt-%d", reqCounter.Add(1)), method, data)
}

// Methods
const (
	MethodPing         = "Ping"
	MethodStatus       = "Status"
	MethodStart        = "Start"
	MethodStop         = "Stop"
	MethodSetParams    = "SetParams"
	MethodSetLogFile   = "SetLogFile"
	MethodSetTopic     = "SetTopic"
	MethodSetPopup     = "SetPopup"
	MethodSendTest     = "SendTest"
	MethodSettings     = "Settings"
	MethodSetAutostart = "SetAutostart"
	MethodRecent       = "Recent"

	EventStatus       = "monitor.status"
	EventNotification = "monitor.notification"
	EventLogsLine     = "logs.line"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version,omitempty"`
}

// SetParamsRequest changes the monitor timing, in seconds. Zero leaves a value unchanged.
type SetParamsRequest struct {
	CompletionDelay int `json:"completion_delay,omitempty"`
	CheckInterval   int `json:"check_interval,omitempty"`
}

// SetLogFileRequest switches between the default and the test log file.
type SetLogFileRequest struct {
	UseTest bool `json:"use_test"`
}

// SetTopicRequest changes the ntfy topic.
type SetTopicRequest struct {
	Topic string `json:"topic"`
}

// SetPopupRequest toggles desktop notifications instead of ntfy.
type SetPopupRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAutostartRequest records whether the daemon starts at login.
type SetAutostartRequest struct {
	Enabled bool `json:"enabled"`
}

// RecentRequest asks for buffered history. Zero means everything kept.
type RecentRequest struct {
	Lines int `json:"lines,omitempty"`
}

// RecentResponse carries the daemon's buffered log lines and notifications,
// oldest first.
type RecentResponse struct {
	Lines         []core.LogLine      `json:"lines"`
	Notifications []core.Notification `json:"notifications"`
}

// OKResponse acknowledges a request that returns no data.
type OKResponse struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// Default request timeouts used by clients.
const (
	DefaultRequestTimeout = 2 * time.Second
	SendRequestTimeout    = 15 * time.Second
)
