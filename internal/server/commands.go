package server

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/oszuidwest/zwfm-soundmeter/internal/config"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// MaxLogEntries is the maximum number of alert log entries to return.
const MaxLogEntries = 100

// WSCommand is a command received from a WebSocket client. Type is
// slash-separated, such as "meter/start" or "notifications/email/test".
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Monitor is the meter control surface used by the command handler.
type Monitor interface {
	Start() error
	Stop() error
	IsSampling() bool
	Levels() types.MeterLevels
	Status() types.MeterStatus
	ApplySettings()
	InvalidateGraphClient()
	TriggerTestWebhook() error
	TriggerTestEmail() error
	TriggerTestLog() error
}

type commandFunc func(h *CommandHandler, cmd WSCommand, send chan<- any)

// commands maps each command type to its handler.
var commands = map[string]commandFunc{
	"meter/start":  (*CommandHandler).handleMeterStart,
	"meter/stop":   (*CommandHandler).handleMeterStop,
	"meter/get":    (*CommandHandler).handleMeterGet,
	"audio/update": (*CommandHandler).handleAudioUpdate,

	"alerts/update": (*CommandHandler).handleAlertsUpdate,

	"notifications/webhook/update": (*CommandHandler).handleWebhookUpdate,
	"notifications/webhook/test":   testCommand("webhook", Monitor.TriggerTestWebhook),
	"notifications/log/update":     (*CommandHandler).handleLogUpdate,
	"notifications/log/test":       testCommand("log", Monitor.TriggerTestLog),
	"notifications/log/view":       (*CommandHandler).handleViewAlertLog,
	"notifications/email/update":   (*CommandHandler).handleEmailUpdate,
	"notifications/email/test":     testCommand("email", Monitor.TriggerTestEmail),

	"reports/test-s3":    (*CommandHandler).handleTestReportS3,
	"api/regenerate-key": (*CommandHandler).handleRegenerateAPIKey,
	"config/get":         (*CommandHandler).handleConfigGet,

	// The status frame that follows every command is the answer.
	"status/get": func(*CommandHandler, WSCommand, chan<- any) {},
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg     *config.Config
	monitor Monitor
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, mon Monitor) *CommandHandler {
	return &CommandHandler{
		cfg:     cfg,
		monitor: mon,
	}
}

// Handle runs cmd and then asks for a status push, so every client action
// is reflected on the dashboard right away. Unknown commands get a failed
// result.
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	if run, ok := commands[cmd.Type]; ok {
		run(h, cmd, send)
	} else {
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		SendError(send, cmd.Type, fmt.Errorf("unknown command %q", cmd.Type))
	}
	triggerStatusUpdate()
}

func (h *CommandHandler) handleConfigGet(_ WSCommand, send chan<- any) {
	SendData(send, types.WSConfigResponse{Type: "config", Config: h.cfg.Redacted()})
}
