package types

// WSConfigResponse is sent in response to config/get.
// Contains the full configuration without runtime state.
type WSConfigResponse struct {
	Type   string `json:"type"` // "config"
	Config any    `json:"config"`
}

// WSCommandResult is the standard response for command execution.
// Error holds either a message string or a *ValidationError.
type WSCommandResult struct {
	Type    string `json:"type"` // "<command>_result"
	Success bool   `json:"success"`
	Error   any    `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// APIStatusResponse is returned by GET /api/status.
type APIStatusResponse struct {
	Meter   MeterStatus `json:"meter"`
	Levels  MeterLevels `json:"levels"`
	Version VersionInfo `json:"version"`
}

// WSTestResult reports the outcome of a notification or storage test.
type WSTestResult struct {
	Type     string `json:"type"`            // "test_result"
	TestType string `json:"test_type"`       // webhook, log, email or s3
	Success  bool   `json:"success"`         // true if the test passed
	Error    string `json:"error,omitempty"` // Failure reason
}

// WSAlertLogResult is sent in response to notifications/log/view.
type WSAlertLogResult struct {
	Type    string          `json:"type"` // "alert_log_result"
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Path    string          `json:"path,omitempty"`
	Entries []AlertLogEntry `json:"entries,omitempty"`
}
