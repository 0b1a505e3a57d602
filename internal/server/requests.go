package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Audio settings ---

// AudioUpdateRequest is the request body for audio/update.
type AudioUpdateRequest struct {
	Backend string  `json:"backend" validate:"omitempty,oneof=tone capture portaudio"`
	Input   *string `json:"input" validate:"omitempty,max=256"`
}

// --- Alert settings ---

// AlertsUpdateRequest is the request body for alerts/update.
type AlertsUpdateRequest struct {
	LoudThreshold *float64 `json:"loud_threshold" validate:"omitempty,gte=0,lte=120"`
	DurationMs    *int64   `json:"duration_ms" validate:"omitempty,gte=0,lte=300000"`
	RecoveryMs    *int64   `json:"recovery_ms" validate:"omitempty,gte=0,lte=60000"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048,url"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailUpdateRequest is the request body for notifications/email/update.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254,email"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// --- S3 test ---

// S3TestRequest is the request body for reports/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"s3_bucket" validate:"required,max=63"`
	AccessKey string `json:"s3_access_key_id" validate:"required,max=128"`
	SecretKey string `json:"s3_secret_access_key" validate:"required,max=256"`
}
