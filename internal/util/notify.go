package util

import "log/slog"

// LogNotifyResult runs one notification send and logs its outcome with the
// channel name and any extra attributes. It returns the send error.
func LogNotifyResult(fn func() error, channel string, attrs ...any) error {
	args := append([]any{"channel", channel}, attrs...)
	if err := fn(); err != nil {
		slog.Error("notification failed", append(args, "error", err)...)
		return err
	}
	slog.Info("notification sent", args...)
	return nil
}
