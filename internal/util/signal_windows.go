//go:build windows

package util

import (
	"io"
	"os"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal is a no-op on Windows, where SIGINT cannot be delivered to
// a child process. Stop FFmpeg with StopFFmpegViaStdin instead.
func GracefulSignal(*os.Process) error {
	return nil
}

// StopFFmpegViaStdin sends FFmpeg's 'q' command on stdin and closes it.
func StopFFmpegViaStdin(stdin io.WriteCloser) error {
	if stdin == nil {
		return nil
	}
	_, _ = stdin.Write([]byte("q"))
	return stdin.Close()
}
