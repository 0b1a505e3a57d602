//go:build !windows

package util

import (
	"errors"
	"io"
	"os"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal asks a child process to exit with SIGINT. A process that
// has already exited is not an error.
func GracefulSignal(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// StopFFmpegViaStdin closes stdin. SIGINT does the stopping on Unix and
// FFmpeg runs with -nostdin there, so no 'q' is sent.
func StopFFmpegViaStdin(stdin io.WriteCloser) error {
	if stdin == nil {
		return nil
	}
	return stdin.Close()
}
