package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

// captureCommand builds the capture process. Tests replace it.
var captureCommand = BuildCaptureCommand

// CaptureSource reads raw s16le mono PCM from the platform capture command.
type CaptureSource struct {
	device     string
	ffmpegPath string

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   bytes.Buffer
	stopped  bool
	released bool

	raw []byte // reused between fills
}

// NewCaptureSource returns an unstarted capture source for device.
// An empty device selects the platform default.
func NewCaptureSource(device, ffmpegPath string) *CaptureSource {
	return &CaptureSource{device: device, ffmpegPath: ffmpegPath}
}

// Start launches the capture process.
func (s *CaptureSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return errors.New("capture already started")
	}
	if s.released {
		return ErrSourceClosed
	}

	cmdName, args, err := captureCommand(s.device, s.ffmpegPath)
	if err != nil {
		return err
	}

	slog.Info("starting audio capture", "command", cmdName, "input", s.device)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, cmdName, args...)

	// Signal first, wait, then kill.
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout
	cmd.Stderr = &s.stderr

	// FFmpeg on Windows only stops cleanly on a 'q' written to stdin.
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return util.WrapError("open capture stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return util.WrapError("open capture pipe", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return util.WrapError("start capture", err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.stdin = stdin
	s.stdout = stdout
	return nil
}

// Fill blocks until len(buf) samples are read or the stream fails.
func (s *CaptureSource) Fill(buf []int16) (int, error) {
	s.mu.Lock()
	stdout, closed := s.stdout, s.stopped || s.released
	s.mu.Unlock()

	if stdout == nil || closed {
		return 0, ErrSourceClosed
	}

	if need := len(buf) * 2; cap(s.raw) < need {
		s.raw = make([]byte, need)
	} else {
		s.raw = s.raw[:need]
	}

	n, err := io.ReadFull(stdout, s.raw)
	samples := DecodeS16LE(s.raw[:n], buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return samples, fmt.Errorf("capture stream ended: %w", err)
		}
		return samples, util.WrapError("read capture stream", err)
	}
	return samples, nil
}

// Stop asks the capture process to exit. It is safe to call more than once.
func (s *CaptureSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.stopped {
		return nil
	}
	s.stopped = true

	if s.cmd.Process != nil {
		if err := util.GracefulSignal(s.cmd.Process); err != nil {
			return util.WrapError("signal capture", err)
		}
	}
	if err := util.StopFFmpegViaStdin(s.stdin); err != nil && !errors.Is(err, os.ErrClosed) {
		slog.Debug("closing capture stdin failed", "error", err)
	}
	return nil
}

// Release waits for the capture process, killing it after the shutdown timeout.
// It is safe to call more than once.
func (s *CaptureSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true

	if s.cmd == nil {
		return nil
	}

	s.cancel()
	err := s.cmd.Wait()
	s.cmd, s.cancel, s.stdin, s.stdout = nil, nil, nil, nil

	if err != nil && !s.stopped {
		if msg := util.ExtractLastError(s.stderr.String()); msg != "" {
			return fmt.Errorf("capture exited: %s: %w", msg, err)
		}
		return util.WrapError("wait for capture", err)
	}
	return nil
}

// DecodeS16LE decodes little-endian 16-bit samples from raw into buf and
// returns the number of whole samples written. A trailing odd byte is ignored.
func DecodeS16LE(raw []byte, buf []int16) int {
	n := min(len(raw)/2, len(buf))
	for i := range n {
		buf[i] = int16(binary.LittleEndian.Uint16(raw[2*i:])) //nolint:gosec // Two's complement reinterpretation
	}
	return n
}
