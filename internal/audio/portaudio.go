//go:build portaudio

package audio

import (
	"errors"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

// PortAudioSource reads mono samples from the default PortAudio input device.
type PortAudioSource struct {
	frames int

	mu       sync.Mutex
	stream   *portaudio.Stream
	buf      []int16
	stopped  bool
	released bool
}

// NewPortAudioSource returns an unstarted PortAudio source reading frames samples per Fill.
func NewPortAudioSource(frames int) (Source, error) {
	if frames <= 0 {
		frames = types.DefaultBufferSize
	}
	return &PortAudioSource{frames: frames}, nil
}

// Start initializes PortAudio and opens the default input stream.
func (s *PortAudioSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return errors.New("portaudio stream already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return util.WrapError("initialize portaudio", err)
	}

	s.buf = make([]int16, s.frames)
	stream, err := portaudio.OpenDefaultStream(types.Channels, 0, float64(types.SampleRate), len(s.buf), s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return errors.Join(ErrNoAudioDevice, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return util.WrapError("start portaudio stream", err)
	}

	s.stream = stream
	return nil
}

// Fill blocks for one PortAudio buffer and copies it into buf.
func (s *PortAudioSource) Fill(buf []int16) (int, error) {
	s.mu.Lock()
	stream, closed := s.stream, s.stopped || s.released
	s.mu.Unlock()

	if stream == nil || closed {
		return 0, ErrSourceClosed
	}

	if err := stream.Read(); err != nil {
		// Overflow drops samples but the stream stays usable.
		if errors.Is(err, portaudio.InputOverflowed) {
			return 0, nil
		}
		return 0, util.WrapError("read portaudio stream", err)
	}
	return copy(buf, s.buf), nil
}

// Stop stops the stream. It is safe to call more than once.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil || s.stopped {
		return nil
	}
	s.stopped = true
	return s.stream.Stop()
}

// Release closes the stream and terminates PortAudio. It is safe to call more than once.
func (s *PortAudioSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released || s.stream == nil {
		s.released = true
		return nil
	}
	s.released = true

	err := s.stream.Close()
	s.stream = nil
	return errors.Join(err, portaudio.Terminate())
}
