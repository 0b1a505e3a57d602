//go:build !portaudio

package audio

// NewPortAudioSource reports that PortAudio support was not compiled in.
// Build with -tags portaudio to enable it.
func NewPortAudioSource(int) (Source, error) {
	return nil, ErrBackendUnavailable
}
