//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"

	"speechmaps/internal/domain"
	"speechmaps/internal/ports"
)

// PortAudioCapture stub when portaudio is not available
type PortAudioCapture struct{}

func NewPortAudioCapture() *PortAudioCapture {
	return &PortAudioCapture{}
}

func (c *PortAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	return nil, fmt.Errorf("%w: portaudio capture not available: rebuild with -tags portaudio", domain.ErrAudioSessionConfig)
}
