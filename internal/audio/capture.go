package audio

import (
	"fmt"
	"strings"

	"speechmaps/internal/ports"
)

const (
	BackendFFMPEG    = "ffmpeg"
	BackendPortAudio = "portaudio"
)

// New returns the capture backend named by backend.
func New(backend string, recorderCommand string) (ports.AudioCapture, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFFMPEG:
		return NewFFMPEGCapture(recorderCommand), nil
	case BackendPortAudio:
		return NewPortAudioCapture(), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

func withDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}
