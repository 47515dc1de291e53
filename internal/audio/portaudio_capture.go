//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"speechmaps/internal/domain"
	"speechmaps/internal/ports"
)

// PortAudioCapture reads the default input device through PortAudio.
type PortAudioCapture struct{}

func NewPortAudioCapture() *PortAudioCapture {
	return &PortAudioCapture{}
}

func (c *PortAudioCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withDefaults(cfg)

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initializing portaudio: %v", domain.ErrAudioSessionConfig, err)
	}

	samples := make([]int16, cfg.FramesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		cfg.Channels,
		0,
		float64(cfg.SampleRate),
		cfg.FramesPerBuffer,
		samples,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: opening stream: %v", domain.ErrAudioSessionConfig, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: starting stream: %v", domain.ErrAudioEngineStart, err)
	}

	return &portAudioSession{
		stream:  stream,
		samples: samples,
		frame:   make([]byte, 0, len(samples)*2),
	}, nil
}

type portAudioSession struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	samples []int16
	frame   []byte
	pending []byte
	stopped bool

	stopOnce sync.Once
	stopErr  error
}

func (s *portAudioSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, io.EOF
	}

	if len(s.pending) == 0 {
		if err := s.stream.Read(); err != nil && err != portaudio.InputOverflowed {
			return 0, fmt.Errorf("reading from stream: %w", err)
		}
		s.frame = s.frame[:0]
		for _, sample := range s.samples {
			s.frame = binary.LittleEndian.AppendUint16(s.frame, uint16(sample))
		}
		s.pending = s.frame
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *portAudioSession) Close() error {
	return s.Stop()
}

func (s *portAudioSession) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.stopped = true
		if err := s.stream.Stop(); err != nil {
			s.stopErr = fmt.Errorf("stopping stream: %w", err)
		}
		if err := s.stream.Close(); err != nil && s.stopErr == nil {
			s.stopErr = fmt.Errorf("closing stream: %w", err)
		}
		if err := portaudio.Terminate(); err != nil && s.stopErr == nil {
			s.stopErr = fmt.Errorf("terminating portaudio: %w", err)
		}
	})
	return s.stopErr
}
