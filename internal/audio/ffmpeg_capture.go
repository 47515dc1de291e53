package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"speechmaps/internal/domain"
	"speechmaps/internal/ports"
)

const (
	recorderStartupGrace = 250 * time.Millisecond
	recorderStopGrace    = 1200 * time.Millisecond
	recorderPipeDrain    = 500 * time.Millisecond
	recorderLogTail      = 4 << 10
)

// FFMPEGCapture records the microphone through an external recorder process
// that writes raw s16le PCM to stdout. Any ffmpeg-compatible binary works.
type FFMPEGCapture struct {
	command      string
	startupGrace time.Duration
	stopGrace    time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{
		command:      command,
		startupGrace: recorderStartupGrace,
		stopGrace:    recorderStopGrace,
	}
}

// recorderArgs reads cfg.InputDevice through cfg.InputFormat and converts it
// to the channel count and sample rate the recognizer expects.
func recorderArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-f", cfg.InputFormat, "-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le", "pipe:1",
	}
}

// Start launches the recorder. A recorder that cannot be found is a
// configuration problem; one that dies during the startup grace period
// failed to open the device.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withDefaults(cfg)

	binary, err := exec.LookPath(c.command)
	if err != nil {
		return nil, fmt.Errorf("%w: recorder %q not found: %v", domain.ErrAudioSessionConfig, c.command, err)
	}

	proc, err := launchRecorder(ctx, binary, recorderArgs(cfg))
	if err != nil {
		return nil, err
	}

	if err := proc.settle(c.startupGrace); err != nil {
		return nil, err
	}
	return &recorderSession{proc: proc, stopGrace: c.stopGrace}, nil
}

// recorderProcess tracks one running recorder and the tail of its log.
type recorderProcess struct {
	cmd    *exec.Cmd
	pcm    io.ReadCloser
	log    *tailBuffer
	exited chan struct{}
	err    error
}

func launchRecorder(ctx context.Context, binary string, args []string) (*recorderProcess, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	logs := &tailBuffer{limit: recorderLogTail}
	cmd.Stderr = logs
	// Grandchildren that inherited stderr must not hold Wait open.
	cmd.WaitDelay = recorderPipeDrain

	pcm, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: recorder output pipe: %v", domain.ErrAudioSessionConfig, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAudioEngineStart, err)
	}

	proc := &recorderProcess{cmd: cmd, pcm: pcm, log: logs, exited: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		close(proc.exited)
	}()
	return proc, nil
}

// settle fails if the recorder exits within grace.
func (p *recorderProcess) settle(grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-p.exited:
	}

	detail := p.log.String()
	switch {
	case p.err != nil && detail != "":
		return fmt.Errorf("%w: recorder quit during startup: %v: %s", domain.ErrAudioEngineStart, p.err, detail)
	case p.err != nil:
		return fmt.Errorf("%w: recorder quit during startup: %v", domain.ErrAudioEngineStart, p.err)
	default:
		return fmt.Errorf("%w: recorder quit during startup", domain.ErrAudioEngineStart)
	}
}

// terminate asks the recorder to flush and exit, and kills it after grace.
func (p *recorderProcess) terminate(grace time.Duration) error {
	select {
	case <-p.exited:
		return ignoreExitStatus(p.err)
	default:
	}

	_ = p.cmd.Process.Signal(os.Interrupt)
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.exited:
	case <-timer.C:
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
	return ignoreExitStatus(p.err)
}

type recorderSession struct {
	proc      *recorderProcess
	stopGrace time.Duration

	stopOnce sync.Once
	stopErr  error
}

// Read reports io.EOF once the recorder is gone, including after Stop.
func (s *recorderSession) Read(p []byte) (int, error) {
	n, err := s.proc.pcm.Read(p)
	if errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	return n, err
}

func (s *recorderSession) Close() error {
	return s.Stop()
}

func (s *recorderSession) Stop() error {
	s.stopOnce.Do(func() {
		err := s.proc.terminate(s.stopGrace)
		if closeErr := s.proc.pcm.Close(); err == nil && closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			err = closeErr
		}
		if err != nil {
			if detail := s.proc.log.String(); detail != "" {
				err = fmt.Errorf("%w: %s", err, detail)
			}
		}
		s.stopErr = err
	})
	return s.stopErr
}

// ignoreExitStatus drops non-zero exit codes: an interrupted recorder
// rarely exits 0.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; b.limit > 0 && over > 0 {
		b.data = append(b.data[:0], b.data[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.data))
}
