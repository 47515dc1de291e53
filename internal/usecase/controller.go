package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"speechmaps/internal/domain"
	"speechmaps/internal/ports"
)

const (
	listeningPlaceholder = "Say something, I'm listening!"

	labelStart    = "Start Recording"
	labelStop     = "Stop Recording"
	iconIdle      = "mic"
	iconRecording = "micRecording"

	audioDrainTimeout = 2 * time.Second
)

// EnablePolicy decides how authorization and availability combine into the
// control's enabled state.
type EnablePolicy string

const (
	// EnablePolicyAnd enables the control only while authorized and available.
	EnablePolicyAnd EnablePolicy = "and"
	// EnablePolicyOverwrite lets the most recent signal win.
	EnablePolicyOverwrite EnablePolicy = "overwrite"
)

// Config controls recording and hand-off behavior.
type Config struct {
	Audio                ports.AudioConfig
	Streaming            ports.StreamingConfig
	ChunkSize            int
	FinalizeTimeout      time.Duration
	MapsURLBase          string
	EnablePolicy         EnablePolicy
	AvailabilityInterval time.Duration
}

// Deps are the collaborators a SessionController drives. Probe and Rewriter
// are optional.
type Deps struct {
	Audio      ports.AudioCapture
	Provider   ports.TranscriptionProvider
	Authorizer ports.Authorizer
	Probe      ports.AvailabilityProbe
	Geocoder   ports.Geocoder
	Rewriter   ports.QueryRewriter
	Opener     ports.URLOpener
	Prompter   ports.RetryPrompter
	Events     ports.EventSink
	Logger     *log.Logger
}

// SessionController owns the Session and reacts to taps, recognizer
// callbacks, and geocoder results. All state lives on its UI loop.
type SessionController struct {
	deps   Deps
	logger *log.Logger
	cfg    Config
	loop   *uiLoop

	baseCtx    context.Context
	session    session
	current    *activeAttempt
	geocodeSeq uint64
}

func NewSessionController(deps Deps, cfg Config) *SessionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 2048
	}
	if cfg.EnablePolicy == "" {
		cfg.EnablePolicy = EnablePolicyAnd
	}
	if cfg.MapsURLBase == "" {
		cfg.MapsURLBase = "maps://"
	}
	cfg.Streaming.InterimResults = true

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &SessionController{
		deps:    deps,
		logger:  logger,
		cfg:     cfg,
		loop:    newUILoop(),
		baseCtx: context.Background(),
		session: session{available: true},
	}
}

// Run drives the UI loop until ctx is done. The control stays disabled
// until the authorization answer arrives.
func (c *SessionController) Run(ctx context.Context) error {
	c.baseCtx = ctx

	go c.requestAuthorization(ctx)
	if c.deps.Probe != nil && c.cfg.AvailabilityInterval > 0 {
		go c.watchAvailability(ctx, c.cfg.AvailabilityInterval)
	}
	c.loop.post(c.emitControl)

	c.loop.run(ctx)

	// The loop has exited, so this goroutine owns the state again.
	if c.current != nil {
		c.discard(c.current)
		c.current = nil
	}
	return ctx.Err()
}

// Tap is the user pressing the toggle control. It is ignored while the
// control is disabled.
func (c *SessionController) Tap() {
	c.loop.post(func() {
		if !c.controlEnabled() {
			c.logger.Debug("tap ignored, control disabled")
			return
		}
		c.toggle()
	})
}

// AvailabilityChanged reports the recognizer becoming available or not.
func (c *SessionController) AvailabilityChanged(available bool) {
	c.loop.post(func() {
		c.applyAvailability(available)
	})
}

// Status returns a snapshot taken on the UI loop.
func (c *SessionController) Status() domain.Status {
	var status domain.Status
	if !c.loop.call(func() {
		status = domain.Status{
			State:      c.state(),
			Active:     c.session.recording,
			Enabled:    c.controlEnabled(),
			Transcript: c.session.transcript,
		}
		if c.current != nil {
			status.SessionID = c.current.id
		}
	}) {
		return domain.Status{State: domain.SessionStateIdle}
	}
	return status
}

func (c *SessionController) toggle() {
	if c.session.recording {
		c.stopRecording()
		return
	}
	c.startRecording()
}

func (c *SessionController) startRecording() {
	// A new attempt supersedes any location lookup from the previous one.
	c.session.pendingGeocode = 0

	if c.current != nil {
		c.logger.Debug("cancelling leftover recognition task", "session", c.current.id)
		c.discard(c.current)
		c.current = nil
		c.session.finishing = false
	}

	id := uuid.NewString()
	attemptCtx, cancel := context.WithCancel(c.baseCtx)

	stream, err := c.deps.Provider.StartStreaming(attemptCtx, c.cfg.Streaming)
	if err != nil {
		cancel()
		c.fail(domain.ErrorCodeRecognitionUnavailable, fmt.Errorf("recognition task could not start: %w", err))
		return
	}

	audio, err := c.deps.Audio.Start(attemptCtx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		c.fail(classifyAudioError(err), err)
		return
	}

	active := &activeAttempt{
		id:         id,
		cancel:     cancel,
		audio:      audio,
		stream:     stream,
		aggregator: newTranscriptAggregator(),
		audioDone:  make(chan struct{}),
	}
	c.current = active
	c.session.recording = true
	c.session.transcript = ""

	go c.consumeTranscriptionEvents(active)
	go pumpAudioChunks(audio, stream, c.cfg.ChunkSize, func(err error) {
		c.loop.post(func() { c.onAudioError(active, err) })
	}, active.audioDone)

	c.logger.Info("recording started", "session", id)
	c.deps.Events.TranscriptChanged(listeningPlaceholder)
	c.emitControl()
}

func (c *SessionController) stopRecording() {
	c.session.recording = false

	if active := c.current; active != nil {
		if err := active.stopAudio(); err != nil {
			c.logger.Warn("audio capture did not stop cleanly", "session", active.id, "error", err)
		}
		if err := active.endAudio(); err != nil {
			c.logger.Warn("failed to end audio", "session", active.id, "error", err)
		}
		active.armFinalizeTimeout(c.cfg.FinalizeTimeout)
		c.session.finishing = true
		c.logger.Info("recording stopped", "session", active.id)
	}
	c.emitControl()

	transcript := c.session.transcript
	if transcript == "" || !MatchesKeywords(transcript) {
		return
	}
	c.geocodeAndLaunch(transcript)
}

func (c *SessionController) consumeTranscriptionEvents(active *activeAttempt) {
	for event := range active.stream.Events() {
		event := event
		c.loop.post(func() { c.onTranscript(active, event) })
	}
	err := active.stream.Wait()
	c.loop.post(func() { c.onTaskDone(active, err) })
}

func (c *SessionController) onTranscript(active *activeAttempt, event domain.TranscriptEvent) {
	if c.current != active {
		return
	}
	if !active.aggregator.Add(event) {
		return
	}
	c.session.transcript = active.aggregator.Text()
	c.deps.Events.TranscriptChanged(c.session.transcript)
}

// onTaskDone is the recognizer's final-or-error teardown. It may run before
// or after the user's stop tap.
func (c *SessionController) onTaskDone(active *activeAttempt, err error) {
	if c.current != active {
		return
	}
	c.current = nil

	if stopErr := active.release(); stopErr != nil {
		c.logger.Warn("audio capture did not stop cleanly", "session", active.id, "error", stopErr)
	}
	c.session.finishing = false
	c.session.recording = false

	if err != nil {
		c.logger.Error("recognition task failed", "session", active.id, "error", err)
		c.deps.Events.SessionError(domain.ErrorCodeRecognitionTask, err.Error())
	} else {
		c.logger.Debug("recognition task finished", "session", active.id)
	}
	c.emitControl()
}

func (c *SessionController) onAudioError(active *activeAttempt, err error) {
	if c.current != active || !c.session.recording {
		c.logger.Debug("audio pump ended", "session", active.id, "error", err)
		return
	}
	c.logger.Warn("audio pump failed", "session", active.id, "error", err)
}

// discard tears active down and waits for its audio pump, so a replacement
// attempt never shares the capture device with a pump that is still reading.
func (c *SessionController) discard(active *activeAttempt) {
	if err := active.release(); err != nil {
		c.logger.Debug("audio capture did not stop cleanly", "session", active.id, "error", err)
	}
	_ = active.stream.Close()

	select {
	case <-active.audioDone:
	case <-time.After(audioDrainTimeout):
		c.logger.Warn("audio pump did not exit", "session", active.id, "timeout", audioDrainTimeout)
	}
}

func (c *SessionController) fail(code domain.ErrorCode, err error) {
	c.logger.Error("recording attempt abandoned", "code", code, "error", err)
	c.deps.Events.SessionError(code, err.Error())
	c.emitControl()
}

func classifyAudioError(err error) domain.ErrorCode {
	if errors.Is(err, domain.ErrAudioSessionConfig) {
		return domain.ErrorCodeAudioSessionConfig
	}
	return domain.ErrorCodeAudioEngineStart
}

func (c *SessionController) state() domain.SessionState {
	if c.session.recording {
		return domain.SessionStateRecording
	}
	return domain.SessionStateIdle
}

func (c *SessionController) controlEnabled() bool {
	if c.session.finishing {
		return false
	}
	if c.cfg.EnablePolicy == EnablePolicyOverwrite {
		return c.session.gate
	}
	return c.session.authorized && c.session.available
}

func (c *SessionController) controlView() domain.ControlView {
	view := domain.ControlView{
		State:   c.state(),
		Label:   labelStart,
		Icon:    iconIdle,
		Enabled: c.controlEnabled(),
	}
	if c.session.recording {
		view.Label = labelStop
		view.Icon = iconRecording
	}
	return view
}

func (c *SessionController) emitControl() {
	c.deps.Events.ControlChanged(c.controlView())
}
