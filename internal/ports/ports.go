package ports

import (
	"context"
	"io"

	"speechmaps/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	InputFormat     string
	InputDevice     string
}

// AudioSession is a live capture session. Stop is safe to call more than once.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is one recognition task. Events is closed when the task
// ends; Wait then reports why.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Authorizer asks the speech service whether this client may use it.
type Authorizer interface {
	RequestAuthorization(ctx context.Context) (domain.AuthorizationStatus, error)
}

// AvailabilityProbe reports whether the speech service is reachable right now.
type AvailabilityProbe interface {
	Available(ctx context.Context) bool
}

// Geocoder resolves free text into candidate coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]domain.Coordinate, error)
}

// QueryRewriter rewrites a transcript into a geocoding query.
type QueryRewriter interface {
	Apply(text string) (string, error)
}

// URLOpener hands a URL to the operating system.
type URLOpener interface {
	OpenURL(ctx context.Context, url string) error
}

// RetryPrompter shows a modal error with a single retry action. It blocks
// until dismissed and reports whether retry was chosen.
type RetryPrompter interface {
	PromptRetry(ctx context.Context, title string, message string) (bool, error)
}

// EventSink emits backend state to the UI.
type EventSink interface {
	ControlChanged(view domain.ControlView)
	TranscriptChanged(text string)
	SessionError(code domain.ErrorCode, detail string)
}
