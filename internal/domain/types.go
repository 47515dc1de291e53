package domain

import "errors"

// SessionState models the recording toggle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStateError     SessionState = "error"
)

// AuthorizationStatus is the answer of the speech service permission request.
type AuthorizationStatus string

const (
	AuthorizationGranted       AuthorizationStatus = "granted"
	AuthorizationDenied        AuthorizationStatus = "denied"
	AuthorizationRestricted    AuthorizationStatus = "restricted"
	AuthorizationNotDetermined AuthorizationStatus = "not_determined"
)

// ErrorCode identifies the error kinds surfaced to the UI and logs.
type ErrorCode string

const (
	ErrorCodeStartup                 ErrorCode = "startup"
	ErrorCodeAuthorizationDenied     ErrorCode = "authorization_denied"
	ErrorCodeAuthorizationRestricted ErrorCode = "authorization_restricted"
	ErrorCodeRecognitionUnavailable  ErrorCode = "recognition_unavailable"
	ErrorCodeAudioSessionConfig      ErrorCode = "audio_session_config"
	ErrorCodeAudioEngineStart        ErrorCode = "audio_engine_start"
	ErrorCodeRecognitionTask         ErrorCode = "recognition_task"
	ErrorCodeGeocoding               ErrorCode = "geocoding"
)

var (
	// ErrAudioSessionConfig is wrapped by capture backends when the input
	// cannot be configured (missing recorder, bad device settings).
	ErrAudioSessionConfig = errors.New("audio session configuration failed")
	// ErrAudioEngineStart is wrapped when a configured input fails to start.
	ErrAudioEngineStart = errors.New("audio engine failed to start")
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeocodeResult is the outcome of one geocoding request. Candidates are
// ordered by the service's relevance.
type GeocodeResult struct {
	Candidates []Coordinate
	Err        error
}

// ControlView is what the toggle button and icon render.
type ControlView struct {
	State   SessionState `json:"state"`
	Label   string       `json:"label"`
	Icon    string       `json:"icon"`
	Enabled bool         `json:"enabled"`
}

// Status summarizes the current runtime status.
type Status struct {
	State      SessionState `json:"state"`
	Active     bool         `json:"active"`
	Enabled    bool         `json:"enabled"`
	Transcript string       `json:"transcript"`
	SessionID  string       `json:"sessionId,omitempty"`
	Message    string       `json:"message,omitempty"`
}
