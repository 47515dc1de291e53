package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"speechmaps/internal/domain"
	"speechmaps/internal/ports"
)

func newTestController(t *testing.T, deps Deps, cfg Config) *SessionController {
	t.Helper()

	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if deps.Authorizer == nil {
		deps.Authorizer = &fakeAuthorizer{status: domain.AuthorizationGranted}
	}
	if deps.Events == nil {
		deps.Events = &fakeEventSink{}
	}
	if deps.Geocoder == nil {
		deps.Geocoder = &fakeGeocoder{}
	}
	if deps.Opener == nil {
		deps.Opener = newFakeOpener()
	}
	if deps.Prompter == nil {
		deps.Prompter = &fakePrompter{}
	}

	controller := NewSessionController(deps, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = controller.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return controller
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeAuthorizer struct {
	status domain.AuthorizationStatus
	err    error
}

func (f *fakeAuthorizer) RequestAuthorization(_ context.Context) (domain.AuthorizationStatus, error) {
	return f.status, f.err
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	chunk := f.chunks[f.index]
	n := copy(p, chunk)
	if n < len(chunk) {
		f.chunks[f.index] = chunk[n:]
	} else {
		f.index++
	}
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	err      error
	calls    int
	lastCfg  ports.StreamingConfig
}

func (f *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

func (f *fakeProvider) config() ports.StreamingConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCfg
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStreamingSession finishes as soon as end-of-audio arrives unless
// holdOnCloseSend is set.
type fakeStreamingSession struct {
	mu              sync.Mutex
	events          chan domain.TranscriptEvent
	waitErr         error
	holdOnCloseSend bool
	closeSendCalls  int
	closeCalls      int
	closed          bool
	sent            int
}

func newFakeStreamingSession() *fakeStreamingSession {
	return &fakeStreamingSession{events: make(chan domain.TranscriptEvent, 16)}
}

func (f *fakeStreamingSession) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent += len(chunk)
	return nil
}

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSendCalls++
	if !f.holdOnCloseSend {
		f.finishLocked()
	}
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.finishLocked()
	return nil
}

func (f *fakeStreamingSession) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr = err
	f.finishLocked()
}

func (f *fakeStreamingSession) finishLocked() {
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

func (f *fakeStreamingSession) closeSends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSendCalls
}

func (f *fakeStreamingSession) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

type fakeGeocoder struct {
	mu         sync.Mutex
	candidates []domain.Coordinate
	err        error
	queries    []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, query string) ([]domain.Coordinate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.candidates, f.err
}

func (f *fakeGeocoder) snapshotQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

type fakeRewriter struct {
	out string
	err error
}

func (f fakeRewriter) Apply(_ string) (string, error) { return f.out, f.err }

type fakeOpener struct {
	urls chan string
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{urls: make(chan string, 4)}
}

func (f *fakeOpener) OpenURL(_ context.Context, url string) error {
	f.urls <- url
	return nil
}

type fakePrompter struct {
	mu     sync.Mutex
	retry  bool
	calls  int
	titles []string
}

func (f *fakePrompter) PromptRetry(_ context.Context, title string, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.titles = append(f.titles, title)
	return f.retry, nil
}

func (f *fakePrompter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type scriptedAvailability struct {
	mu     sync.Mutex
	values []bool
	index  int
}

func (f *scriptedAvailability) Available(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return true
	}
	value := f.values[f.index]
	if f.index < len(f.values)-1 {
		f.index++
	}
	return value
}

type fakeEventSink struct {
	mu sync.Mutex

	controls    []domain.ControlView
	transcripts []string
	errors      []errEvent
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) ControlChanged(view domain.ControlView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, view)
}

func (f *fakeEventSink) TranscriptChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) controlCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.controls)
}

func (f *fakeEventSink) lastControl() domain.ControlView {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.controls) == 0 {
		return domain.ControlView{}
	}
	return f.controls[len(f.controls)-1]
}

func (f *fakeEventSink) snapshotTranscripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.transcripts))
	copy(out, f.transcripts)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) hasError(code domain.ErrorCode) bool {
	for _, e := range f.snapshotErrors() {
		if e.code == code {
			return true
		}
	}
	return false
}

// lingeringAudioSession blocks in Read until Stop, then takes linger to
// return io.EOF, like a device that finishes its last buffer after stopping.
type lingeringAudioSession struct {
	stopOnce sync.Once
	stopped  chan struct{}
	linger   time.Duration

	mu     sync.Mutex
	exited bool
}

func newLingeringAudioSession(linger time.Duration) *lingeringAudioSession {
	return &lingeringAudioSession{stopped: make(chan struct{}), linger: linger}
}

func (f *lingeringAudioSession) Read(_ []byte) (int, error) {
	<-f.stopped
	time.Sleep(f.linger)
	f.mu.Lock()
	f.exited = true
	f.mu.Unlock()
	return 0, io.EOF
}

func (f *lingeringAudioSession) Close() error { return f.Stop() }

func (f *lingeringAudioSession) Stop() error {
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *lingeringAudioSession) readerExited() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exited
}

// gatedGeocoder holds every lookup until release is closed.
type gatedGeocoder struct {
	release    chan struct{}
	started    chan string
	candidates []domain.Coordinate
}

func newGatedGeocoder(candidates []domain.Coordinate) *gatedGeocoder {
	return &gatedGeocoder{
		release:    make(chan struct{}),
		started:    make(chan string, 4),
		candidates: candidates,
	}
}

func (f *gatedGeocoder) Geocode(ctx context.Context, query string) ([]domain.Coordinate, error) {
	f.started <- query
	select {
	case <-f.release:
		return f.candidates, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
