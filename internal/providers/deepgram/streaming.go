package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"speechmaps/internal/domain"
	"speechmaps/internal/ports"
)

const (
	defaultAPIBaseURL   = "https://api.deepgram.com/v1"
	defaultWriteTimeout = 10 * time.Second
)

var (
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)
)

// Config controls Deepgram settings shared by streaming and REST calls.
type Config struct {
	APIKey            string
	APIBaseURL        string
	Model             string
	Language          string
	SmartFormat       bool
	KeepAliveInterval time.Duration
	// WriteTimeout bounds each socket write so a peer that stops reading
	// ends the task instead of stalling it.
	WriteTimeout time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram live
// transcription.
type Provider struct {
	cfg    Config
	logger *log.Logger
	dialer *websocket.Dialer
}

func NewProvider(cfg Config, logger *log.Logger) *Provider {
	cfg = withDefaults(cfg)
	if logger == nil {
		logger = log.Default()
	}
	return &Provider{
		cfg:    cfg,
		logger: logger.WithPrefix("deepgram"),
		dialer: websocket.DefaultDialer,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return cfg
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to Deepgram websocket (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}
	p.logger.Debug("listen socket open", "model", p.cfg.Model, "interim", cfg.InterimResults)

	session := newStreamingSession(conn, p.logger, p.cfg.KeepAliveInterval)
	session.writeTimeout = p.cfg.WriteTimeout

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

// streamingSession never blocks its callers on the network: SendAudio,
// CloseSend and Close return even when the peer has stopped reading.
type streamingSession struct {
	conn         *websocket.Conn
	logger       *log.Logger
	keepAlive    time.Duration
	writeTimeout time.Duration

	events     chan domain.TranscriptEvent
	audio      chan []byte
	sendClosed chan struct{}
	readDone   chan struct{}
	done       chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func newStreamingSession(conn *websocket.Conn, logger *log.Logger, keepAlive time.Duration) *streamingSession {
	return &streamingSession{
		conn:         conn,
		logger:       logger,
		keepAlive:    keepAlive,
		writeTimeout: defaultWriteTimeout,
		events:       make(chan domain.TranscriptEvent, 64),
		audio:        make(chan []byte, 32),
		sendClosed:   make(chan struct{}),
		readDone:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if s.isSendClosed() {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.sendClosed:
		return errors.New("audio stream is already closed")
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend marks end of audio. Deepgram flushes its final results and then
// closes the socket, which ends Events.
func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		close(s.sendClosed)
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	// A failed write leaves the socket unusable; closing it also ends the
	// read side.
	fail := func(err error) {
		s.setErr(err)
		_ = s.conn.Close()
	}

	for {
		select {
		case chunk := <-s.audio:
			if err := s.write(websocket.BinaryMessage, chunk); err != nil {
				fail(fmt.Errorf("failed to send audio: %w", err))
				return
			}
			ticker.Reset(s.keepAlive)
		case <-s.sendClosed:
			if err := s.flushAudio(); err != nil {
				fail(fmt.Errorf("failed to send audio: %w", err))
				return
			}
			if err := s.write(websocket.TextMessage, closeStreamMessage); err != nil {
				fail(fmt.Errorf("failed to close stream: %w", err))
			}
			return
		case <-ticker.C:
			if err := s.write(websocket.TextMessage, keepAliveMessage); err != nil {
				fail(fmt.Errorf("failed to send keepalive: %w", err))
				return
			}
		case <-s.readDone:
			return
		}
	}
}

// flushAudio sends chunks queued before end of audio.
func (s *streamingSession) flushAudio() error {
	for {
		select {
		case chunk := <-s.audio:
			if err := s.write(websocket.BinaryMessage, chunk); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *streamingSession) write(messageType int, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, payload)
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if s.isSendClosed() && isClosedConn(err) {
				return
			}
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			s.logger.Debug("skipping undecodable event", "error", err)
			continue
		}

		switch {
		case strings.EqualFold(response.Type, "Error"):
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = strings.TrimSpace(response.Description)
			}
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		case strings.EqualFold(response.Type, "Metadata"):
			s.logger.Debug("metadata", "request", response.RequestID)
			continue
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}

		event := domain.TranscriptEvent{Text: transcript, IsSpeechFinal: response.SpeechFinal}
		if response.IsFinal || response.SpeechFinal {
			event.Kind = domain.TranscriptKindFinal
		} else {
			event.Kind = domain.TranscriptKindPartial
		}
		s.emit(event)
	}
}

func (s *streamingSession) isSendClosed() bool {
	select {
	case <-s.sendClosed:
		return true
	default:
		return false
	}
}

func isClosedConn(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return false
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
		s.logger.Warn("dropping transcript event, consumer is behind", "kind", event.Kind)
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	RequestID   string `json:"request_id"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

// restURL resolves path against the configured API base, keeping https.
func restURL(base string, path string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	parsed, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid Deepgram API base URL %q", base)
	}
	return parsed.String(), nil
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultAPIBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	query := listenURL.Query()
	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
