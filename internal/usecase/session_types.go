package usecase

import (
	"context"
	"time"

	"speechmaps/internal/ports"
)

// session is the single long-lived Session. Only the UI loop touches it.
type session struct {
	recording      bool
	transcript     string
	pendingGeocode uint64

	authorized bool
	available  bool
	gate       bool
	finishing  bool
	dialogOpen bool
}

// activeAttempt is one recording attempt: a recognition task plus the audio
// capture feeding it. Fields are owned by the UI loop.
type activeAttempt struct {
	id     string
	cancel context.CancelFunc
	audio  ports.AudioSession
	stream ports.StreamingSession

	aggregator *transcriptAggregator
	audioDone  chan struct{}

	audioStopped  bool
	sendClosed    bool
	finalizeTimer *time.Timer
}

// stopAudio stops capture once; later calls are no-ops.
func (a *activeAttempt) stopAudio() error {
	if a.audioStopped {
		return nil
	}
	a.audioStopped = true
	return a.audio.Stop()
}

// endAudio signals end-of-audio to the recognizer once.
func (a *activeAttempt) endAudio() error {
	if a.sendClosed {
		return nil
	}
	a.sendClosed = true
	return a.stream.CloseSend()
}

// armFinalizeTimeout force-closes a stream that ignores end-of-audio.
func (a *activeAttempt) armFinalizeTimeout(timeout time.Duration) {
	if timeout <= 0 || a.finalizeTimer != nil {
		return
	}
	stream := a.stream
	a.finalizeTimer = time.AfterFunc(timeout, func() {
		_ = stream.Close()
	})
}

// release frees everything except the stream connection.
func (a *activeAttempt) release() error {
	err := a.stopAudio()
	if a.finalizeTimer != nil {
		a.finalizeTimer.Stop()
	}
	a.cancel()
	return err
}
