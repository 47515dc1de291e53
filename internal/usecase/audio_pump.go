package usecase

import (
	"errors"
	"fmt"
	"io"

	"speechmaps/internal/ports"
)

// pumpAudioChunks forwards every captured buffer into the recognition
// stream until capture ends. Only unexpected failures reach onError.
func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	onError func(error),
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 2048
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				onError(fmt.Errorf("failed to stream audio: %w", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				onError(fmt.Errorf("audio capture error: %w", err))
			}
			return
		}
	}
}
