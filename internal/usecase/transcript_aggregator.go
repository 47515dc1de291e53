package usecase

import (
	"strings"

	"speechmaps/internal/domain"
)

// transcriptAggregator builds the best current transcription of one attempt:
// every committed final segment followed by the latest partial. It is owned
// by the UI loop.
type transcriptAggregator struct {
	finals  []string
	partial string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add folds one provider event in and reports whether the text changed.
func (a *transcriptAggregator) Add(event domain.TranscriptEvent) bool {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return false
	}

	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.partial = ""
		return true
	}

	if text == a.partial {
		return false
	}
	a.partial = text
	return true
}

func (a *transcriptAggregator) Text() string {
	parts := make([]string, 0, len(a.finals)+1)
	parts = append(parts, a.finals...)
	if a.partial != "" {
		parts = append(parts, a.partial)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
