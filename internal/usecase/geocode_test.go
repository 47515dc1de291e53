package usecase

import (
	"errors"
	"testing"
	"time"

	"speechmaps/internal/domain"
	"speechmaps/internal/ports"
)

func recordAndStop(t *testing.T, controller *SessionController, transcript string) {
	t.Helper()

	eventually(t, "control enabled", func() bool { return controller.Status().Enabled })
	controller.Tap()
	eventually(t, "transcript", func() bool { return controller.Status().Transcript == transcript })
	controller.Tap()
}

func TestGeocodeAndLaunchOpensFirstCandidate(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "navigate to 1050 Benton St"}
	geocoder := &fakeGeocoder{candidates: []domain.Coordinate{
		{Latitude: 37.35, Longitude: -121.95},
		{Latitude: 40.7, Longitude: -74},
	}}
	opener := newFakeOpener()
	prompter := &fakePrompter{}

	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		Provider: &fakeProvider{sessions: []ports.StreamingSession{stream}},
		Geocoder: geocoder,
		Opener:   opener,
		Prompter: prompter,
	}, Config{MapsURLBase: "maps://"})

	recordAndStop(t, controller, "navigate to 1050 Benton St")

	select {
	case url := <-opener.urls:
		if url != "maps://?ll=37.35,-121.95" {
			t.Fatalf("unexpected maps url: %q", url)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("maps url was never opened")
	}

	queries := geocoder.snapshotQueries()
	if len(queries) != 1 || queries[0] != "navigate to 1050 Benton St" {
		t.Fatalf("unexpected geocode queries: %v", queries)
	}
	if prompter.callCount() != 0 {
		t.Fatalf("no dialog expected on success")
	}
}

func TestGeocodeAndLaunchUsesPlaceAliases(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "navigate home"}
	geocoder := &fakeGeocoder{candidates: []domain.Coordinate{{Latitude: 1, Longitude: 2}}}
	opener := newFakeOpener()

	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		Provider: &fakeProvider{sessions: []ports.StreamingSession{stream}},
		Geocoder: geocoder,
		Rewriter: fakeRewriter{out: "navigate 1050 Benton St 95050"},
		Opener:   opener,
	}, Config{})

	recordAndStop(t, controller, "navigate home")

	select {
	case <-opener.urls:
	case <-time.After(2 * time.Second):
		t.Fatalf("maps url was never opened")
	}
	if queries := geocoder.snapshotQueries(); queries[0] != "navigate 1050 Benton St 95050" {
		t.Fatalf("expected rewritten query, got %q", queries[0])
	}
}

func TestGeocodeAndLaunchRewriterFailureFallsBackToTranscript(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "open maps"}
	geocoder := &fakeGeocoder{}

	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		Provider: &fakeProvider{sessions: []ports.StreamingSession{stream}},
		Geocoder: geocoder,
		Rewriter: fakeRewriter{err: errors.New("broken rule")},
	}, Config{})

	recordAndStop(t, controller, "open maps")
	eventually(t, "geocode request", func() bool { return len(geocoder.snapshotQueries()) == 1 })
	if got := geocoder.snapshotQueries()[0]; got != "open maps" {
		t.Fatalf("unexpected query: %q", got)
	}
}

func TestGeocodeAndLaunchSkipsWithoutKeyword(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "hello world"}
	geocoder := &fakeGeocoder{}

	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		Provider: &fakeProvider{sessions: []ports.StreamingSession{stream}},
		Geocoder: geocoder,
	}, Config{})

	recordAndStop(t, controller, "hello world")
	eventually(t, "control re-enabled", func() bool { return controller.Status().Enabled })

	if queries := geocoder.snapshotQueries(); len(queries) != 0 {
		t.Fatalf("geocoder must not be called, got %v", queries)
	}
}

func TestGeocodeAndLaunchSkipsEmptyTranscript(t *testing.T) {
	t.Parallel()

	geocoder := &fakeGeocoder{}
	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		Provider: &fakeProvider{sessions: []ports.StreamingSession{newFakeStreamingSession()}},
		Geocoder: geocoder,
	}, Config{})

	recordAndStop(t, controller, "")
	eventually(t, "control re-enabled", func() bool { return controller.Status().Enabled })

	if queries := geocoder.snapshotQueries(); len(queries) != 0 {
		t.Fatalf("geocoder must not be called, got %v", queries)
	}
}

func TestGeocodeAndLaunchZeroCandidatesIsSilent(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "show the map"}
	geocoder := &fakeGeocoder{}
	opener := newFakeOpener()
	prompter := &fakePrompter{}
	events := &fakeEventSink{}

	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		Provider: &fakeProvider{sessions: []ports.StreamingSession{stream}},
		Geocoder: geocoder,
		Opener:   opener,
		Prompter: prompter,
		Events:   events,
	}, Config{})

	recordAndStop(t, controller, "show the map")
	eventually(t, "geocode request", func() bool { return len(geocoder.snapshotQueries()) == 1 })

	select {
	case url := <-opener.urls:
		t.Fatalf("unexpected maps url %q", url)
	case <-time.After(50 * time.Millisecond):
	}
	if prompter.callCount() != 0 || events.hasError(domain.ErrorCodeGeocoding) {
		t.Fatalf("zero candidates must not surface an error")
	}
}

func TestGeocodeAndLaunchInvalidURLIsSilent(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "navigation please"}
	geocoder := &fakeGeocoder{candidates: []domain.Coordinate{{Latitude: 120, Longitude: 0}}}
	opener := newFakeOpener()
	prompter := &fakePrompter{}

	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		Provider: &fakeProvider{sessions: []ports.StreamingSession{stream}},
		Geocoder: geocoder,
		Opener:   opener,
		Prompter: prompter,
	}, Config{})

	recordAndStop(t, controller, "navigation please")
	eventually(t, "geocode request", func() bool { return len(geocoder.snapshotQueries()) == 1 })

	select {
	case url := <-opener.urls:
		t.Fatalf("unexpected maps url %q", url)
	case <-time.After(50 * time.Millisecond):
	}
	if prompter.callCount() != 0 {
		t.Fatalf("invalid url must not show a dialog")
	}
}

func TestGeocodeFailureRetryRestartsRecording(t *testing.T) {
	t.Parallel()

	firstStream := newFakeStreamingSession()
	firstStream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "navigate to nowhere"}
	secondStream := newFakeStreamingSession()
	provider := &fakeProvider{sessions: []ports.StreamingSession{firstStream, secondStream}}
	geocoder := &fakeGeocoder{err: errors.New("location not found")}
	prompter := &fakePrompter{retry: true}
	events := &fakeEventSink{}

	controller := newTestController(t, Deps{
		Audio: &fakeAudioCapture{sessions: []ports.AudioSession{
			&fakeAudioSession{},
			&fakeAudioSession{},
		}},
		Provider: provider,
		Geocoder: geocoder,
		Prompter: prompter,
		Events:   events,
	}, Config{})

	recordAndStop(t, controller, "navigate to nowhere")

	eventually(t, "retry recording", func() bool {
		return controller.Status().State == domain.SessionStateRecording
	})

	if prompter.callCount() != 1 {
		t.Fatalf("expected exactly one dialog, got %d", prompter.callCount())
	}
	if prompter.titles[0] != locationErrorTitle {
		t.Fatalf("unexpected dialog title: %q", prompter.titles[0])
	}
	if provider.callCount() != 2 {
		t.Fatalf("retry should start a new recognition task, got %d", provider.callCount())
	}
	if len(geocoder.snapshotQueries()) != 1 {
		t.Fatalf("retry must not re-send the geocode request")
	}
	if !events.hasError(domain.ErrorCodeGeocoding) {
		t.Fatalf("expected geocoding error event")
	}
	if view := events.lastControl(); view.Label != labelStop {
		t.Fatalf("expected stop affordance after retry, got %+v", view)
	}
}

func TestGeocodeFailureDismissStaysIdle(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "maps"}
	provider := &fakeProvider{sessions: []ports.StreamingSession{stream}}
	prompter := &fakePrompter{retry: false}

	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		Provider: provider,
		Geocoder: &fakeGeocoder{err: errors.New("boom")},
		Prompter: prompter,
	}, Config{})

	recordAndStop(t, controller, "maps")
	eventually(t, "dialog shown", func() bool { return prompter.callCount() == 1 })
	eventually(t, "control re-enabled", func() bool { return controller.Status().Enabled })

	if controller.Status().Active || provider.callCount() != 1 {
		t.Fatalf("dismissing the dialog must not start recording")
	}
}

func TestOnGeocodedDropsStaleResults(t *testing.T) {
	t.Parallel()

	prompter := &fakePrompter{}
	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{},
		Provider: &fakeProvider{},
		Prompter: prompter,
	}, Config{})

	controller.loop.call(func() {
		controller.session.pendingGeocode = 2
		controller.onGeocoded(1, domain.GeocodeResult{Err: errors.New("stale")})
	})

	time.Sleep(20 * time.Millisecond)
	if prompter.callCount() != 0 {
		t.Fatalf("stale result must be ignored")
	}
}

func TestNewRecordingSupersedesPendingGeocode(t *testing.T) {
	t.Parallel()

	firstStream := newFakeStreamingSession()
	firstStream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "navigate to Paris"}
	secondStream := newFakeStreamingSession()
	secondStream.holdOnCloseSend = true
	geocoder := newGatedGeocoder([]domain.Coordinate{{Latitude: 48.85, Longitude: 2.35}})
	opener := newFakeOpener()
	prompter := &fakePrompter{}

	controller := newTestController(t, Deps{
		Audio:    &fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}, &fakeAudioSession{}}},
		Provider: &fakeProvider{sessions: []ports.StreamingSession{firstStream, secondStream}},
		Geocoder: geocoder,
		Opener:   opener,
		Prompter: prompter,
	}, Config{MapsURLBase: "maps://"})

	recordAndStop(t, controller, "navigate to Paris")

	select {
	case <-geocoder.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("geocoding never started")
	}

	eventually(t, "control enabled", func() bool {
		status := controller.Status()
		return status.Enabled && !status.Active
	})
	controller.Tap()
	eventually(t, "second recording", func() bool { return controller.Status().Active })

	close(geocoder.release)

	select {
	case url := <-opener.urls:
		t.Fatalf("stale lookup opened %q during a new recording", url)
	case <-time.After(300 * time.Millisecond):
	}
	if prompter.callCount() != 0 {
		t.Fatalf("stale lookup must not prompt")
	}
}
