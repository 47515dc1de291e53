package bootstrap

import (
	"fmt"

	"github.com/charmbracelet/log"

	"speechmaps/internal/audio"
	"speechmaps/internal/config"
	"speechmaps/internal/launcher"
	"speechmaps/internal/logging"
	"speechmaps/internal/places"
	"speechmaps/internal/ports"
	"speechmaps/internal/providers/deepgram"
	"speechmaps/internal/providers/geocode"
	"speechmaps/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Logger     *log.Logger
}

// Build wires all backend dependencies for the current runtime. The UI
// shell supplies the event sink and the retry dialog; a nil opener falls
// back to the system URL handler.
func Build(events ports.EventSink, opener ports.URLOpener, prompter ports.RetryPrompter) (Services, error) {
	if opener == nil {
		opener = launcher.NewSystemOpener()
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return Services{}, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return Services{}, err
	}

	aliases, err := places.Load(cfg.Places.Path, cfg.Places.IterationLimit, logger)
	if err != nil {
		return Services{}, err
	}

	capture, err := audio.New(cfg.Audio.Backend, cfg.Audio.RecorderCommand)
	if err != nil {
		return Services{}, err
	}

	geocoder, err := geocode.New(geocode.Options{
		Provider:      cfg.Geocoding.Provider,
		GoogleAPIKey:  cfg.Geocoding.GoogleAPIKey,
		GoogleBaseURL: cfg.Geocoding.GoogleBaseURL,
		NominatimURL:  cfg.Geocoding.NominatimURL,
		UserAgent:     cfg.Geocoding.UserAgent,
	}, logger)
	if err != nil {
		return Services{}, fmt.Errorf("geocoder: %w", err)
	}

	deepgramCfg := deepgram.Config{
		APIKey:            cfg.Deepgram.APIKey,
		APIBaseURL:        cfg.Deepgram.APIBaseURL,
		Model:             cfg.Deepgram.Model,
		Language:          cfg.Deepgram.Language,
		SmartFormat:       cfg.Deepgram.SmartFormat != nil && *cfg.Deepgram.SmartFormat,
		KeepAliveInterval: cfg.Deepgram.KeepAliveInterval,
	}
	authorizer := deepgram.NewAuthorizer(deepgramCfg, logger)

	controller := usecase.NewSessionController(
		usecase.Deps{
			Audio:      capture,
			Provider:   deepgram.NewProvider(deepgramCfg, logger),
			Authorizer: authorizer,
			Probe:      authorizer,
			Geocoder:   geocoder,
			Rewriter:   aliases,
			Opener:     opener,
			Prompter:   prompter,
			Events:     events,
			Logger:     logger,
		},
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:      cfg.Audio.SampleRate,
				Channels:        cfg.Audio.Channels,
				FramesPerBuffer: cfg.Audio.FramesPerBuffer,
				InputFormat:     cfg.Audio.InputFormat,
				InputDevice:     cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			// One capture buffer of 16-bit samples per websocket frame.
			ChunkSize:            cfg.Audio.FramesPerBuffer * 2 * cfg.Audio.Channels,
			FinalizeTimeout:      cfg.Session.FinalizeTimeout,
			MapsURLBase:          cfg.Maps.URLBase,
			EnablePolicy:         usecase.EnablePolicy(cfg.Session.EnablePolicy),
			AvailabilityInterval: cfg.Session.AvailabilityInterval,
		},
	)

	logger.Debug("services wired",
		"audio", cfg.Audio.Backend,
		"geocoder", cfg.Geocoding.Provider,
		"policy", cfg.Session.EnablePolicy,
		"places", aliases.Len(),
	)
	return Services{Controller: controller, Config: cfg, Logger: logger}, nil
}
