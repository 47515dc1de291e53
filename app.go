package main

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"speechmaps/internal/bootstrap"
	"speechmaps/internal/config"
	"speechmaps/internal/domain"
	"speechmaps/internal/launcher"
	"speechmaps/internal/ports"
	"speechmaps/internal/usecase"
)

const (
	eventControl    = "speechmaps:control"
	eventTranscript = "speechmaps:transcript"
	eventError      = "speechmaps:error"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	opener     ports.URLOpener
	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
}

// NewApp hands maps URLs to the system handler, which reports failures and
// resolves custom schemes such as maps://.
func NewApp() *App {
	return &App{opener: launcher.NewSystemOpener()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.opener, &wailsPrompter{})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go func() {
		_ = services.Controller.Run(runCtx)
		services.Logger.Debug("session controller stopped")
	}()
}

func (a *App) shutdown(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
}

// Tap toggles recording. Taps while the control is disabled are ignored.
func (a *App) Tap() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.controller.Tap()
	return nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":         "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"language":         a.cfg.Deepgram.Language,
		"audioBackend":     a.cfg.Audio.Backend,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"geocoder":         a.cfg.Geocoding.Provider,
		"mapsURLBase":      a.cfg.Maps.URLBase,
		"placesFile":       a.cfg.Places.Path,
		"enablePolicy":     a.cfg.Session.EnablePolicy,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// ControlChanged emits the toggle's label, icon and enabled state.
func (a *App) ControlChanged(view domain.ControlView) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventControl, view)
}

// TranscriptChanged replaces the text area contents.
func (a *App) TranscriptChanged(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAuthorizationDenied:
		return "Speech recognition access was denied"
	case domain.ErrorCodeAuthorizationRestricted:
		return "Speech recognition is restricted for this account"
	case domain.ErrorCodeRecognitionUnavailable:
		return "Speech recognition is not available right now"
	case domain.ErrorCodeAudioSessionConfig:
		return "Microphone could not be configured"
	case domain.ErrorCodeAudioEngineStart:
		return "Microphone could not be started"
	case domain.ErrorCodeRecognitionTask:
		return "Recognition stopped unexpectedly"
	case domain.ErrorCodeGeocoding:
		return "Location Not Recognized"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

const retryButton = "Retry"

type wailsPrompter struct{}

func (p *wailsPrompter) PromptRetry(ctx context.Context, title string, message string) (bool, error) {
	selected, err := runtime.MessageDialog(ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         title,
		Message:       message,
		Buttons:       []string{retryButton},
		DefaultButton: retryButton,
	})
	if err != nil {
		return false, err
	}
	return selected == retryButton, nil
}
