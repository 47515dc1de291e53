package usecase

import (
	"strings"

	"speechmaps/internal/domain"
	"speechmaps/internal/launcher"
)

const (
	locationErrorTitle   = "Location Error"
	locationErrorMessage = "Location Not Recognized"
)

// geocodeAndLaunch resolves transcript and hands the first candidate to the
// maps application. At most one request is outstanding; a newer request
// supersedes an older one.
func (c *SessionController) geocodeAndLaunch(transcript string) {
	query := transcript
	if c.deps.Rewriter != nil {
		rewritten, err := c.deps.Rewriter.Apply(transcript)
		if err != nil {
			c.logger.Warn("place aliases failed, using raw transcript", "error", err)
		} else if strings.TrimSpace(rewritten) != "" {
			query = rewritten
		}
	}

	c.geocodeSeq++
	handle := c.geocodeSeq
	c.session.pendingGeocode = handle

	ctx := c.baseCtx
	c.logger.Info("geocoding transcript", "query", query)
	go func() {
		candidates, err := c.deps.Geocoder.Geocode(ctx, query)
		result := domain.GeocodeResult{Candidates: candidates, Err: err}
		c.loop.post(func() {
			c.onGeocoded(handle, result)
		})
	}()
}

func (c *SessionController) onGeocoded(handle uint64, result domain.GeocodeResult) {
	if handle != c.session.pendingGeocode {
		return
	}
	c.session.pendingGeocode = 0

	if result.Err != nil {
		c.logger.Error("geocoding failed", "error", result.Err)
		c.deps.Events.SessionError(domain.ErrorCodeGeocoding, result.Err.Error())
		c.promptRetry()
		return
	}
	if len(result.Candidates) == 0 {
		c.logger.Debug("geocoding returned no candidates")
		return
	}

	target := result.Candidates[0]
	url, err := launcher.MapsURL(c.cfg.MapsURLBase, target)
	if err != nil {
		c.logger.Debug("could not build maps url", "error", err)
		return
	}

	c.logger.Info("opening maps", "url", url)
	ctx := c.baseCtx
	go func() {
		if err := c.deps.Opener.OpenURL(ctx, url); err != nil {
			c.logger.Warn("failed to open maps", "url", url, "error", err)
		}
	}()
}

// promptRetry shows the location error dialog. Retry re-enters the toggle,
// starting a whole new recording rather than re-sending the request.
func (c *SessionController) promptRetry() {
	if c.session.dialogOpen {
		return
	}
	c.session.dialogOpen = true

	ctx := c.baseCtx
	go func() {
		retry, err := c.deps.Prompter.PromptRetry(ctx, locationErrorTitle, locationErrorMessage)
		c.loop.post(func() {
			c.session.dialogOpen = false
			if err != nil {
				c.logger.Warn("retry dialog failed", "error", err)
				return
			}
			if retry {
				c.logger.Info("retrying after location error")
				c.toggle()
			}
		})
	}()
}
