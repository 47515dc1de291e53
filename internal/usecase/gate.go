package usecase

import (
	"context"
	"time"

	"speechmaps/internal/domain"
)

func (c *SessionController) requestAuthorization(ctx context.Context) {
	status, err := c.deps.Authorizer.RequestAuthorization(ctx)
	if err != nil {
		c.logger.Warn("authorization request failed", "error", err)
		status = domain.AuthorizationNotDetermined
	}
	c.loop.post(func() {
		c.applyAuthorization(status)
	})
}

func (c *SessionController) applyAuthorization(status domain.AuthorizationStatus) {
	c.session.authorized = status == domain.AuthorizationGranted
	c.session.gate = c.session.authorized

	switch status {
	case domain.AuthorizationGranted:
		c.logger.Info("speech recognition authorized")
	case domain.AuthorizationDenied:
		c.logger.Warn("user denied access to speech recognition")
		c.deps.Events.SessionError(domain.ErrorCodeAuthorizationDenied, "speech recognition access denied")
	case domain.AuthorizationRestricted:
		c.logger.Warn("speech recognition restricted for this account")
		c.deps.Events.SessionError(domain.ErrorCodeAuthorizationRestricted, "speech recognition restricted")
	default:
		c.logger.Warn("speech recognition not yet authorized")
	}
	c.emitControl()
}

func (c *SessionController) applyAvailability(available bool) {
	c.session.available = available
	c.session.gate = available

	if available {
		c.logger.Info("speech recognition available")
	} else {
		c.logger.Warn("speech recognition unavailable")
		c.deps.Events.SessionError(domain.ErrorCodeRecognitionUnavailable, "speech recognition is unavailable")
	}
	c.emitControl()
}

// watchAvailability polls the probe and reports transitions only.
func (c *SessionController) watchAvailability(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		available := c.deps.Probe.Available(ctx)
		if available == last || ctx.Err() != nil {
			continue
		}
		last = available
		c.AvailabilityChanged(available)
	}
}
