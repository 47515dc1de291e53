package deepgram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"speechmaps/internal/domain"
)

// Authorizer maps the project listing endpoint onto speech authorization.
// It also serves as the availability probe, since both ask the same question
// of the same endpoint.
type Authorizer struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
}

func NewAuthorizer(cfg Config, logger *log.Logger) *Authorizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Authorizer{
		cfg:    withDefaults(cfg),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.WithPrefix("deepgram"),
	}
}

func (a *Authorizer) RequestAuthorization(ctx context.Context) (domain.AuthorizationStatus, error) {
	if strings.TrimSpace(a.cfg.APIKey) == "" {
		return domain.AuthorizationNotDetermined, nil
	}

	status, err := a.probe(ctx)
	if err != nil {
		return domain.AuthorizationNotDetermined, err
	}

	switch {
	case status >= 200 && status < 300:
		return domain.AuthorizationGranted, nil
	case status == http.StatusUnauthorized:
		return domain.AuthorizationDenied, nil
	case status == http.StatusPaymentRequired, status == http.StatusForbidden:
		return domain.AuthorizationRestricted, nil
	default:
		return domain.AuthorizationNotDetermined, fmt.Errorf("unexpected authorization status %d", status)
	}
}

// Available reports whether the service answered without a server error.
func (a *Authorizer) Available(ctx context.Context) bool {
	status, err := a.probe(ctx)
	if err != nil {
		a.logger.Debug("availability probe failed", "error", err)
		return false
	}
	return status < 500
}

func (a *Authorizer) probe(ctx context.Context) (int, error) {
	endpoint, err := restURL(a.cfg.APIBaseURL, "/projects")
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build projects request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+a.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("projects request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
