// Package geocode provides geocoders that turn a spoken place into
// candidate coordinates.
package geocode

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"speechmaps/internal/ports"
)

const (
	ProviderNominatim = "nominatim"
	ProviderGoogle    = "google"
)

// Options selects and configures a geocoder.
type Options struct {
	Provider      string
	GoogleAPIKey  string
	GoogleBaseURL string
	NominatimURL  string
	UserAgent     string
}

// New returns the geocoder named by opts.Provider. An empty provider picks
// Google when a key is configured and Nominatim otherwise.
func New(opts Options, logger *log.Logger) (ports.Geocoder, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = ProviderNominatim
		if strings.TrimSpace(opts.GoogleAPIKey) != "" {
			provider = ProviderGoogle
		}
	}

	switch provider {
	case ProviderGoogle:
		return NewGoogle(opts.GoogleAPIKey, opts.GoogleBaseURL, logger)
	case ProviderNominatim:
		return NewNominatim(opts.NominatimURL, opts.UserAgent, logger), nil
	default:
		return nil, fmt.Errorf("unsupported geocoding provider %q", opts.Provider)
	}
}
