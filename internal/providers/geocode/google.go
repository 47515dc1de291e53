package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"googlemaps.github.io/maps"

	"speechmaps/internal/domain"
)

// Google resolves places through the Google Maps Geocoding API.
type Google struct {
	client *maps.Client
	logger *log.Logger
}

// NewGoogle builds a Google geocoder. baseURL is optional and only needed to
// point the client at a different endpoint.
func NewGoogle(apiKey string, baseURL string, logger *log.Logger) (*Google, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("google geocoding requires an API key")
	}

	options := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		options = append(options, maps.WithBaseURL(baseURL))
	}

	client, err := maps.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("create google maps client: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Google{client: client, logger: logger.WithPrefix("geocode")}, nil
}

func (g *Google) Geocode(ctx context.Context, query string) ([]domain.Coordinate, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			g.logger.Debug("no google results", "query", query)
			return nil, nil
		}
		return nil, fmt.Errorf("google geocode %q: %w", query, err)
	}

	coordinates := make([]domain.Coordinate, 0, len(results))
	for _, result := range results {
		coordinates = append(coordinates, domain.Coordinate{
			Latitude:  result.Geometry.Location.Lat,
			Longitude: result.Geometry.Location.Lng,
		})
	}
	g.logger.Debug("google geocode", "query", query, "candidates", len(coordinates))
	return coordinates, nil
}
