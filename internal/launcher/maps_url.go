package launcher

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"speechmaps/internal/domain"
)

// MapsURL builds the maps deep link `<base>?ll=<lat>,<lon>`, e.g.
// maps://?ll=37.35,-121.95.
func MapsURL(base string, target domain.Coordinate) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("maps url base is empty")
	}
	if target.Latitude < -90 || target.Latitude > 90 || target.Longitude < -180 || target.Longitude > 180 {
		return "", fmt.Errorf("coordinate out of range: %v,%v", target.Latitude, target.Longitude)
	}

	raw := base + "?ll=" + formatDegrees(target.Latitude) + "," + formatDegrees(target.Longitude)
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid maps url %q: %w", raw, err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("maps url %q has no scheme", raw)
	}
	return raw, nil
}

func formatDegrees(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
