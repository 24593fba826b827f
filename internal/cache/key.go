package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
)

const keyPrefix = "forecast:"

// Key derives the cache fingerprint for a forecast request. Two logically
// identical requests must produce the same key: coordinates are rounded to
// 4 decimal places (~11 m), packages are deduplicated and sorted, and unit
// selections use their normalized wire form. Omitted optionals encode as
// empty so "unset" never collides with an explicit value.
func Key(req meteoblue.ForecastRequest) string {
	pkgs := make([]string, 0, len(req.Packages))
	seen := make(map[string]bool, len(req.Packages))
	for _, p := range req.Packages {
		if seen[string(p)] {
			continue
		}
		seen[string(p)] = true
		pkgs = append(pkgs, string(p))
	}
	sort.Strings(pkgs)

	asl := ""
	if req.Altitude != nil {
		asl = strconv.Itoa(*req.Altitude)
	}
	format := req.Format
	if format == "" {
		format = meteoblue.FormatJSON
	}

	canonical := strings.Join([]string{
		"lat=" + formatRounded(req.Lat),
		"lon=" + formatRounded(req.Lon),
		"pkgs=" + strings.Join(pkgs, "_"),
		"asl=" + asl,
		"tz=" + req.Timezone,
		"temp=" + string(req.Temperature),
		"wind=" + string(req.Windspeed),
		"precip=" + string(req.Precipitation),
		"fmt=" + string(format),
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// formatRounded renders a coordinate rounded to 4 decimal places with a
// fixed width, so 47.56 and 47.56001 both become "47.5600".
func formatRounded(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', 4, 64)
}
