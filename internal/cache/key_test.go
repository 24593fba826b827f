package cache

import (
	"testing"

	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
)

func baselRequest() meteoblue.ForecastRequest {
	return meteoblue.ForecastRequest{
		Lat:      47.56,
		Lon:      7.57,
		Packages: []meteoblue.ForecastPackage{meteoblue.PackageBasicDay},
		Format:   meteoblue.FormatJSON,
	}
}

// TestKey_CoordinateRounding verifies that coordinates within ~11 m of each
// other (4 decimal places) fingerprint identically.
func TestKey_CoordinateRounding(t *testing.T) {
	a := baselRequest()
	a.Lat = 47.56000
	b := baselRequest()
	b.Lat = 47.56001

	if Key(a) != Key(b) {
		t.Errorf("Key() differs for equivalent coordinates 47.56000 and 47.56001")
	}

	c := baselRequest()
	c.Lat = 47.561
	if Key(a) == Key(c) {
		t.Errorf("Key() identical for distinct coordinates 47.56 and 47.561")
	}
}

// TestKey_PackageOrderIndependence verifies that package order and duplicates
// do not affect the fingerprint.
func TestKey_PackageOrderIndependence(t *testing.T) {
	a := baselRequest()
	a.Packages = []meteoblue.ForecastPackage{meteoblue.PackageCurrent, meteoblue.PackageBasicDay}
	b := baselRequest()
	b.Packages = []meteoblue.ForecastPackage{meteoblue.PackageBasicDay, meteoblue.PackageCurrent}

	if Key(a) != Key(b) {
		t.Errorf("Key() differs for reordered package sets")
	}

	c := baselRequest()
	c.Packages = []meteoblue.ForecastPackage{
		meteoblue.PackageBasicDay, meteoblue.PackageCurrent, meteoblue.PackageBasicDay,
	}
	if Key(a) != Key(c) {
		t.Errorf("Key() differs when the package set contains duplicates")
	}
}

func TestKey_DistinguishesParameters(t *testing.T) {
	base := baselRequest()
	alt := 500

	tests := []struct {
		name   string
		mutate func(*meteoblue.ForecastRequest)
	}{
		{"different package set", func(r *meteoblue.ForecastRequest) {
			r.Packages = []meteoblue.ForecastPackage{meteoblue.PackageBasic1H}
		}},
		{"altitude set", func(r *meteoblue.ForecastRequest) { r.Altitude = &alt }},
		{"timezone set", func(r *meteoblue.ForecastRequest) { r.Timezone = "Europe/Zurich" }},
		{"temperature unit set", func(r *meteoblue.ForecastRequest) { r.Temperature = meteoblue.Fahrenheit }},
		{"windspeed unit set", func(r *meteoblue.ForecastRequest) { r.Windspeed = meteoblue.MilesPerHour }},
		{"precipitation unit set", func(r *meteoblue.ForecastRequest) { r.Precipitation = meteoblue.Inches }},
		{"csv format", func(r *meteoblue.ForecastRequest) { r.Format = meteoblue.FormatCSV }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baselRequest()
			tt.mutate(&req)
			if Key(req) == Key(base) {
				t.Errorf("Key() identical despite %s", tt.name)
			}
		})
	}
}

// TestKey_EmptyFormatDefaultsToJSON verifies an unset format fingerprints the
// same as an explicit JSON format, since the client defaults to JSON.
func TestKey_EmptyFormatDefaultsToJSON(t *testing.T) {
	a := baselRequest()
	a.Format = ""
	b := baselRequest()
	b.Format = meteoblue.FormatJSON

	if Key(a) != Key(b) {
		t.Errorf("Key() differs for empty format vs explicit json")
	}
}
