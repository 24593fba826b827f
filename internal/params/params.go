// Package params maps loosely-typed, user-language-derived tool arguments
// onto the client's enumerated vocabulary. Resolution order for packages:
// synonym table, then canonical wire token, then name-style variant
// (uppercased, hyphens to underscores). The mapping tables live apart from
// the resolution logic so they can be extended without touching it.
package params

import (
	"fmt"
	"strings"

	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
)

// InvalidPackageError reports a package token that resolves to nothing.
type InvalidPackageError struct {
	Token string
}

func (e *InvalidPackageError) Error() string {
	return fmt.Sprintf("invalid package %q. Valid packages: %s", e.Token, strings.Join(CanonicalPackageTokens(), ", "))
}

// InvalidUnitError reports an unrecognized unit token for a unit kind.
type InvalidUnitError struct {
	Kind  string // "temperature", "windspeed", "precipitation"
	Token string
	Valid []string
}

func (e *InvalidUnitError) Error() string {
	return fmt.Sprintf("invalid %s unit %q. Use %s", e.Kind, e.Token, quoteList(e.Valid))
}

// InvalidFormatError reports an unrecognized output format token.
type InvalidFormatError struct {
	Token string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid output format %q. Use %s", e.Token, quoteList([]string{"json", "csv"}))
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	if len(quoted) <= 1 {
		return strings.Join(quoted, "")
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}

// packageSynonyms maps natural-language phrasings onto canonical wire tokens.
// Keys are lowercase; lookups happen after trimming and lowercasing.
var packageSynonyms = map[string]string{
	"basic_1h":     "basic-1h",
	"hourly":       "basic-1h",
	"basic_day":    "basic-day",
	"daily":        "basic-day",
	"cloud":        "clouds",
	"sun-moon":     "sun_moon",
	"sun":          "sun_moon",
	"moon":         "sun_moon",
	"agricultural": "agro",
	"marine":       "sea",
	"air_quality":  "air",
	"air-quality":  "air",
	"14day":        "trend",
	"14-day":       "trend",
}

// canonicalPackages indexes valid wire tokens.
var canonicalPackages = func() map[string]meteoblue.ForecastPackage {
	m := make(map[string]meteoblue.ForecastPackage)
	for _, p := range meteoblue.Packages() {
		m[string(p)] = p
	}
	return m
}()

// packageNames indexes name-style identifiers (BASIC_1H etc.) as the final
// fallback resolution path.
var packageNames = func() map[string]meteoblue.ForecastPackage {
	m := make(map[string]meteoblue.ForecastPackage)
	for _, p := range meteoblue.Packages() {
		name := strings.ToUpper(strings.ReplaceAll(string(p), "-", "_"))
		m[name] = p
	}
	return m
}()

// CanonicalPackageTokens returns the valid wire tokens in wire order.
func CanonicalPackageTokens() []string {
	pkgs := meteoblue.Packages()
	tokens := make([]string, len(pkgs))
	for i, p := range pkgs {
		tokens[i] = string(p)
	}
	return tokens
}

// NormalizePackages resolves free-text package tokens to their enumerated
// form, deduplicating while preserving first-occurrence order. An empty or
// nil list defaults to the daily forecast package. The first unresolvable
// token fails the whole call.
func NormalizePackages(tokens []string) ([]meteoblue.ForecastPackage, error) {
	if len(tokens) == 0 {
		return []meteoblue.ForecastPackage{meteoblue.PackageBasicDay}, nil
	}

	seen := make(map[meteoblue.ForecastPackage]bool, len(tokens))
	out := make([]meteoblue.ForecastPackage, 0, len(tokens))
	for _, token := range tokens {
		pkg, err := resolvePackage(token)
		if err != nil {
			return nil, err
		}
		if seen[pkg] {
			continue
		}
		seen[pkg] = true
		out = append(out, pkg)
	}
	return out, nil
}

func resolvePackage(token string) (meteoblue.ForecastPackage, error) {
	lowered := strings.ToLower(strings.TrimSpace(token))

	candidate := lowered
	if mapped, ok := packageSynonyms[lowered]; ok {
		candidate = mapped
	}
	if pkg, ok := canonicalPackages[candidate]; ok {
		return pkg, nil
	}
	name := strings.ToUpper(strings.ReplaceAll(candidate, "-", "_"))
	if pkg, ok := packageNames[name]; ok {
		return pkg, nil
	}
	return "", &InvalidPackageError{Token: token}
}

// NormalizeTemperatureUnit resolves a temperature unit token. An empty token
// means "not specified" and resolves to the zero value without error.
func NormalizeTemperatureUnit(token string) (meteoblue.TemperatureUnit, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", nil
	}
	switch strings.ToUpper(trimmed) {
	case string(meteoblue.Celsius):
		return meteoblue.Celsius, nil
	case string(meteoblue.Fahrenheit):
		return meteoblue.Fahrenheit, nil
	}
	return "", &InvalidUnitError{Kind: "temperature", Token: token, Valid: []string{"C", "F"}}
}

// NormalizeWindspeedUnit resolves a wind speed unit token; empty means unset.
func NormalizeWindspeedUnit(token string) (meteoblue.WindspeedUnit, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", nil
	}
	switch strings.ToLower(trimmed) {
	case string(meteoblue.MetersPerSecond):
		return meteoblue.MetersPerSecond, nil
	case string(meteoblue.KilometersHour):
		return meteoblue.KilometersHour, nil
	case string(meteoblue.MilesPerHour):
		return meteoblue.MilesPerHour, nil
	case string(meteoblue.Knots):
		return meteoblue.Knots, nil
	}
	return "", &InvalidUnitError{Kind: "windspeed", Token: token, Valid: []string{"ms-1", "kmh", "mph", "kn"}}
}

// NormalizePrecipitationUnit resolves a precipitation unit token; empty means unset.
func NormalizePrecipitationUnit(token string) (meteoblue.PrecipitationUnit, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", nil
	}
	switch strings.ToLower(trimmed) {
	case string(meteoblue.Millimeters):
		return meteoblue.Millimeters, nil
	case string(meteoblue.Inches):
		return meteoblue.Inches, nil
	}
	return "", &InvalidUnitError{Kind: "precipitation", Token: token, Valid: []string{"mm", "inch"}}
}

// NormalizeFormat resolves an output format token; empty defaults to JSON.
func NormalizeFormat(token string) (meteoblue.OutputFormat, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return meteoblue.FormatJSON, nil
	}
	switch strings.ToLower(trimmed) {
	case string(meteoblue.FormatJSON):
		return meteoblue.FormatJSON, nil
	case string(meteoblue.FormatCSV):
		return meteoblue.FormatCSV, nil
	}
	return "", &InvalidFormatError{Token: token}
}
