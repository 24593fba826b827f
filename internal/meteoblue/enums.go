package meteoblue

// ForecastPackage identifies a named bundle of forecast fields selectable in
// a packages request. Values are the wire tokens the API expects.
type ForecastPackage string

const (
	PackageBasic1H  ForecastPackage = "basic-1h"
	PackageBasicDay ForecastPackage = "basic-day"
	PackageCurrent  ForecastPackage = "current"
	PackageClouds   ForecastPackage = "clouds"
	PackageSunMoon  ForecastPackage = "sun_moon"
	PackageAgro     ForecastPackage = "agro"
	PackageSolar    ForecastPackage = "solar"
	PackageWind     ForecastPackage = "wind"
	PackageSea      ForecastPackage = "sea"
	PackageAir      ForecastPackage = "air"
	PackageTrend    ForecastPackage = "trend"
)

// Packages lists every valid forecast package in wire order.
func Packages() []ForecastPackage {
	return []ForecastPackage{
		PackageBasic1H, PackageBasicDay, PackageCurrent, PackageClouds,
		PackageSunMoon, PackageAgro, PackageSolar, PackageWind,
		PackageSea, PackageAir, PackageTrend,
	}
}

// ImageKind identifies a rendered visimage product.
type ImageKind string

const (
	ImageMeteogramClimate          ImageKind = "meteogram_climate"
	ImageMeteogram14Day            ImageKind = "meteogram_14day"
	ImageMeteogramCurrentOnClimate ImageKind = "meteogram_currentOnClimate"
	ImageMeteogramClimateYear      ImageKind = "meteogram_climateYear"
	ImageClimateModelTempPrecip    ImageKind = "climate_model/temp_precip"
	ImageMeteogramClimateWindRose  ImageKind = "meteogram_climate_wind_rose"
)

// TemperatureUnit selects the temperature unit for forecast values.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "C"
	Fahrenheit TemperatureUnit = "F"
)

// WindspeedUnit selects the wind speed unit for forecast values.
type WindspeedUnit string

const (
	MetersPerSecond WindspeedUnit = "ms-1"
	KilometersHour  WindspeedUnit = "kmh"
	MilesPerHour    WindspeedUnit = "mph"
	Knots           WindspeedUnit = "kn"
)

// PrecipitationUnit selects the precipitation amount unit.
type PrecipitationUnit string

const (
	Millimeters PrecipitationUnit = "mm"
	Inches      PrecipitationUnit = "inch"
)

// OutputFormat selects the forecast response encoding.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatCSV  OutputFormat = "csv"
)
