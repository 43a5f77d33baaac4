package domain

import "time"

// DailyWeatherTypes is the default catalogue of daily parameters.
var DailyWeatherTypes = []WeatherType{
	{Name: "t_min_2m_24h:C", TemporalExtent: 24 * time.Hour, Units: "degrees Celsius",
		Description: "Minimum daily air temperature at two meters above ground"},
	{Name: "t_max_2m_24h:C", TemporalExtent: 24 * time.Hour, Units: "degrees Celsius",
		Description: "Maximum daily air temperature at two meters above ground"},
	{Name: "t_mean_2m_24h:C", TemporalExtent: 24 * time.Hour, Units: "degrees Celsius",
		Description: "Mean daily air temperature at two meters above ground"},
	{Name: "precip_24h:mm", TemporalExtent: 24 * time.Hour, Units: "millimeters",
		Description: "Cumulative daily precipitation, including liquid, mixed, and solid precipitation"},
	{Name: "wind_speed_mean_2m_24h:ms", TemporalExtent: 24 * time.Hour, Units: "meters per second",
		Description: "Mean daily wind speed at two meters above ground"},
	{Name: "relative_humidity_mean_2m_24h:p", TemporalExtent: 24 * time.Hour, Units: "percent",
		Description: "Mean daily relative humidity at two meters above ground"},
	{Name: "global_rad_24h:J", TemporalExtent: 24 * time.Hour, Units: "Joules",
		Description: "Cumulative daily global radiation (diffuse + direct radiation)"},
	{Name: "evapotranspiration_24h:mm", TemporalExtent: 24 * time.Hour, Units: "millimeters",
		Description: "Cumulative daily evapotranspiration"},
	{Name: "volumetric_soil_water_-50cm:m3m3", TemporalExtent: 24 * time.Hour, Units: "cubic meters/cubic meters",
		Description: "Volumetric soil water between soil depth of 28-100cm"},
	{Name: "soil_moisture_deficit:mm", TemporalExtent: 24 * time.Hour, Units: "millimeters",
		Description: "Difference between the actual water content of the soil and its field capacity"},
	{Name: "leaf_wetness:idx", TemporalExtent: 24 * time.Hour, Units: "binary (0/1)",
		Description: "Dew left on surfaces; 1 indicates wetness"},
}

// DefaultParameterSets splits the catalogue into the two update/add groups.
func DefaultParameterSets() [][]string {
	names := make([]string, len(DailyWeatherTypes))
	for i, wt := range DailyWeatherTypes {
		names[i] = wt.Name
	}
	return [][]string{names[:6], names[6:]}
}
