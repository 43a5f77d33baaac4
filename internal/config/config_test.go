package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("METEO_USERNAME", "farm_user")
	t.Setenv("METEO_PASSWORD", "secret")
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "weather.db", cfg.DBPath)
	assert.Equal(t, "https://api.meteomatics.com", cfg.MeteoBaseURL)
	assert.Equal(t, 300*time.Second, cfg.MeteoTimeout)
	assert.Equal(t, 2500, cfg.MeteoDailyRequestLimit)
	assert.Equal(t, 10, cfg.HistoryYears)
	assert.Equal(t, 7, cfg.ForecastDays)
	assert.False(t, cfg.FillEnabled)
	assert.Equal(t, "13:00", cfg.ScheduleAt)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "weather-request-outcomes", cfg.KafkaOutcomeTopic)
	assert.False(t, cfg.KafkaEnabled, "kafka is off unless brokers are set")
	assert.Nil(t, cfg.GridBBox)

	assert.Len(t, cfg.Parameters.WeatherTypes, 11)
	require.Len(t, cfg.Parameters.UpdateGroups, 2)
	assert.Len(t, cfg.Parameters.UpdateGroups[0].Parameters, 6)
	assert.Len(t, cfg.Parameters.UpdateGroups[1].Parameters, 5)
	assert.Equal(t, 1000, cfg.Parameters.UpdateGroups[0].MaxCells)
	assert.Equal(t, 100, cfg.Parameters.AddGroups[1].MaxCells)
	assert.Equal(t, 100, cfg.Parameters.FillMaxCells)
}

func TestLoad_CustomEnv(t *testing.T) {
	setCredentials(t)
	t.Setenv("DB_PATH", "/data/grid.db")
	t.Setenv("METEO_TIMEOUT", "60s")
	t.Setenv("METEO_DAILY_REQUEST_LIMIT", "500")
	t.Setenv("HISTORY_YEARS", "3")
	t.Setenv("FORECAST_DAYS", "14")
	t.Setenv("FILL_ENABLED", "true")
	t.Setenv("SCHEDULE_AT", "14:30")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_OUTCOME_TOPIC", "outcomes")
	t.Setenv("GRID_BBOX", "-105,38,-101,41")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/grid.db", cfg.DBPath)
	assert.Equal(t, 60*time.Second, cfg.MeteoTimeout)
	assert.Equal(t, 500, cfg.MeteoDailyRequestLimit)
	assert.Equal(t, 3, cfg.HistoryYears)
	assert.Equal(t, 14, cfg.ForecastDays)
	assert.True(t, cfg.FillEnabled)
	assert.Equal(t, "14:30", cfg.ScheduleAt)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "outcomes", cfg.KafkaOutcomeTopic)
	assert.True(t, cfg.KafkaEnabled, "explicit brokers enable kafka")
	require.NotNil(t, cfg.GridBBox)
	assert.Equal(t, orb.Bound{Min: orb.Point{-105, 38}, Max: orb.Point{-101, 41}}, *cfg.GridBBox)
}

func TestLoad_KafkaExplicitlyDisabled(t *testing.T) {
	setCredentials(t)
	t.Setenv("KAFKA_BROKERS", "broker1:9092")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_CredentialsRequired(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "METEO_USERNAME")
}

func TestLoad_LocalFakeNeedsNoCredentials(t *testing.T) {
	t.Setenv("METEO_BASE_URL", "http://127.0.0.1:8081")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.MeteoUsername)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"shutdown timeout", "SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"negative shutdown timeout", "SHUTDOWN_TIMEOUT", "-1s", "SHUTDOWN_TIMEOUT"},
		{"meteo timeout", "METEO_TIMEOUT", "bad", "METEO_TIMEOUT"},
		{"zero meteo timeout", "METEO_TIMEOUT", "0s", "METEO_TIMEOUT"},
		{"request limit", "METEO_DAILY_REQUEST_LIMIT", "many", "METEO_DAILY_REQUEST_LIMIT"},
		{"zero request limit", "METEO_DAILY_REQUEST_LIMIT", "0", "MeteoDailyRequestLimit"},
		{"history years", "HISTORY_YEARS", "0", "HistoryYears"},
		{"forecast too long", "FORECAST_DAYS", "30", "ForecastDays"},
		{"fill flag", "FILL_ENABLED", "maybe", "FILL_ENABLED"},
		{"log level", "LOG_LEVEL", "verbose", "LogLevel"},
		{"schedule format", "SCHEDULE_AT", "1pm", "SCHEDULE_AT"},
		{"schedule before cutoff", "SCHEDULE_AT", "06:00", "12:00 UTC"},
		{"bbox arity", "GRID_BBOX", "1,2,3", "GRID_BBOX"},
		{"bbox order", "GRID_BBOX", "10,10,0,20", "GRID_BBOX"},
		{"bbox range", "GRID_BBOX", "-200,0,10,10", "GRID_BBOX"},
		{"base url", "METEO_BASE_URL", "not a url", "MeteoBaseURL"},
		{"parameters file", "PARAMETERS_FILE", "/does/not/exist.yaml", "parameters file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCredentials(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ParametersFile(t *testing.T) {
	setCredentials(t)
	path := writeFile(t, "params.yaml", `
weather_types:
  - name: "t_min_2m_24h:C"
    units: degrees Celsius
    temporal_extent: 24h
  - name: "precip_24h:mm"
    units: millimeters
    temporal_extent: 24h
update_groups:
  - parameters: ["t_min_2m_24h:C", "precip_24h:mm"]
    max_cells: 500
add_groups:
  - parameters: ["t_min_2m_24h:C", "precip_24h:mm"]
    max_cells: 50
fill_max_cells: 25
`)
	t.Setenv("PARAMETERS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	p := cfg.Parameters
	require.Len(t, p.WeatherTypes, 2)
	assert.Equal(t, 24*time.Hour, p.WeatherTypes[0].TemporalExtent)
	assert.Equal(t, 500, p.UpdateGroups[0].MaxCells)
	assert.Equal(t, 50, p.AddGroups[0].MaxCells)
	assert.Equal(t, 25, p.FillMaxCells)

	types := p.Types()
	assert.Equal(t, "precip_24h:mm", types[1].Name)
	assert.Equal(t, "millimeters", types[1].Units)
}

func TestLoad_ParametersFileRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown parameter",
			body: `
weather_types: [{name: a, temporal_extent: 24h}]
update_groups: [{parameters: [a, b], max_cells: 1}]
add_groups: [{parameters: [a], max_cells: 1}]
fill_max_cells: 1
`,
			want: `unknown weather type "b"`,
		},
		{
			name: "too many parameters",
			body: `
weather_types: [{name: a, temporal_extent: 24h}]
update_groups: [{parameters: [a, a, a, a, a, a, a, a, a, a, a], max_cells: 1}]
add_groups: [{parameters: [a], max_cells: 1}]
fill_max_cells: 1
`,
			want: "Parameters",
		},
		{
			name: "zero cap",
			body: `
weather_types: [{name: a, temporal_extent: 24h}]
update_groups: [{parameters: [a], max_cells: 0}]
add_groups: [{parameters: [a], max_cells: 1}]
fill_max_cells: 1
`,
			want: "MaxCells",
		},
		{
			name: "duplicate type",
			body: `
weather_types: [{name: a, temporal_extent: 24h}, {name: a, temporal_extent: 24h}]
update_groups: [{parameters: [a], max_cells: 1}]
add_groups: [{parameters: [a], max_cells: 1}]
fill_max_cells: 1
`,
			want: "duplicate weather type",
		},
		{
			name: "no groups",
			body: `
weather_types: [{name: a, temporal_extent: 24h}]
fill_max_cells: 1
`,
			want: "UpdateGroups",
		},
		{
			name: "malformed yaml",
			body: "weather_types: [",
			want: "parse parameters file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCredentials(t)
			t.Setenv("PARAMETERS_FILE", writeFile(t, "params.yaml", tt.body))

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScheduleAt(t *testing.T) {
	at, err := ParseScheduleAt("12:00")
	require.NoError(t, err)
	assert.Equal(t, 12, at.Hour())

	_, err = ParseScheduleAt("11:59")
	require.Error(t, err)
}
