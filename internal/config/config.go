package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
)

// Config holds all service settings, populated from environment variables,
// an optional .env file, and an optional YAML parameters file.
type Config struct {
	DBPath string `validate:"required"`

	MeteoUsername          string
	MeteoPassword          string
	MeteoBaseURL           string        `validate:"required,url"`
	MeteoTimeout           time.Duration `validate:"gt=0"`
	MeteoDailyRequestLimit int           `validate:"min=1"`

	HistoryYears int `validate:"min=1"`
	ForecastDays int `validate:"min=0,max=15"`
	FillEnabled  bool
	// ScheduleAt is the UTC wall-clock time of the daily cycle, as HH:MM.
	ScheduleAt string `validate:"required"`

	HTTPAddr        string `validate:"required"`
	LogLevel        string `validate:"oneof=debug info warn error"`
	LogFormat       string `validate:"oneof=json text"`
	ShutdownTimeout time.Duration

	KafkaBrokers      []string
	KafkaOutcomeTopic string
	KafkaEnabled      bool

	// GridBBox restricts raster construction. Nil means the whole world.
	GridBBox *orb.Bound

	Parameters Parameters
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	meteoTimeout, err := parseDuration("METEO_TIMEOUT", "300s")
	if err != nil {
		return nil, err
	}

	limit, err := parseInt("METEO_DAILY_REQUEST_LIMIT", 2500)
	if err != nil {
		return nil, err
	}
	historyYears, err := parseInt("HISTORY_YEARS", 10)
	if err != nil {
		return nil, err
	}
	forecastDays, err := parseInt("FORECAST_DAYS", 7)
	if err != nil {
		return nil, err
	}
	fillEnabled, err := parseBool("FILL_ENABLED", false)
	if err != nil {
		return nil, err
	}

	rawBrokers := os.Getenv("KAFKA_BROKERS")
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", rawBrokers != "")
	if err != nil {
		return nil, err
	}

	bbox, err := ParseBBox(os.Getenv("GRID_BBOX"))
	if err != nil {
		return nil, err
	}

	params, err := ParametersFromEnv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBPath:                 sharedcfg.EnvOrDefault("DB_PATH", "weather.db"),
		MeteoUsername:          os.Getenv("METEO_USERNAME"),
		MeteoPassword:          os.Getenv("METEO_PASSWORD"),
		MeteoBaseURL:           sharedcfg.EnvOrDefault("METEO_BASE_URL", "https://api.meteomatics.com"),
		MeteoTimeout:           meteoTimeout,
		MeteoDailyRequestLimit: limit,
		HistoryYears:           historyYears,
		ForecastDays:           forecastDays,
		FillEnabled:            fillEnabled,
		ScheduleAt:             sharedcfg.EnvOrDefault("SCHEDULE_AT", "13:00"),
		HTTPAddr:               sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:               sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:              sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:        shutdownTimeout,
		KafkaBrokers:           sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaOutcomeTopic:      sharedcfg.EnvOrDefault("KAFKA_OUTCOME_TOPIC", "weather-request-outcomes"),
		KafkaEnabled:           kafkaEnabled,
		GridBBox:               bbox,
		Parameters:             params,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := ParseScheduleAt(c.ScheduleAt); err != nil {
		return err
	}
	if !isLocal(c.MeteoBaseURL) && (c.MeteoUsername == "" || c.MeteoPassword == "") {
		return errors.New("METEO_USERNAME and METEO_PASSWORD are required")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaOutcomeTopic == "" {
			return errors.New("KAFKA_OUTCOME_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}

// LogValue hides credentials when the config is logged.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("db_path", c.DBPath),
		slog.String("meteo_base_url", c.MeteoBaseURL),
		slog.Bool("meteo_credentials", c.MeteoUsername != ""),
		slog.Int("daily_request_limit", c.MeteoDailyRequestLimit),
		slog.Int("history_years", c.HistoryYears),
		slog.Int("forecast_days", c.ForecastDays),
		slog.Bool("fill_enabled", c.FillEnabled),
		slog.String("schedule_at", c.ScheduleAt),
		slog.Bool("kafka_enabled", c.KafkaEnabled),
		slog.Int("weather_types", len(c.Parameters.WeatherTypes)),
	)
}

// ParseScheduleAt parses an HH:MM UTC time. The cycle must start at or
// after 12:00 UTC, when yesterday is final in every zone.
func ParseScheduleAt(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid SCHEDULE_AT %q: %w", s, err)
	}
	if t.Hour() < 12 {
		return time.Time{}, fmt.Errorf("invalid SCHEDULE_AT %q: must be 12:00 UTC or later", s)
	}
	return t, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat". An empty string yields nil.
func ParseBBox(s string) (*orb.Bound, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid GRID_BBOX %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GRID_BBOX %q: %w", s, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min[0] >= b.Max[0] || b.Min[1] >= b.Max[1] {
		return nil, fmt.Errorf("invalid GRID_BBOX %q: min must be below max", s)
	}
	if b.Min[0] < -180 || b.Max[0] > 180 || b.Min[1] < -90 || b.Max[1] > 90 {
		return nil, fmt.Errorf("invalid GRID_BBOX %q: out of range", s)
	}
	return &b, nil
}

func isLocal(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
