package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// Parameters declares which weather types are synced and how requests are packed.
type Parameters struct {
	WeatherTypes []WeatherTypeConfig `yaml:"weather_types" validate:"required,min=1,dive"`
	UpdateGroups []GroupConfig       `yaml:"update_groups" validate:"required,min=1,dive"`
	AddGroups    []GroupConfig       `yaml:"add_groups" validate:"required,min=1,dive"`
	FillMaxCells int                 `yaml:"fill_max_cells" validate:"min=1"`
}

// WeatherTypeConfig is one API parameter.
type WeatherTypeConfig struct {
	Name           string        `yaml:"name" validate:"required"`
	Units          string        `yaml:"units"`
	Description    string        `yaml:"description"`
	TemporalExtent time.Duration `yaml:"temporal_extent" validate:"gt=0"`
}

// GroupConfig is a set of parameters requested together and the largest
// number of cells one request may carry.
type GroupConfig struct {
	Parameters []string `yaml:"parameters" validate:"min=1,max=10,dive,required"`
	MaxCells   int      `yaml:"max_cells" validate:"min=1"`
}

// DefaultParameters returns the built-in catalogue split into two groups.
func DefaultParameters() Parameters {
	p := Parameters{FillMaxCells: 100}
	for _, wt := range domain.DailyWeatherTypes {
		p.WeatherTypes = append(p.WeatherTypes, WeatherTypeConfig{
			Name:           wt.Name,
			Units:          wt.Units,
			Description:    wt.Description,
			TemporalExtent: wt.TemporalExtent,
		})
	}
	for _, set := range domain.DefaultParameterSets() {
		p.UpdateGroups = append(p.UpdateGroups, GroupConfig{Parameters: set, MaxCells: 1000})
		p.AddGroups = append(p.AddGroups, GroupConfig{Parameters: set, MaxCells: 100})
	}
	return p
}

// ParametersFromEnv loads PARAMETERS_FILE when set and falls back to the
// built-in catalogue otherwise. The result is validated.
func ParametersFromEnv() (Parameters, error) {
	p := DefaultParameters()
	if path := os.Getenv("PARAMETERS_FILE"); path != "" {
		var err error
		if p, err = LoadParameters(path); err != nil {
			return Parameters{}, err
		}
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(p); err != nil {
		return Parameters{}, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := p.validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// LoadParameters reads a YAML parameters file.
func LoadParameters(path string) (Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("read parameters file: %w", err)
	}
	var p Parameters
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Parameters{}, fmt.Errorf("parse parameters file %s: %w", path, err)
	}
	return p, nil
}

// Types converts the configured weather types to domain values.
func (p Parameters) Types() []domain.WeatherType {
	out := make([]domain.WeatherType, len(p.WeatherTypes))
	for i, wt := range p.WeatherTypes {
		out[i] = domain.WeatherType{
			Name:           wt.Name,
			Units:          wt.Units,
			Description:    wt.Description,
			TemporalExtent: wt.TemporalExtent,
		}
	}
	return out
}

// validate checks what struct tags cannot: every grouped parameter must be a
// declared weather type and names must be unique.
func (p Parameters) validate() error {
	known := make(map[string]bool, len(p.WeatherTypes))
	for _, wt := range p.WeatherTypes {
		if known[wt.Name] {
			return fmt.Errorf("duplicate weather type %q", wt.Name)
		}
		known[wt.Name] = true
	}
	for _, groups := range [][]GroupConfig{p.UpdateGroups, p.AddGroups} {
		for _, g := range groups {
			for _, name := range g.Parameters {
				if !known[name] {
					return fmt.Errorf("parameter group references unknown weather type %q", name)
				}
			}
		}
	}
	return nil
}
