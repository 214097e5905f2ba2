// Package config loads the device configuration file.
//
// The file is a flat JSON object. It is exposed two ways: as a raw Source
// with Get(key, default) lookups, and decoded into a typed Config with
// defaults applied and values validated.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/pattern"
)

// DefaultPath is where the config file is looked for when -config is not given.
const DefaultPath = "config.json"

// Servo driver names.
const (
	DriverRPIO    = "rpio"
	DriverPCA9685 = "pca9685"
)

// Data formats.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
	FormatBoth   = "both"
)

var (
	// ErrMissingKey is returned when a required key is absent or null.
	ErrMissingKey = errors.New("missing required key")
	// ErrInvalidValue is returned when a key holds an unusable value.
	ErrInvalidValue = errors.New("invalid value")
)

// Source is the raw key/value view of the config file.
type Source map[string]any

// Get returns the value for key, or def if the key is absent.
func (s Source) Get(key string, def any) any {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present, even if its value is null.
func (s Source) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// PatternStep is one step of a configured pattern. Hold accepts a duration
// string ("300ms") or a number of seconds.
type PatternStep struct {
	Angle float64       `json:"angle"`
	Hold  time.Duration `json:"hold"`
}

// Config is the typed device configuration.
type Config struct {
	WindowStart *logic.TimeOfDay `json:"time_to_close_start"`
	WindowEnd   *logic.TimeOfDay `json:"time_to_close_end"`
	AngleClosed *logic.Angle     `json:"angle_closed"`
	AngleOpen   *logic.Angle     `json:"angle_open"`

	ServoPin        int    `json:"servo_pin"`
	ServoDriver     string `json:"servo_driver"`
	ServoMinPulseUs int    `json:"servo_min_pulse_us"`
	ServoMaxPulseUs int    `json:"servo_max_pulse_us"`
	PCA9685Channel  int    `json:"pca9685_channel"`

	ADCAddress    uint16  `json:"adc_address"`
	ADCMaxVoltage float64 `json:"adc_max_voltage"`
	I2CBus        string  `json:"i2c_bus"`

	DataDir    string `json:"data_dir"`
	DataFormat string `json:"data_format"`
	LogFile    string `json:"log_file"`

	RTCEnabled   bool `json:"rtc_enabled"`
	IndicatorPin int  `json:"indicator_pin"`

	TickPeriod       time.Duration `json:"tick_period"`
	SettleDelay      time.Duration `json:"settle_delay"`
	MaxErrorFeedback int           `json:"max_error_feedback"`

	ErrorPatterns map[string][]PatternStep `json:"error_patterns"`

	// Unknown lists keys in the file that no field consumed.
	Unknown []string `json:"-"`
}

// Defaults returns the values used for keys absent from the file.
// The angles have no default.
func Defaults() Source {
	return Source{
		"time_to_close_start": "08:00:00",
		"time_to_close_end":   "18:00:00",
		"servo_pin":           13,
		"servo_driver":        DriverRPIO,
		"servo_min_pulse_us":  500,
		"servo_max_pulse_us":  2500,
		"pca9685_channel":     0,
		"adc_address":         0x48,
		"adc_max_voltage":     4.096,
		"i2c_bus":             "",
		"data_dir":            "data",
		"data_format":         FormatCSV,
		"log_file":            "",
		"rtc_enabled":         true,
		"indicator_pin":       -1,
		"tick_period":         "1s",
		"settle_delay":        "5s",
		"max_error_feedback":  0,
	}
}

// LoadSource reads the JSON object at path.
func LoadSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var src Source
	if err := json.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if src == nil {
		return nil, fmt.Errorf("parse config %s: %w: not a JSON object", path, ErrInvalidValue)
	}
	return src, nil
}

// Load reads, decodes and validates the config file at path.
func Load(path string) (*Config, error) {
	src, err := LoadSource(path)
	if err != nil {
		return nil, err
	}
	return Decode(src)
}

// Decode applies defaults to src, decodes it and validates the result.
func Decode(src Source) (*Config, error) {
	merged := Defaults()
	for k, v := range src {
		merged[k] = v
	}

	var cfg Config
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.DecodeHookFuncType(timeOfDayHook),
			mapstructure.DecodeHookFuncType(secondsToDurationHook),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(merged)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	sort.Strings(md.Unused)
	cfg.Unknown = md.Unused

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if c.WindowStart == nil {
		return fmt.Errorf("time_to_close_start: %w", ErrMissingKey)
	}
	if c.WindowEnd == nil {
		return fmt.Errorf("time_to_close_end: %w", ErrMissingKey)
	}
	if c.AngleClosed == nil {
		return fmt.Errorf("angle_closed: %w", ErrMissingKey)
	}
	if c.AngleOpen == nil {
		return fmt.Errorf("angle_open: %w", ErrMissingKey)
	}

	switch c.ServoDriver {
	case DriverRPIO, DriverPCA9685:
	default:
		return fmt.Errorf("servo_driver %q: %w", c.ServoDriver, ErrInvalidValue)
	}
	switch c.DataFormat {
	case FormatCSV, FormatSQLite, FormatBoth:
	default:
		return fmt.Errorf("data_format %q: %w", c.DataFormat, ErrInvalidValue)
	}
	if c.ServoMaxPulseUs <= c.ServoMinPulseUs {
		return fmt.Errorf("servo pulse range %d-%dus: %w", c.ServoMinPulseUs, c.ServoMaxPulseUs, ErrInvalidValue)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick_period %v: %w", c.TickPeriod, ErrInvalidValue)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay %v: %w", c.SettleDelay, ErrInvalidValue)
	}
	if c.MaxErrorFeedback < 0 {
		return fmt.Errorf("max_error_feedback %d: %w", c.MaxErrorFeedback, ErrInvalidValue)
	}
	for name, steps := range c.ErrorPatterns {
		if len(steps) == 0 {
			return fmt.Errorf("error_patterns.%s: %w: no steps", name, ErrInvalidValue)
		}
		for i, s := range steps {
			if s.Hold <= 0 {
				return fmt.Errorf("error_patterns.%s[%d].hold: %w", name, i, ErrInvalidValue)
			}
		}
	}
	return nil
}

// Patterns returns the built-in patterns overlaid with the configured ones.
func (c *Config) Patterns() map[string]pattern.Pattern {
	custom := make(map[string]pattern.Pattern, len(c.ErrorPatterns))
	for name, steps := range c.ErrorPatterns {
		p := make(pattern.Pattern, len(steps))
		for i, s := range steps {
			p[i] = pattern.Step{Angle: logic.Angle(s.Angle), Hold: s.Hold}
		}
		custom[name] = p
	}
	return pattern.Merge(custom)
}

// ServoPulseRange returns the configured pulse widths.
func (c *Config) ServoPulseRange() (min, max time.Duration) {
	return time.Duration(c.ServoMinPulseUs) * time.Microsecond,
		time.Duration(c.ServoMaxPulseUs) * time.Microsecond
}

var (
	timeOfDayType = reflect.TypeOf(logic.TimeOfDay(0))
	durationType  = reflect.TypeOf(time.Duration(0))
)

func timeOfDayHook(from, to reflect.Type, data any) (any, error) {
	if to != timeOfDayType || from.Kind() != reflect.String {
		return data, nil
	}
	return logic.ParseTimeOfDay(data.(string))
}

func secondsToDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	}
	return data, nil
}
