// Package nconfig holds the small set of runtime settings the engines
// need numeric defaults for: timeouts and the parameter defaults an
// adapter starts with. It does not discover plugins or expose a
// configuration surface beyond environment variables and an optional
// YAML file.
package nconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the daemon's runtime configuration.
type Config struct {
	// Timeouts holds the engine timeout defaults.
	Timeouts TimeoutConfig `mapstructure:"timeouts"`

	// Params holds the adapter parameter defaults applied at startup.
	Params ParamConfig `mapstructure:"params"`

	// Logging controls internal/nlog's level and format.
	Logging LoggingConfig `mapstructure:"logging"`
}

// TimeoutConfig holds the engine timeout defaults.
type TimeoutConfig struct {
	// TargetRequest bounds how long a driver may take to complete a
	// submitted transmit/deactivate/reactivate request.
	TargetRequest time.Duration `mapstructure:"target_request" validate:"required,gt=0"`

	// Reactivation bounds how long a reactivation attempt may take
	// before the target is considered gone.
	Reactivation time.Duration `mapstructure:"reactivation" validate:"required,gt=0"`

	// HostAPDUIdle is an idle limit between host APDUs. It is loaded and
	// validated, but host.Host does not read it and applies no idle
	// timeout.
	HostAPDUIdle time.Duration `mapstructure:"host_apdu_idle" validate:"required,gt=0"`
}

// ParamConfig holds adapter parameter defaults. They are loaded and
// validated only; nothing in this module applies them to an adapter.
type ParamConfig struct {
	// T4NDEFEnabled is the configured default for adapter.ParamT4NDEF.
	T4NDEFEnabled bool `mapstructure:"t4_ndef_enabled"`
}

// LoggingConfig controls internal/nlog.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// JSON selects JSON output instead of text.
	JSON bool `mapstructure:"json"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Timeouts: TimeoutConfig{
			TargetRequest: 500 * time.Millisecond,
			Reactivation:  1 * time.Second,
			HostAPDUIdle:  1 * time.Second,
		},
		Params: ParamConfig{
			T4NDEFEnabled: true,
		},
		Logging: LoggingConfig{
			Level: "INFO",
			JSON:  false,
		},
	}
}

// Load reads configuration from environment variables (NFCD_ prefix),
// an optional YAML file at configPath, and falls back to Default for
// anything unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NFCD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("timeouts.target_request", def.Timeouts.TargetRequest)
	v.SetDefault("timeouts.reactivation", def.Timeouts.Reactivation)
	v.SetDefault("timeouts.host_apdu_idle", def.Timeouts.HostAPDUIdle)
	v.SetDefault("params.t4_ndef_enabled", def.Params.T4NDEFEnabled)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.json", def.Logging.JSON)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("nconfig.Load: reading %q: %w", configPath, err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("nconfig.Load: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("nconfig.Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
