package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/scpi"
	"codeberg.org/mutker/psuctl/internal/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = scpi.DefaultPort
	DefaultTimeout      = scpi.DefaultTimeout
	DefaultInterval     = time.Second
	DefaultTelemetryLog = "telemetry.log"
	DefaultListen       = ":8080"
	DefaultLogLevel     = LogLevelInfo
	DefaultEnvPrefix    = "PSUCTL"

	defaultConfigName = "psuctl.conf"
	defaultConfigDir  = "/etc"
	defaultPIDName    = "psuctl.pid"
)

// Config keys, shared by the TOML file, environment and flags.
const (
	KeyHost         = "host"
	KeyPort         = "port"
	KeyTimeout      = "timeout"
	KeyInterval     = "interval"
	KeyTelemetryLog = "telemetry_log"
	KeyTelemetryDB  = "telemetry_db"
	KeyListen       = "listen"
	KeyLogLevel     = "log_level"
	KeyPIDFile      = "pid_file"
	KeyTelemetry    = "telemetry"

	flagConfig = "config"
)

type Config struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	TelemetryLog string        `mapstructure:"telemetry_log" validate:"required"`
	TelemetryDB  string        `mapstructure:"telemetry_db"`
	Listen       string        `mapstructure:"listen" validate:"required"`
	LogLevel     LogLevel      `mapstructure:"log_level" validate:"loglevel"`
	PIDFile      string        `mapstructure:"pid_file"`
	Telemetry    bool          `mapstructure:"telemetry"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return LogLevel(fl.Field().String()).IsValid()
	})
	return v
}

// RegisterFlags defines every configuration flag on fs. Flag names use
// dashes where the config keys use underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(flagConfig, "", "Path to the TOML configuration file")
	fs.String(KeyHost, DefaultHost, "Instrument host")
	fs.Int(KeyPort, DefaultPort, "Instrument SCPI port")
	fs.Duration(KeyTimeout, DefaultTimeout, "Bound on each instrument exchange")
	fs.Duration(KeyInterval, DefaultInterval, "Pause between telemetry samples")
	fs.String(flagName(KeyTelemetryLog), DefaultTelemetryLog, "Telemetry JSON-lines log path")
	fs.String(flagName(KeyTelemetryDB), "", "Telemetry SQLite database path (empty disables)")
	fs.String(KeyListen, DefaultListen, "HTTP listen address")
	fs.String(flagName(KeyLogLevel), string(DefaultLogLevel), "Log level (debug, info, warn|warning, error)")
	fs.String(flagName(KeyPIDFile), "", "PID file path (default $TMPDIR/psuctl.pid)")
	fs.Bool(KeyTelemetry, true, "Run the telemetry sampler")
}

// Load reads defaults, the config file, the environment and fs, in
// increasing priority, and validates the result. fs may be nil.
func Load(fs *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	if err := readConfigFile(v, resolveConfigPath(o, fs)); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.New().Wrap(ErrInvalidConfig, err)
	}

	verrs := make(ValidationErrors, 0, len(fieldErrs))
	code := ErrInvalidConfig
	for _, fe := range fieldErrs {
		if fe.Tag() == "loglevel" {
			code = ErrInvalidLogLevel
		}
		verrs = append(verrs, &fieldError{
			field:  fe.Field(),
			value:  fe.Value(),
			reason: reason(fe),
		})
	}

	return errors.New().Wrap(code, verrs)
}

// Endpoint returns the configured instrument address.
func (c *Config) Endpoint() scpi.Endpoint {
	return scpi.Endpoint{Host: c.Host, Port: c.Port}
}

// TelemetryConfig maps the telemetry settings onto the sampler and sinks.
func (c *Config) TelemetryConfig() telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.LogPath = c.TelemetryLog
	tc.DBPath = c.TelemetryDB
	tc.Interval = c.Interval
	return tc
}

// PIDPath returns the configured PID file, or one in the temp directory.
func (c *Config) PIDPath() string {
	if c.PIDFile != "" {
		return c.PIDFile
	}
	return filepath.Join(os.TempDir(), defaultPIDName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyHost, DefaultHost)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyInterval, DefaultInterval)
	v.SetDefault(KeyTelemetryLog, DefaultTelemetryLog)
	v.SetDefault(KeyTelemetryDB, "")
	v.SetDefault(KeyListen, DefaultListen)
	v.SetDefault(KeyLogLevel, string(DefaultLogLevel))
	v.SetDefault(KeyPIDFile, "")
	v.SetDefault(KeyTelemetry, true)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, key := range []string{
		KeyHost, KeyPort, KeyTimeout, KeyInterval, KeyTelemetryLog,
		KeyTelemetryDB, KeyListen, KeyLogLevel, KeyPIDFile, KeyTelemetry,
	} {
		f := fs.Lookup(flagName(key))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.New().WithData(ErrBindFlags, struct {
				Flag  string
				Error string
			}{
				Flag:  f.Name,
				Error: err.Error(),
			})
		}
	}
	return nil
}

// resolveConfigPath picks the explicit option, the --config flag, then the
// <PREFIX>_CONFIG variable. An empty result means the default location.
func resolveConfigPath(o *options, fs *pflag.FlagSet) string {
	if o.configPath != "" {
		return o.configPath
	}
	if fs != nil {
		if f := fs.Lookup(flagConfig); f != nil && f.Value.String() != "" {
			return f.Value.String()
		}
	}
	return os.Getenv(o.envPrefix + "_CONFIG")
}

func readConfigFile(v *viper.Viper, path string) error {
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.New().Wrap(ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(defaultConfigName)
	v.AddConfigPath(defaultConfigDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New().Wrap(ErrReadConfig, err)
	}
	return nil
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return "must be positive"
	case "loglevel":
		return "must be one of debug, info, warn, warning, error"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
